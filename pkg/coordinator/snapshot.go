package coordinator

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/massgen-go/orchestrator/pkg/agent"
	"github.com/massgen-go/orchestrator/pkg/coordination"
)

// SnapshotBridge is the thin interface to the external workspace store.
// The core owns the semantics; storage is an opaque, content-addressed
// concern on the other side of this interface.
type SnapshotBridge interface {
	// SaveSnapshot copies agentID's working directory into snapshot
	// storage under its real ID, replacing any prior snapshot. Called
	// after every accepted new_answer. Idempotent.
	SaveSnapshot(agentID string) error

	// MaterializeReference clears the target agent's reference workspace,
	// then copies each current answer-holder's snapshot into a
	// sub-directory named by that holder's anonymous ID per anon.
	// Returns the absolute reference root path.
	MaterializeReference(targetAgentID string, anon *coordination.AnonymousMap) (string, error)
}

// NoopSnapshotBridge disables the bridge: used whenever
// snapshot_storage_path / agent_temporary_workspace_path are unset, or for
// agents with no filesystem affinity.
type NoopSnapshotBridge struct{}

func (NoopSnapshotBridge) SaveSnapshot(string) error { return nil }
func (NoopSnapshotBridge) MaterializeReference(string, *coordination.AnonymousMap) (string, error) {
	return "", nil
}

// LocalFilesystemBridge implements SnapshotBridge against two local
// directory trees: snapshot storage at
// <SnapshotRoot>/<real_agent_id>/... and per-target reference workspaces
// at <TempRoot>/<target_agent_id>/<anonymous_id>/....
//
// It needs to know each agent's own working directory (WorkspaceOf) and
// whether it has filesystem affinity at all (registry-level, checked by
// the caller before invoking SaveSnapshot/MaterializeReference).
type LocalFilesystemBridge struct {
	SnapshotRoot string
	TempRoot     string
	WorkspaceOf  func(agentID string) string

	mu sync.Mutex
}

// SaveSnapshot copies WorkspaceOf(agentID) into SnapshotRoot/agentID,
// replacing any prior contents.
func (b *LocalFilesystemBridge) SaveSnapshot(agentID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	src := b.WorkspaceOf(agentID)
	if src == "" {
		return nil
	}
	dst := filepath.Join(b.SnapshotRoot, agentID)
	if err := os.RemoveAll(dst); err != nil {
		return fmt.Errorf("snapshot bridge: clearing %s: %w", dst, err)
	}
	if err := copyTree(src, dst); err != nil {
		return fmt.Errorf("snapshot bridge: saving snapshot for %s: %w", agentID, err)
	}
	return nil
}

// MaterializeReference rebuilds TempRoot/targetAgentID from scratch,
// populating one sub-directory per current answer-holder named by its
// anonymous ID.
func (b *LocalFilesystemBridge) MaterializeReference(targetAgentID string, anon *coordination.AnonymousMap) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	root := filepath.Join(b.TempRoot, targetAgentID)
	if err := os.RemoveAll(root); err != nil {
		return "", fmt.Errorf("snapshot bridge: clearing reference root %s: %w", root, err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("snapshot bridge: creating reference root %s: %w", root, err)
	}

	for _, realID := range anon.RealIDsInOrder() {
		src := filepath.Join(b.SnapshotRoot, realID)
		if _, err := os.Stat(src); err != nil {
			continue // no snapshot yet for this agent
		}
		dst := filepath.Join(root, anon.Anonymous(realID))
		if err := copyTree(src, dst); err != nil {
			return "", fmt.Errorf("snapshot bridge: materializing %s: %w", anon.Anonymous(realID), err)
		}
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return root, nil
	}
	return abs, nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// snapshotBridgeFor returns bridge unchanged for agents with filesystem
// affinity, or NoopSnapshotBridge for those without.
func snapshotBridgeFor(bridge SnapshotBridge, a agent.Agent) SnapshotBridge {
	if a != nil && !a.HasFilesystemAffinity() {
		return NoopSnapshotBridge{}
	}
	return bridge
}
