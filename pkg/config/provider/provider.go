// Package provider defines the config source abstraction used for hot
// reload, adapted from a multi-backend config provider down to the single
// backend this orchestrator needs: local files, watched via fsnotify.
package provider

import (
	"context"
	"fmt"
)

// Type identifies the config source type. Only TypeFile is implemented;
// the orchestrator's configuration is local and process-scoped.
type Type string

const (
	TypeFile Type = "file"
)

// Provider abstracts config sources. Implementations must be safe for
// concurrent use.
type Provider interface {
	Type() Type

	// Load reads raw config bytes from the source.
	Load(ctx context.Context) ([]byte, error)

	// Watch starts watching for changes and signals via the returned
	// channel. Cancel the context to stop watching.
	Watch(ctx context.Context) (<-chan struct{}, error)

	Close() error
}

// Config configures provider creation.
type Config struct {
	Type Type
	Path string
}

// New creates a Provider based on Config.
func New(opts Config) (Provider, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	switch opts.Type {
	case TypeFile, "":
		return NewFileProvider(opts.Path)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", opts.Type)
	}
}
