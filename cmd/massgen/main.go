// Command massgen is a minimal demonstration binary for the orchestrator:
// it registers a handful of in-process echo agents and runs one
// coordination call against a task given on the command line.
//
// Usage:
//
//	massgen run "what is the capital of France?"
//	massgen run --agents 3 --strategy weighted_vote "summarize this repo"
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/massgen-go/orchestrator/pkg/agent"
	"github.com/massgen-go/orchestrator/pkg/config"
	"github.com/massgen-go/orchestrator/pkg/coordination"
	"github.com/massgen-go/orchestrator/pkg/coordinator"
	"github.com/massgen-go/orchestrator/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Run RunCmd `cmd:"" help:"Run one coordination call against in-process echo agents."`

	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (simple, verbose, or custom)." default:"simple"`
}

// RunCmd runs a single coordination call.
type RunCmd struct {
	Task string `arg:"" help:"The task to coordinate the agents on."`

	Agents      int    `help:"Number of echo agents to register." default:"3"`
	Strategy    string `help:"Voting strategy: simple_majority or weighted_vote." default:"simple_majority"`
	TieBreaking string `help:"Tie-breaking method." default:"registration_order"`
	Tracing     bool   `help:"Enable otel tracing/metrics."`
	TraceExport string `name:"trace-exporter" help:"stdout or otlp." default:"stdout"`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	shutdown, err := initGlobalTelemetry(ctx, telemetryConfig{
		enabled:      c.Tracing,
		exporterType: c.TraceExport,
		samplingRate: 1.0,
		serviceName:  "massgen-orchestrator",
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	reg := coordination.NewRegistry()
	for i := 1; i <= c.Agents; i++ {
		id := fmt.Sprintf("agent-%d", i)
		a := newEchoAgent(id, func(task string) string {
			return fmt.Sprintf("[%s] proposed answer for: %s", id, task)
		})
		if err := reg.Register(a, 1.0); err != nil {
			return fmt.Errorf("registering %s: %w", id, err)
		}
	}

	votingCfg := config.VotingConfig{
		Strategy:    config.Strategy(c.Strategy),
		TieBreaking: config.TieBreaking(c.TieBreaking),
	}

	coord, err := coordinator.New(coordinator.Config{
		Registry: reg,
		Voting:   votingCfg,
		Tracing: coordinator.TracerConfig{
			Enabled:      c.Tracing,
			ServiceName:  "massgen-orchestrator",
			SamplingRate: 1.0,
		},
	})
	if err != nil {
		return fmt.Errorf("building coordinator: %w", err)
	}

	var result coordinator.Result
	for chunk, streamErr := range coord.Coordinate(ctx, c.Task, nil, &result) {
		if streamErr != nil {
			slog.Error("coordination error", "error", streamErr)
			continue
		}
		printChunk(chunk)
	}

	if result.Err != nil {
		return result.Err
	}
	if result.Export != nil {
		fmt.Printf("\n--- winner: %s ---\n%s\n", result.Export.WinnerID, result.Export.FinalAnswer)
	}
	return nil
}

func printChunk(c *agent.Chunk) {
	switch c.Type {
	case agent.ChunkContent:
		fmt.Printf("[%s] %s\n", c.Source, c.Content)
	case agent.ChunkAgentStatus:
		fmt.Printf("[%s] (status) %s\n", c.Source, c.Content)
	case agent.ChunkToolCall:
		if c.ToolCall != nil {
			fmt.Printf("[%s] (tool) %s %s\n", c.Source, c.ToolCall.Name, c.ToolCall.ArgsJSON)
		}
	case agent.ChunkError:
		fmt.Printf("[%s] (error) %s\n", c.Source, c.ErrorMessage)
	}
}

func main() {
	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Name("massgen"),
		kong.Description("Binary-decision multi-agent coordination demo"),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	logger.Init(level, os.Stderr, cli.LogFormat)

	err = kctx.Run(&cli)
	kctx.FatalIfErrorf(err)
}
