// Command pathfinderctl is a small operator CLI for the Pathfinder API:
// submit runs, poll status, request stops and browse artifacts.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cortexlab/pathfinder/pkg/client"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(logger, os.Args[1:]); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: pathfinderctl [-addr URL] <command> [args]

commands:
  run <task>        submit an agent run and wait for the result
  search <task>     submit a deep search and wait for the result
  status <id>       query a single job status
  stop              request the running agent to stop
  stop-search       request the running deep search to stop
  config            print the server's default agent configuration
  recordings        list recorded run videos
  history           list stored agent history files
  health            check the API`)
}

func run(logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("pathfinderctl", flag.ExitOnError)
	addr := fs.String("addr", envOr("PATHFINDER_ADDR", "http://127.0.0.1:8000"), "pathfinder API base URL")
	wait := fs.Duration("wait", 10*time.Minute, "max time to wait for a submitted job")
	interval := fs.Duration("interval", 2*time.Second, "poll interval")
	fs.Usage = usage
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		usage()
		return errors.New("missing command")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := client.New(*addr)
	opts := client.PollOptions{Interval: *interval, MaxWait: *wait}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "run":
		if len(rest) == 0 {
			return errors.New("run: task argument required")
		}
		return runAgent(ctx, logger, c, rest[0], opts)
	case "search":
		if len(rest) == 0 {
			return errors.New("search: task argument required")
		}
		return runSearch(ctx, logger, c, rest[0], opts)
	case "status":
		if len(rest) == 0 {
			return errors.New("status: id argument required")
		}
		return printStatus(ctx, c, rest[0])
	case "stop":
		ack, err := c.StopAgent(ctx)
		if err != nil {
			return err
		}
		fmt.Println(ack.Message)
		return nil
	case "stop-search":
		ack, err := c.StopDeepSearch(ctx)
		if err != nil {
			return err
		}
		fmt.Println(ack.Message)
		return nil
	case "config":
		cfg, err := c.DefaultConfig(ctx)
		if err != nil {
			return err
		}
		return printJSON(cfg)
	case "recordings":
		recs, err := c.Recordings(ctx)
		if err != nil {
			return err
		}
		for _, r := range recs {
			fmt.Println(r.Name)
		}
		return nil
	case "history":
		files, err := c.HistoryFiles(ctx)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Println(f)
		}
		return nil
	case "health":
		ack, err := c.Health(ctx)
		if err != nil {
			return err
		}
		fmt.Println(ack.Message)
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runAgent(ctx context.Context, logger *slog.Logger, c *client.Client, task string, opts client.PollOptions) error {
	id, err := c.SubmitAgentRun(ctx, client.AgentRunRequest{Task: task})
	if err != nil {
		return err
	}
	logger.Info("agent run submitted", "task_id", id)

	snap, err := c.WaitForAgent(ctx, id, opts)
	var jobErr *client.JobFailedError
	if errors.As(err, &jobErr) {
		fmt.Fprintln(os.Stderr, jobErr.Message)
		return printJSON(snap)
	}
	if err != nil {
		return err
	}
	return printJSON(snap)
}

func runSearch(ctx context.Context, logger *slog.Logger, c *client.Client, task string, opts client.PollOptions) error {
	id, err := c.SubmitDeepSearch(ctx, client.DeepSearchRequest{ResearchTask: task})
	if err != nil {
		return err
	}
	logger.Info("deep search submitted", "task_id", id)

	snap, err := c.WaitForDeepSearch(ctx, id, opts)
	var jobErr *client.JobFailedError
	if errors.As(err, &jobErr) {
		fmt.Fprintln(os.Stderr, jobErr.Message)
		return printJSON(snap)
	}
	if err != nil {
		return err
	}
	if snap.MarkdownContent != "" {
		fmt.Println(snap.MarkdownContent)
		return nil
	}
	return printJSON(snap)
}

func printStatus(ctx context.Context, c *client.Client, id string) error {
	snap, err := c.AgentStatus(ctx, id)
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.NotFound() {
			return fmt.Errorf("task %s not found", id)
		}
		return err
	}
	return printJSON(snap)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
