// Command workgraphctl is a minimal operator CLI used to exercise the
// daemon's IPC surface end to end (spec.md 4.8) — not the general-purpose
// argument-parsing CLI spec.md §1 excludes from this core.
//
// Usage:
//
//	workgraphctl <project-root> ping
//	workgraphctl <project-root> query-task <task-id>
//	workgraphctl <project-root> graph-changed
//	workgraphctl <project-root> ready
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/wgraph/engine/internal/graphstore"
	"github.com/wgraph/engine/internal/readiness"
	"github.com/wgraph/engine/internal/service"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "workgraphctl:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: workgraphctl <project-root> <ping|query-task <id>|graph-changed|ready>")
	}
	root, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	wgDir := filepath.Join(root, ".workgraph")

	switch args[1] {
	case "ready":
		return cmdReady(wgDir)
	case "ping":
		resp, err := sendIPC(wgDir, map[string]any{"Ping": struct{}{}})
		if err != nil {
			return err
		}
		fmt.Println(resp)
		return nil
	case "graph-changed":
		resp, err := sendIPC(wgDir, map[string]any{"GraphChanged": struct{}{}})
		if err != nil {
			return err
		}
		fmt.Println(resp)
		return nil
	case "query-task":
		if len(args) < 3 {
			return fmt.Errorf("usage: workgraphctl <project-root> query-task <task-id>")
		}
		resp, err := sendIPC(wgDir, map[string]any{
			"QueryTask": map[string]string{"task_id": args[2]},
		})
		if err != nil {
			return err
		}
		fmt.Println(resp)
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[1])
	}
}

// cmdReady loads the graph directly (no daemon required) and prints the
// currently ready task ids, one per line — useful for scripting and for
// verifying readiness.ReadyTasks end to end.
func cmdReady(wgDir string) error {
	g, err := graphstore.Load(filepath.Join(wgDir, "graph.jsonl"))
	if err != nil {
		return fmt.Errorf("load graph: %w", err)
	}
	for _, t := range readiness.ReadyTasks(g, time.Now()) {
		fmt.Println(t.ID)
	}
	return nil
}

// sendIPC connects to the daemon's Unix socket, sends one newline-delimited
// JSON request, and returns the raw reply line.
func sendIPC(wgDir string, req map[string]any) (string, error) {
	if !service.IsRunning(wgDir) {
		return "", fmt.Errorf("no workgraphd running for %s", wgDir)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", service.SocketPath(wgDir))
	if err != nil {
		return "", fmt.Errorf("dial socket: %w", err)
	}
	defer conn.Close()

	line, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Write(append(line, '\n')); err != nil {
		return "", fmt.Errorf("write request: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	scanner := bufio.NewScanner(conn)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return "", fmt.Errorf("no response from daemon")
}
