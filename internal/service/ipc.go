package service

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
)

// request is the newline-delimited JSON envelope a peer sends, a tagged
// variant keyed by field name (spec.md 4.8/6: `{"QueryTask":{"task_id":
// "…"}}`, `{"GraphChanged":{}}`). Exactly one field is populated.
type request struct {
	QueryTask    *queryTaskRequest `json:"QueryTask,omitempty"`
	GraphChanged *struct{}         `json:"GraphChanged,omitempty"`
	Ping         *struct{}         `json:"Ping,omitempty"`
}

type queryTaskRequest struct {
	TaskID string `json:"task_id"`
}

// response is the single reply shape for every request kind.
type response struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Status   string `json:"status,omitempty"`
	Title    string `json:"title,omitempty"`
	Assigned string `json:"assigned,omitempty"`
}

const (
	ipcReadTimeout  = 5 * time.Second
	ipcWriteTimeout = 2 * time.Second
)

// serve accepts connections on ln until ctx is cancelled or the listener is
// closed, handling each on its own goroutine (spec.md 4.8: "Socket is local
// and trusted; no auth").
func (d *Daemon) serve(ctx context.Context, ln net.Listener) {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.Logger.Warn("service: accept failed", "error", err)
			continue
		}
		go d.handleConn(ctx, conn)
	}
}

func (d *Daemon) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(ipcReadTimeout))

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			d.writeResponse(conn, response{OK: false, Error: fmt.Sprintf("decode request: %v", err)})
			continue
		}
		resp := d.dispatch(ctx, req)
		if !d.writeResponse(conn, resp) {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(ipcReadTimeout))
	}
	if err := scanner.Err(); err != nil {
		d.Logger.Debug("service: connection read error", "error", err)
	}
}

func (d *Daemon) writeResponse(conn net.Conn, resp response) bool {
	b, err := json.Marshal(resp)
	if err != nil {
		d.Logger.Error("service: marshal response", "error", err)
		return false
	}
	_ = conn.SetWriteDeadline(time.Now().Add(ipcWriteTimeout))
	if _, err := conn.Write(append(b, '\n')); err != nil {
		d.Logger.Debug("service: write response failed", "error", err)
		return false
	}
	return true
}

func (d *Daemon) dispatch(ctx context.Context, req request) response {
	switch {
	case req.QueryTask != nil:
		return d.queryTask(req.QueryTask.TaskID)
	case req.GraphChanged != nil:
		d.wake()
		return response{OK: true}
	case req.Ping != nil:
		return response{OK: true}
	default:
		return response{OK: false, Error: "unrecognized request"}
	}
}

// queryTask answers a peer's QueryTask request by loading the local graph
// under lock and reporting the task's status, used by federation's
// ResolveRemoteTaskStatus (spec.md 4.8/4.9).
func (d *Daemon) queryTask(taskID string) response {
	g, err := graphstore.Load(d.graphPath())
	if err != nil {
		return response{OK: false, Error: fmt.Sprintf("load graph: %v", err)}
	}
	t := g.GetTask(taskID)
	if t == nil {
		return response{OK: false, Error: fmt.Sprintf("task %q not found", taskID)}
	}
	var assigned string
	if t.Assigned != nil {
		assigned = *t.Assigned
	}
	return response{OK: true, Status: string(t.Status), Title: t.Title, Assigned: assigned}
}

// listen opens the Unix domain socket at SocketPath(wgDir), removing a
// stale socket file left by a crashed daemon first.
func listen(wgDir string) (net.Listener, error) {
	path := SocketPath(wgDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("service: mkdir socket dir: %w", err)
	}
	if IsRunning(wgDir) {
		return nil, fmt.Errorf("service: a daemon is already running for %s", wgDir)
	}
	_ = os.Remove(path) // stale socket from a crashed daemon
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("service: listen on %s: %w", path, err)
	}
	return ln, nil
}
