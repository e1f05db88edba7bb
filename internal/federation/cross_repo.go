package federation

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wgraph/engine/internal/corelib/resilience"
	"github.com/wgraph/engine/internal/graph"
	"github.com/wgraph/engine/internal/graphstore"
)

// ParseRemoteRef splits a cross-repo dependency like "peer:task-id" into its
// peer name and task id. Local task ids are slug-based (lowercase
// alphanumeric plus dashes, no colons), so splitting on the first colon is
// unambiguous. Returns ok=false if either half is empty or dep has no colon
// (spec.md 4.9).
func ParseRemoteRef(dep string) (peer, taskID string, ok bool) {
	idx := strings.IndexByte(dep, ':')
	if idx < 0 {
		return "", "", false
	}
	peer, taskID = dep[:idx], dep[idx+1:]
	if peer == "" || taskID == "" {
		return "", "", false
	}
	return peer, taskID, true
}

// RemoteResolutionKind discriminates how a RemoteTaskStatus was resolved.
type RemoteResolutionKind string

const (
	ResolutionIPC         RemoteResolutionKind = "ipc"
	ResolutionDirectFile   RemoteResolutionKind = "direct-file-access"
	ResolutionUnreachable RemoteResolutionKind = "unreachable"
)

// RemoteTaskStatus is the outcome of resolving a remote peer's task status.
type RemoteTaskStatus struct {
	TaskID     string
	Status     graph.Status
	Title      string
	Assigned   string
	Resolution RemoteResolutionKind
	Reason     string // populated when Resolution == ResolutionUnreachable
}

// peerBreaker guards repeated IPC attempts against a peer whose socket is
// dead, so a stalled peer doesn't cost a full dial timeout on every tick.
var peerBreaker = resilience.NewCircuitBreaker(30*time.Second, 6, 3, 0.5, 10*time.Second, 1)

// ResolveRemoteTaskStatus resolves task_id's status in peerName's workgraph,
// trying the peer's running IPC service first and falling back to a direct
// graph.jsonl read (spec.md 4.9).
func ResolveRemoteTaskStatus(ctx context.Context, peerName, taskID, localWGDir string) RemoteTaskStatus {
	resolved, err := ResolvePeer(peerName, localWGDir)
	if err != nil {
		return RemoteTaskStatus{
			TaskID:     taskID,
			Status:     graph.StatusOpen,
			Resolution: ResolutionUnreachable,
			Reason:     fmt.Sprintf("cannot resolve peer %q: %v", peerName, err),
		}
	}

	svc := CheckPeerService(resolved.WorkgraphDir)
	if svc.Running && svc.SocketPath != "" && peerBreaker.Allow() {
		status, err := queryTaskViaIPC(ctx, svc.SocketPath, taskID)
		if err == nil {
			peerBreaker.RecordResult(true)
			return status
		}
		peerBreaker.RecordResult(false)
	}

	graphPath := filepath.Join(resolved.WorkgraphDir, "graph.jsonl")
	if _, err := os.Stat(graphPath); err != nil {
		return RemoteTaskStatus{
			TaskID:     taskID,
			Status:     graph.StatusOpen,
			Resolution: ResolutionUnreachable,
			Reason:     fmt.Sprintf("no graph.jsonl at peer %q", peerName),
		}
	}

	g, err := graphstore.Load(graphPath)
	if err != nil {
		return RemoteTaskStatus{
			TaskID:     taskID,
			Status:     graph.StatusOpen,
			Resolution: ResolutionUnreachable,
			Reason:     fmt.Sprintf("failed to load peer %q graph: %v", peerName, err),
		}
	}
	task := g.GetTask(taskID)
	if task == nil {
		return RemoteTaskStatus{
			TaskID:     taskID,
			Status:     graph.StatusOpen,
			Resolution: ResolutionUnreachable,
			Reason:     fmt.Sprintf("task %q not found in peer %q", taskID, peerName),
		}
	}
	var assigned string
	if task.Assigned != nil {
		assigned = *task.Assigned
	}
	return RemoteTaskStatus{
		TaskID:     task.ID,
		Status:     task.Status,
		Title:      task.Title,
		Assigned:   assigned,
		Resolution: ResolutionDirectFile,
	}
}

type ipcQueryTaskRequest struct {
	QueryTask struct {
		TaskID string `json:"task_id"`
	} `json:"QueryTask"`
}

type ipcResponse struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error"`
	Status   string `json:"status"`
	Title    string `json:"title"`
	Assigned string `json:"assigned"`
}

// queryTaskViaIPC connects to a peer's Unix socket and asks for task_id's
// status, newline-delimited JSON both ways (spec.md 4.8/4.9).
func queryTaskViaIPC(ctx context.Context, socketPath, taskID string) (RemoteTaskStatus, error) {
	return resilience.Retry(ctx, 2, 50*time.Millisecond, func() (RemoteTaskStatus, error) {
		conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
		if err != nil {
			return RemoteTaskStatus{}, fmt.Errorf("federation: dial %s: %w", socketPath, err)
		}
		defer conn.Close()
		_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

		var req ipcQueryTaskRequest
		req.QueryTask.TaskID = taskID
		line, err := json.Marshal(req)
		if err != nil {
			return RemoteTaskStatus{}, err
		}
		if _, err := conn.Write(append(line, '\n')); err != nil {
			return RemoteTaskStatus{}, fmt.Errorf("federation: write ipc request: %w", err)
		}

		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			txt := scanner.Text()
			if txt == "" {
				continue
			}
			var resp ipcResponse
			if err := json.Unmarshal([]byte(txt), &resp); err != nil {
				return RemoteTaskStatus{}, fmt.Errorf("federation: decode ipc response: %w", err)
			}
			if !resp.OK {
				msg := resp.Error
				if msg == "" {
					msg = "unknown error"
				}
				return RemoteTaskStatus{}, fmt.Errorf("federation: ipc error: %s", msg)
			}
			return RemoteTaskStatus{
				TaskID:     taskID,
				Status:     parseStatusString(resp.Status),
				Title:      resp.Title,
				Assigned:   resp.Assigned,
				Resolution: ResolutionIPC,
			}, nil
		}
		if err := scanner.Err(); err != nil {
			return RemoteTaskStatus{}, fmt.Errorf("federation: read ipc response: %w", err)
		}
		return RemoteTaskStatus{}, fmt.Errorf("federation: no response from peer service")
	})
}

func parseStatusString(s string) graph.Status {
	switch strings.ToLower(s) {
	case "done":
		return graph.StatusDone
	case "open":
		return graph.StatusOpen
	case "inprogress", "in-progress":
		return graph.StatusInProgress
	case "pendingreview", "pending-review":
		return graph.StatusPendingReview
	case "failed":
		return graph.StatusFailed
	case "abandoned":
		return graph.StatusAbandoned
	case "blocked":
		return graph.StatusBlocked
	default:
		return graph.StatusOpen
	}
}
