package federation

import (
	"encoding/json"
	"os"
	"path/filepath"
	"syscall"
)

// PeerState mirrors the shape internal/service writes to
// <wgDir>/service/state.json on startup.
type PeerState struct {
	PID        int    `json:"pid"`
	SocketPath string `json:"socket_path"`
	StartedAt  string `json:"started_at,omitempty"`
}

// PeerServiceStatus is the liveness of a peer's workgraph daemon.
type PeerServiceStatus struct {
	Running    bool
	PID        int
	SocketPath string
	StartedAt  string
}

// CheckPeerService reads <workgraphDir>/service/state.json and checks
// whether the recorded PID is alive (spec.md 4.9).
func CheckPeerService(workgraphDir string) PeerServiceStatus {
	path := filepath.Join(workgraphDir, "service", "state.json")
	b, err := os.ReadFile(path)
	if err != nil {
		return PeerServiceStatus{}
	}
	var state PeerState
	if err := json.Unmarshal(b, &state); err != nil {
		return PeerServiceStatus{}
	}
	return PeerServiceStatus{
		Running:    isPIDAlive(state.PID),
		PID:        state.PID,
		SocketPath: state.SocketPath,
		StartedAt:  state.StartedAt,
	}
}

// isPIDAlive reports whether a process with the given PID exists, using
// signal 0 which performs permission/existence checks without delivering a
// signal.
func isPIDAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}
