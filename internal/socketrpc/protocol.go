package socketrpc

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/braidlog/braid/internal/model"
)

// JSON-RPC 2.0 Method Reference
//
// The socket RPC server exposes model.ReadAPI over a Unix domain socket.
// Each method maps 1:1 to the interface.
//
//   Method            Params                               Result
//   ───────────────   ──────────────────────────────────   ──────────────────────
//   ManifestInfo      (none)                               model.ManifestInfo
//   FilteredTotal     (none)                               int64
//   ReadRangeByIdx    {StartIdx: int64, EndIdx: int64}     RangeResult
//   SetFilter         {Filter: model.Filter|null}          true
//   ClearFilter       (none)                               true
//   SetManifestDir    {Dir: string}                        true
//
// SetFilter with a null or empty filter clears, matching the pager contract.
//
// Error codes follow JSON-RPC 2.0:
//   -32700  Parse error (malformed JSON)
//   -32601  Method not found
//   -32602  Invalid params
//   -32603  Internal error (marshal failure)
//   -32000  Application error (pager failure)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Message }

// RangeResult carries a range read together with the view it was served
// from, so the caller can detect a total/version change.
type RangeResult struct {
	Entries []model.LogEntry `json:"entries"`
	View    model.View       `json:"view"`
}

// DefaultSocketPath returns the default Unix socket path.
// It prefers $XDG_RUNTIME_DIR/braid/braid.sock, falling back to
// ~/.local/state/braid/braid.sock.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "braid", "braid.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/braid.sock"
	}
	return filepath.Join(home, ".local", "state", "braid", "braid.sock")
}
