package socketrpc

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// JSON-RPC 2.0 Method Reference
//
// The socket RPC server exposes model.QuoteReader over a Unix domain socket,
// one newline-delimited JSON object per request and response.
//
//   Method          Params                             Result
//   ─────────────   ────────────────────────────────   ──────────────────
//   LatestQuotes    {Filter: {Query: string}}          []Quote
//   TrendingCoins   {Limit: int}                       []Quote
//   PriceHistory    {Symbol: string, Buckets: int}     []PricePoint
//   TradeCounts     (none)                             []SymbolCount
//
// LatestQuotes and TradeCounts accept empty or null params.
//
// Error codes follow JSON-RPC 2.0:
//   -32700  Parse error (malformed JSON)
//   -32601  Method not found
//   -32602  Invalid params
//   -32603  Internal error (marshal failure)
//   -32000  Application error (query failure)

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternal       = -32603
	codeApplication    = -32000
)

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

// DefaultSocketPath returns $XDG_RUNTIME_DIR/cryptomonitor/monitor.sock,
// falling back to ~/.local/state/cryptomonitor/monitor.sock.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "cryptomonitor", "monitor.sock")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "cryptomonitor.sock")
	}
	return filepath.Join(home, ".local", "state", "cryptomonitor", "monitor.sock")
}
