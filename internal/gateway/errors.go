package gateway

import (
	"net/http"

	"github.com/compresr/llm-relay/internal/auth/types"
)

// TerminalError is a response-shaped failure that ends the dispatch loop.
type TerminalError = types.TerminalError

func writeTerminal(w http.ResponseWriter, terr *TerminalError) {
	terr.WriteTo(w)
}
