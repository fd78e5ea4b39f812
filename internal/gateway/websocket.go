package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/compresr/llm-relay/internal/adapters"
	"github.com/compresr/llm-relay/internal/auth"
	"github.com/compresr/llm-relay/internal/monitoring"
)

// handleWebSocket opens the upstream socket first, retrying handshakes the
// same way as HTTP attempts, and only then accepts the client. A failed
// upstream handshake is relayed to the caller as a plain HTTP response.
func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request, rc *adapters.RequestContext, s adapters.Strategy, ev *monitoring.RequestEvent) {
	kind := s.Name().String()
	relayer, ok := s.(adapters.Relayer)
	if !ok {
		g.fail(w, ev, auth.BadRequest("realtime sockets are not supported on this route"))
		return
	}

	ctx := r.Context()
	var (
		upstream   *websocket.Conn
		lastErr    *http.Response
		maxRetries = 1
	)
	for attempt := 1; attempt <= maxRetries; attempt++ {
		d, terr := s.Authenticate(ctx, rc, attempt)
		if terr != nil {
			g.fail(w, ev, terr)
			return
		}
		if attempt == 1 {
			maxRetries = max(d.MaxRetries, 1)
		}
		ev.Attempts = attempt
		ev.CredentialSource = string(d.Source)

		conn, resp, err := relayer.DialUpstream(ctx, rc, d)
		if err == nil {
			g.metrics.RecordAttempt(kind, string(d.Source), attempt, http.StatusSwitchingProtocols)
			upstream = conn
			break
		}
		var dialTerr *TerminalError
		if errors.As(err, &dialTerr) {
			g.fail(w, ev, dialTerr)
			return
		}
		if resp == nil {
			log.Error().Err(err).Str("request_id", rc.RequestID).Int("attempt", attempt).Msg("websocket: upstream dial failed")
			g.fail(w, ev, auth.Internal("upstream connection failed"))
			return
		}
		g.metrics.RecordAttempt(kind, string(d.Source), attempt, resp.StatusCode)
		lastErr = bufferResponse(resp)
		log.Warn().
			Str("request_id", rc.RequestID).
			Int("attempt", attempt).
			Int("status", resp.StatusCode).
			Msg("websocket: upstream rejected handshake")
	}

	if upstream == nil {
		if lastErr == nil {
			g.fail(w, ev, auth.BadGateway("no upstream response"))
			return
		}
		g.writeResponse(w, lastErr)
		g.finish(ev, lastErr.StatusCode, "upstream rejected handshake")
		return
	}

	opts := &websocket.AcceptOptions{
		// Origin is not checked; callers authenticate with their credential.
		InsecureSkipVerify: true,
	}
	if sp := upstream.Subprotocol(); sp != "" {
		opts.Subprotocols = []string{sp}
	}
	client, err := websocket.Accept(w, r, opts)
	if err != nil {
		log.Warn().Err(err).Str("request_id", rc.RequestID).Msg("websocket: client handshake failed")
		_ = upstream.CloseNow()
		g.finish(ev, http.StatusBadRequest, "client handshake failed")
		return
	}
	g.finish(ev, http.StatusSwitchingProtocols, "")

	done := g.metrics.RelayOpened()
	defer done()
	log.Info().Str("request_id", rc.RequestID).Str("path", r.URL.Path).Msg("websocket: relay started")

	if err := adapters.Relay(ctx, client, upstream, g.closeTimeout); err != nil {
		log.Warn().Err(err).Str("request_id", rc.RequestID).Msg("websocket: relay ended with error")
		return
	}
	log.Info().Str("request_id", rc.RequestID).Dur("duration", time.Since(ev.Timestamp)).Msg("websocket: relay closed")
}
