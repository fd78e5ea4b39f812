// HTTP request handling for the relay.
//
// DESIGN: Main request flow:
//   - handleProxy():  entry point, classification, body capture
//   - dispatch():     retry loop over strategy attempts
//   - doAttempt():    one outbound call
//   - writeResponse(): streams the final response with flushing
//
// Also includes the health check.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/compresr/llm-relay/internal/adapters"
	"github.com/compresr/llm-relay/internal/auth"
	"github.com/compresr/llm-relay/internal/config"
	"github.com/compresr/llm-relay/internal/monitoring"
	"github.com/compresr/llm-relay/internal/utils"
)

// streamBufferSize is the copy buffer for streamed responses.
const streamBufferSize = 32 * 1024

// hopHeaders are connection-scoped and never copied to the caller.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// handleHealth returns gateway health status.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	}
	if g.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := g.health(ctx); err != nil {
			health["status"] = "degraded"
			health["error"] = err.Error()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if health["status"] != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(health)
}

// handleProxy classifies the request and dispatches it upstream.
func (g *Gateway) handleProxy(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	requestID := g.getRequestID(r)
	w.Header().Set(HeaderRequestID, requestID)
	ctx := r.Context()

	ev := &monitoring.RequestEvent{
		RequestID: requestID,
		Timestamp: startTime,
		Method:    r.Method,
		Path:      r.URL.Path,
		ClientIP:  clientIP(r),
		Strategy:  "none",
	}

	prefix, ok := matchPrefix(r.URL.Path, g.routes.Prefixes(ctx))
	if !ok {
		g.fail(w, ev, auth.Unavailable("no upstream configured for "+r.URL.Path))
		return
	}
	ev.Prefix = prefix

	r.Body = http.MaxBytesReader(w, r.Body, g.maxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			g.fail(w, ev, auth.TooLarge(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)))
			return
		}
		g.fail(w, ev, auth.BadRequest("failed to read request"))
		return
	}
	ev.RequestBodySize = len(body)

	rc := adapters.NewRequestContext(r, body, prefix, requestID)
	kind := g.kindFor(rc)
	if kind == adapters.KindPassthrough {
		rc.MappedBaseURL = g.routes.APIMappings(ctx)[prefix]
	}
	ev.Strategy = kind.String()
	ev.Model = requestModel(rc)
	ev.Stateful = rc.Stateful
	ev.WebSocket = rc.WebSocket

	strategy, err := g.strategies.Get(kind)
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID).Msg("strategy lookup failed")
		g.fail(w, ev, auth.Internal("no handler for "+kind.String()))
		return
	}

	log.Debug().
		Str("request_id", requestID).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("strategy", kind.String()).
		Bool("stateful", rc.Stateful).
		Bool("websocket", rc.WebSocket).
		Str("credential", utils.MaskKey(rc.Credential)).
		Msg("dispatching request")

	if rc.WebSocket {
		g.handleWebSocket(w, r, rc, strategy, ev)
		return
	}

	resp, terr := g.dispatch(ctx, rc, strategy, ev)
	if terr != nil {
		g.fail(w, ev, terr)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	g.writeResponse(w, resp)
	g.finish(ev, resp.StatusCode, "")
}

// dispatch runs the retry loop. The attempt budget is fixed by the first
// authentication. Non-2xx responses are buffered and retried while budget
// remains; the last one is returned when it runs out.
func (g *Gateway) dispatch(ctx context.Context, rc *adapters.RequestContext, s adapters.Strategy, ev *monitoring.RequestEvent) (*http.Response, *TerminalError) {
	var lastErr *http.Response
	maxRetries := 1

	for attempt := 1; attempt <= maxRetries; attempt++ {
		d, terr := s.Authenticate(ctx, rc, attempt)
		if terr != nil {
			return nil, terr
		}
		if attempt == 1 {
			maxRetries = max(d.MaxRetries, 1)
		}
		ev.Attempts = attempt
		ev.CredentialSource = string(d.Source)

		resp, err := g.doAttempt(ctx, rc, s, d)
		if err != nil {
			var terr *TerminalError
			if errors.As(err, &terr) {
				return nil, terr
			}
			log.Error().Err(err).
				Str("request_id", rc.RequestID).
				Str("strategy", s.Name().String()).
				Int("attempt", attempt).
				Msg("upstream request failed")
			return nil, auth.Internal("upstream request failed")
		}
		g.metrics.RecordAttempt(s.Name().String(), string(d.Source), attempt, resp.StatusCode)

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			out, err := s.TransformResponse(rc, d, resp)
			if err != nil {
				_ = resp.Body.Close()
				log.Error().Err(err).Str("request_id", rc.RequestID).Msg("response transform failed")
				return nil, auth.Internal("failed to transform upstream response")
			}
			return out, nil
		}

		lastErr = bufferResponse(resp)
		log.Warn().
			Str("request_id", rc.RequestID).
			Str("strategy", s.Name().String()).
			Str("source", string(d.Source)).
			Str("credential", utils.MaskKey(d.Credential)).
			Int("attempt", attempt).
			Int("max_retries", maxRetries).
			Int("status", lastErr.StatusCode).
			Str("body", truncateLogValue(peekBody(lastErr), config.MaxErrorBodyLogLen)).
			Msg("upstream returned error")
	}

	if lastErr != nil {
		return lastErr, nil
	}
	return nil, auth.BadGateway("no upstream response")
}

// doAttempt performs one outbound call. Strategy failures come back as
// *TerminalError inside err.
func (g *Gateway) doAttempt(ctx context.Context, rc *adapters.RequestContext, s adapters.Strategy, d auth.Details) (*http.Response, error) {
	target, terr := s.BuildTargetURL(rc, d)
	if terr != nil {
		return nil, terr
	}
	body, terr := s.TransformBody(rc)
	if terr != nil {
		return nil, terr
	}

	var reader io.Reader = http.NoBody
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, rc.Method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.Header = s.BuildHeaders(rc, d)
	req.ContentLength = int64(len(body))

	return g.client.Do(req)
}

// bufferResponse reads resp fully so it can be replayed after resp's
// connection is released.
func bufferResponse(resp *http.Response) *http.Response {
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		log.Debug().Err(err).Msg("error reading upstream error body")
	}
	out := &http.Response{
		Status:        resp.Status,
		StatusCode:    resp.StatusCode,
		Header:        resp.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: int64(len(data)),
	}
	if out.Header == nil {
		out.Header = http.Header{}
	}
	out.Header.Del("Content-Length")
	return out
}

// peekBody returns a buffered body without consuming it.
func peekBody(resp *http.Response) string {
	data, _ := io.ReadAll(resp.Body)
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return string(data)
}

// writeResponse copies status and headers, then streams the body with flushing.
func (g *Gateway) writeResponse(w http.ResponseWriter, resp *http.Response) {
	copyHeaders(w, resp.Header)
	if resp.ContentLength >= 0 && resp.Header.Get("Content-Length") == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
	w.WriteHeader(resp.StatusCode)
	g.streamResponse(w, resp.Body)
}

// streamResponse streams data from reader to writer with flushing.
func (g *Gateway) streamResponse(w http.ResponseWriter, reader io.Reader) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Warn().Msg("streaming not supported, falling back to buffered")
		_, _ = io.Copy(w, reader)
		return
	}

	buf := make([]byte, streamBufferSize)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				log.Debug().Err(writeErr).Msg("client disconnected")
				return
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				log.Debug().Err(err).Msg("error reading stream")
			}
			return
		}
	}
}

// fail writes a terminal error and records the request.
func (g *Gateway) fail(w http.ResponseWriter, ev *monitoring.RequestEvent, terr *TerminalError) {
	log.Debug().
		Str("request_id", ev.RequestID).
		Int("status", terr.Status).
		Str("type", terr.Type).
		Str("message", terr.Message).
		Msg("request ended with terminal error")
	writeTerminal(w, terr)
	g.finish(ev, terr.Status, terr.Message)
}

// finish stamps the final status on ev and records it in metrics and telemetry.
func (g *Gateway) finish(ev *monitoring.RequestEvent, status int, errMsg string) {
	elapsed := time.Since(ev.Timestamp)
	ev.StatusCode = status
	ev.Success = status < http.StatusBadRequest
	ev.Error = errMsg
	ev.TotalLatencyMs = elapsed.Milliseconds()

	g.metrics.RecordRequest(ev.Strategy, status, elapsed)
	g.telemetry.RecordRequest(ev)
}

// copyHeaders copies HTTP headers from source to destination, minus hop-by-hop headers.
func copyHeaders(w http.ResponseWriter, src http.Header) {
	for k, v := range src {
		w.Header()[k] = v
	}
	for _, h := range hopHeaders {
		w.Header().Del(h)
	}
}

// truncateLogValue shortens value for logging.
func truncateLogValue(value string, maxLen int) string {
	if maxLen <= 0 || len(value) <= maxLen {
		return value
	}
	return value[:maxLen] + "..."
}
