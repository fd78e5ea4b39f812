package adapters

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/compresr/llm-relay/internal/auth"
)

// DefaultRelayReadLimit bounds a single realtime message (audio frames are large).
const DefaultRelayReadLimit = 16 << 20

// maxCloseReason is the largest close reason a control frame can carry.
const maxCloseReason = 123

// Relayer is implemented by strategies that can open an upstream socket.
type Relayer interface {
	DialUpstream(ctx context.Context, rc *RequestContext, d auth.Details) (*websocket.Conn, *http.Response, error)
}

// Relay pumps messages both ways until either side closes or fails, then
// closes both sockets with a valid close code. closeTimeout bounds how long
// the closing handshakes may take.
func Relay(ctx context.Context, client, upstream *websocket.Conn, closeTimeout time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client.SetReadLimit(DefaultRelayReadLimit)
	upstream.SetReadLimit(DefaultRelayReadLimit)

	errc := make(chan error, 2)
	go func() { errc <- pump(ctx, upstream, client) }()
	go func() { errc <- pump(ctx, client, upstream) }()

	first := <-errc
	cancel()

	code, reason := closeStatus(first)
	closeBoth(client, upstream, code, reason, closeTimeout)
	<-errc

	if isCleanClose(first) {
		return nil
	}
	return first
}

// pump copies messages from src to dst.
func pump(ctx context.Context, dst, src *websocket.Conn) error {
	for {
		typ, data, err := src.Read(ctx)
		if err != nil {
			return err
		}
		if err := dst.Write(ctx, typ, data); err != nil {
			return err
		}
	}
}

// closeStatus maps the error that ended the relay to a code that may be sent
// on the wire. 1005, 1006 and 1015 are reserved for local reporting.
func closeStatus(err error) (websocket.StatusCode, string) {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		reason := ce.Reason
		if len(reason) > maxCloseReason {
			reason = reason[:maxCloseReason]
		}
		switch ce.Code {
		case websocket.StatusNoStatusRcvd, websocket.StatusAbnormalClosure, websocket.StatusTLSHandshake:
			return websocket.StatusNormalClosure, reason
		}
		return ce.Code, reason
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return websocket.StatusGoingAway, "relay closed"
	}
	return websocket.StatusInternalError, "upstream relay error"
}

func isCleanClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway, websocket.StatusNoStatusRcvd:
		return true
	}
	return errors.Is(err, context.Canceled)
}

// closeBoth closes both sockets in parallel, forcing them shut after timeout.
func closeBoth(a, b *websocket.Conn, code websocket.StatusCode, reason string, timeout time.Duration) {
	var wg sync.WaitGroup
	for _, c := range []*websocket.Conn{a, b} {
		wg.Add(1)
		go func(c *websocket.Conn) {
			defer wg.Done()
			done := make(chan struct{})
			go func() {
				defer close(done)
				_ = c.Close(code, reason)
			}()
			select {
			case <-done:
			case <-time.After(timeout):
				_ = c.CloseNow()
				log.Debug().Int("code", int(code)).Msg("websocket: forced close after timeout")
			}
		}(c)
	}
	wg.Wait()
}
