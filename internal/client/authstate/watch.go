package authstate

import (
	"context"
	"fmt"
	"net/http"

	wstypes "objettrouve-service/internal/domain/websocket"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Watch listens on the server push channel and applies session events to f
// until ctx is done or the connection drops. jar must hold the session cookie.
func Watch(ctx context.Context, wsURL string, jar http.CookieJar, f *Facade) error {
	dialer := websocket.Dialer{
		Jar:              jar,
		HandshakeTimeout: websocket.DefaultDialer.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		msg, err := wstypes.ParseMessage(data)
		if err != nil {
			f.logger.Debug("ignoring malformed push message", zap.Error(err))
			continue
		}
		applyEvent(f, msg)
	}
}

func applyEvent(f *Facade, msg *wstypes.WSMessage) {
	switch msg.Type {
	case wstypes.EventTypeSessionRefresh:
		f.Invalidate()
	case wstypes.EventTypeForceLogout, wstypes.EventTypeSessionRevoked:
		f.logger.Info("server ended the session", zap.String("event", string(msg.Type)))
		f.Clear()
	}
}
