package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/gregriff/parley/internal/protocol"
)

// origin is sent on the handshake. There is no real origin b/c we're not a browser.
const origin = "app://parley"

// eventsURL converts the http(s) api origin into the websocket url of the events endpoint.
func eventsURL(apiOrigin, path string) string {
	loc := strings.TrimSuffix(apiOrigin, "/")
	if strings.HasPrefix(loc, "http") {
		loc = strings.Replace(loc, "http", "ws", 1)
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return loc + path
}

// newWebsocketConfig creates a websocket.Config for the events endpoint. The
// bearer token is presented once, on the request that initiates the ws connection.
func newWebsocketConfig(loc, token string) (*websocket.Config, error) {
	cfg, err := websocket.NewConfig(loc, origin)
	if err != nil {
		return nil, fmt.Errorf("invalid events url %q: %w", loc, err)
	}
	if token != "" {
		cfg.Header.Set("Authorization", "Bearer "+token)
	}
	return cfg, nil
}

// dial opens the websocket connection to the event server.
func dial(ctx context.Context, loc, token string) (*websocket.Conn, error) {
	cfg, err := newWebsocketConfig(loc, token)
	if err != nil {
		return nil, err
	}
	ws, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("error dialing ws: %w", err)
	}
	return ws, nil
}

// receive reads one frame from ws. Frames that are not a valid envelope
// are reported with ok=false and a nil error so the caller can skip them;
// a non-nil error means the connection is gone.
func receive(ws *websocket.Conn) (env protocol.Envelope, ok bool, err error) {
	var frame []byte
	if err = websocket.Message.Receive(ws, &frame); err != nil {
		return env, false, err
	}
	if jsonErr := json.Unmarshal(frame, &env); jsonErr != nil || env.Event == "" {
		return env, false, nil
	}
	return env, true, nil
}

// closeAndWait closes the websocket. wg should be the waitgroup
// for the goroutine reading the websocket; the blocked read unblocks on close.
func closeAndWait(ws *websocket.Conn, wg *sync.WaitGroup) {
	if ws != nil {
		_ = ws.Close() // errs if already closed
	}
	if wg != nil {
		wg.Wait()
	}
}
