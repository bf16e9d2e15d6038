package feed

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsReadTimeout = 90 * time.Second

// WSDialer implements Dialer over gorilla/websocket with the graphql-ws
// subprotocol the books negotiate.
type WSDialer struct {
	URL string
}

func (d *WSDialer) Dial(ctx context.Context, token string) (Transport, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{"graphql-transport-ws"},
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := dialer.DialContext(ctx, d.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", d.URL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}

	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	return &wsTransport{conn: conn}, nil
}

// wsTransport wraps one websocket connection. gorilla allows one
// concurrent reader and one concurrent writer; the session loop is the
// only reader and writes are serialized with a mutex.
type wsTransport struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (t *wsTransport) Send(ctx context.Context, data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	deadline := time.Now().Add(10 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	t.conn.SetWriteDeadline(deadline)
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Receive blocks on the next text frame. Ctx cancellation is honored by
// closing the connection, which fails the pending read.
func (t *wsTransport) Receive(ctx context.Context) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		t.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, data, err := t.conn.ReadMessage()
		ch <- result{data, err}
	}()

	select {
	case <-ctx.Done():
		t.Close()
		<-ch // reap the reader goroutine
		return nil, ctx.Err()
	case r := <-ch:
		return r.data, r.err
	}
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = t.conn.Close()
	})
	return err
}
