package stream

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"auction-client/internal/domain"

	"github.com/gorilla/websocket"
)

// HTTPDialer opens the push channel as a persistent HTTP response body
// carrying newline-delimited JSON frames. The credential travels as a query
// parameter, which is what the server expects for this endpoint.
type HTTPDialer struct {
	client *http.Client
}

func NewHTTPDialer() *HTTPDialer {
	// No client timeout: the response body is expected to stay open.
	return &HTTPDialer{client: &http.Client{}}
}

func (d *HTTPDialer) Dial(ctx context.Context, endpoint, token string) (domain.StreamConn, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse stream endpoint: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "application/x-ndjson")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dial stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("dial stream: unexpected status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &httpStreamConn{body: resp.Body, scanner: scanner}, nil
}

type httpStreamConn struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func (c *httpStreamConn) ReadFrame() ([]byte, error) {
	for c.scanner.Scan() {
		line := bytes.TrimSpace(c.scanner.Bytes())
		if len(line) == 0 {
			continue // keepalive
		}
		frame := make([]byte, len(line))
		copy(frame, line)
		return frame, nil
	}
	if err := c.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (c *httpStreamConn) Close() error {
	return c.body.Close()
}

// WebSocketDialer speaks the same JSON frames over a websocket, for servers
// exposing the push channel at a ws:// or wss:// endpoint.
type WebSocketDialer struct {
	dialer *websocket.Dialer
}

func NewWebSocketDialer() *WebSocketDialer {
	return &WebSocketDialer{dialer: websocket.DefaultDialer}
}

func (d *WebSocketDialer) Dial(ctx context.Context, endpoint, token string) (domain.StreamConn, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse stream endpoint: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, resp, err := d.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial websocket: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	return &wsStreamConn{conn: conn}, nil
}

type wsStreamConn struct {
	conn *websocket.Conn
}

func (c *wsStreamConn) ReadFrame() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsStreamConn) Close() error {
	return c.conn.Close()
}
