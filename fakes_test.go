package glimesh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/glimesh/glimesh-go-sdk/frame"
	"github.com/glimesh/glimesh-go-sdk/transport"
)

// fakeConn implements transport.Conn in memory.
type fakeConn struct {
	incoming chan []byte
	writes   chan frame.Frame

	mu       sync.Mutex
	written  []frame.Frame
	attempts int
	writeErr error

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan []byte, 16),
		writes:   make(chan frame.Frame, 256),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.incoming:
		return data, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	select {
	case <-c.closed:
		return errors.New("fake: write on closed conn")
	default:
	}
	if c.writeErr != nil {
		return c.writeErr
	}
	f, err := frame.Decode(data)
	if err != nil {
		return err
	}
	c.written = append(c.written, f)
	select {
	case c.writes <- f:
	default:
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) setWriteErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

func (c *fakeConn) writtenFrames() []frame.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]frame.Frame, len(c.written))
	copy(cp, c.written)
	return cp
}

func (c *fakeConn) writeAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// push delivers a raw server frame to the client.
func (c *fakeConn) push(t *testing.T, data string) {
	t.Helper()
	select {
	case c.incoming <- []byte(data):
	case <-time.After(time.Second):
		t.Fatal("timeout pushing frame")
	}
}

// waitFor returns the next written frame with the given event.
func (c *fakeConn) waitFor(t *testing.T, event string) frame.Frame {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case f := <-c.writes:
			if f.Event == event {
				return f
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %q frame", event)
		}
	}
}

// fakeDialer hands out one fakeConn.
type fakeDialer struct {
	conn *fakeConn
	err  error

	mu   sync.Mutex
	urls []string
}

var _ transport.Dialer = (*fakeDialer)(nil)

func (d *fakeDialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func (d *fakeDialer) dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.urls...)
}

// lookupRequest is what the GraphQL endpoint received.
type lookupRequest struct {
	Authorization string
	ContentType   string
	Query         string
	Variables     map[string]any
}

// newLookupServer answers every request with body and records requests.
func newLookupServer(t *testing.T, status int, body string) (*httptest.Server, <-chan lookupRequest) {
	t.Helper()
	requests := make(chan lookupRequest, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var doc struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		json.NewDecoder(r.Body).Decode(&doc)
		requests <- lookupRequest{
			Authorization: r.Header.Get("Authorization"),
			ContentType:   r.Header.Get("Content-Type"),
			Query:         doc.Query,
			Variables:     doc.Variables,
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, requests
}

func httptestServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func channelBody(id string) string {
	return fmt.Sprintf(`{"data":{"channel":{"id":%q}}}`, id)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(dialer transport.Dialer, apiURL string) Config {
	return Config{
		Endpoint:    "wss://glimesh.test/api/socket/websocket",
		APIEndpoint: apiURL,
		Token:       "secret-token",
		Dialer:      dialer,
		Logger:      testLogger(),
	}
}

// connectReady connects against a fake socket and a lookup server that
// resolves every channel to 42.
func connectReady(t *testing.T) (*Client, *fakeConn) {
	t.Helper()
	srv, _ := newLookupServer(t, http.StatusOK, channelBody("42"))
	conn := newFakeConn()
	c := New(testConfig(&fakeDialer{conn: conn}, srv.URL))
	t.Cleanup(func() { c.Close() })

	meta, err := c.Connect(context.Background(), "alice")
	require.NoError(t, err)
	require.True(t, meta.Connected)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.WaitReady(ctx))
	conn.waitFor(t, frame.EventDoc)
	return c, conn
}

type docPayload struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func decodeDoc(t *testing.T, f frame.Frame) docPayload {
	t.Helper()
	var doc docPayload
	require.NoError(t, json.Unmarshal(f.Payload, &doc))
	return doc
}
