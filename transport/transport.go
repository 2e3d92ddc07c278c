// Package transport is the WebSocket adapter underneath the Glimesh client.
// It exposes a minimal text-message connection so the protocol engine can be
// exercised against in-memory fakes.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/httphead"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/glimesh/glimesh-go-sdk/frame"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed for the opening handshake.
	handshakeTimeout = 15 * time.Second
)

var ErrProtocol = errors.New("transport: websocket protocol violation")

var deflateName = []byte("permessage-deflate")

// Conn is an open, message-oriented socket.
type Conn interface {
	// ReadMessage blocks for the next complete text message.
	ReadMessage() ([]byte, error)

	// WriteMessage sends one text message. Safe for concurrent use.
	WriteMessage(data []byte) error

	// Close closes the connection. Calling it more than once is a no-op.
	Close() error
}

// Dialer opens a Conn to a websocket URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WSDialer dials with github.com/gobwas/ws.
type WSDialer struct {
	// Compression offers permessage-deflate during the handshake.
	Compression bool
	// Header is sent with the upgrade request.
	Header http.Header
	// Timeout bounds the handshake. Zero means 15s.
	Timeout time.Duration
}

// Dial performs the opening handshake.
func (d WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = handshakeTimeout
	}
	dialer := ws.Dialer{Timeout: timeout}
	if d.Compression {
		dialer.Extensions = []httphead.Option{frame.DeflateParameters.Option()}
	}
	if len(d.Header) > 0 {
		dialer.Header = ws.HandshakeHeaderHTTP(d.Header)
	}

	conn, br, hs, err := dialer.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	var deflate bool
	for _, opt := range hs.Extensions {
		if bytes.Equal(opt.Name, deflateName) {
			deflate = true
		}
	}
	return newConn(conn, br, deflate), nil
}

type wsConn struct {
	conn    net.Conn
	reader  io.Reader
	deflate bool

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

var _ Conn = (*wsConn)(nil)

func (c *wsConn) ReadMessage() ([]byte, error) {
	var (
		msg        []byte
		started    bool
		compressed bool
	)
	for {
		h, err := ws.ReadHeader(c.reader)
		if err != nil {
			return nil, err
		}
		if h.Length > frame.MaxFrameLen || int64(len(msg))+h.Length > frame.MaxFrameLen {
			return nil, frame.ErrFrameTooLarge
		}
		payload := make([]byte, h.Length)
		if _, err := io.ReadFull(c.reader, payload); err != nil {
			return nil, err
		}
		if h.Masked {
			ws.Cipher(payload, h.Mask, 0)
		}

		if h.OpCode.IsControl() {
			if err := c.handleControl(h, payload); err != nil {
				return nil, err
			}
			continue
		}

		switch h.OpCode {
		case ws.OpText, ws.OpBinary:
			if started {
				return nil, fmt.Errorf("%w: new message inside fragmented message", ErrProtocol)
			}
			started = true
			compressed = c.deflate && h.Rsv1()
			msg = payload
		case ws.OpContinuation:
			if !started {
				return nil, fmt.Errorf("%w: continuation without start", ErrProtocol)
			}
			msg = append(msg, payload...)
		default:
			return nil, fmt.Errorf("%w: opcode %d", ErrProtocol, h.OpCode)
		}

		if h.Fin {
			break
		}
	}

	if compressed {
		out, err := frame.Decompress(msg)
		if err != nil {
			return nil, fmt.Errorf("inflate: %w", err)
		}
		return out, nil
	}
	return msg, nil
}

func (c *wsConn) handleControl(h ws.Header, payload []byte) error {
	switch h.OpCode {
	case ws.OpPing:
		return c.write(ws.NewPongFrame(payload))
	case ws.OpPong:
		return nil
	case ws.OpClose:
		code, reason := ws.ParseCloseFrameData(payload)
		_ = c.write(ws.NewCloseFrame(ws.NewCloseFrameBody(code, "")))
		return wsutil.ClosedError{Code: code, Reason: reason}
	}
	return nil
}

// WriteMessage never modifies data; masking works on a private copy.
func (c *wsConn) WriteMessage(data []byte) error {
	var (
		payload []byte
		rsv     byte
	)
	if c.deflate {
		if compressed, ok := frame.Compress(data); ok {
			payload = compressed
			rsv = ws.Rsv(true, false, false)
		}
	}
	if payload == nil {
		payload = append([]byte(nil), data...)
	}

	f := ws.NewFrame(ws.OpText, true, payload)
	f.Header.Rsv = rsv
	return c.write(f)
}

func (c *wsConn) write(f ws.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	defer c.conn.SetWriteDeadline(time.Time{})
	return ws.WriteFrame(c.conn, ws.MaskFrameInPlace(f))
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.write(ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusNormalClosure, "")))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// newConn wraps an upgraded client connection. br holds any bytes the server
// sent right behind the handshake response.
func newConn(conn net.Conn, br *bufio.Reader, deflate bool) *wsConn {
	c := &wsConn{conn: conn, reader: conn, deflate: deflate}
	if br != nil {
		c.reader = br
	}
	return c
}
