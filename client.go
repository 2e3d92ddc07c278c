// Package glimesh provides a Go client for the Glimesh realtime chat API.
// It connects to the Phoenix channel socket, joins the Absinthe control
// channel, subscribes to a streamer's chat and provides typed helpers for
// sending messages and moderating users.
package glimesh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glimesh/glimesh-go-sdk/frame"
	"github.com/glimesh/glimesh-go-sdk/transport"
	"github.com/glimesh/glimesh-go-sdk/wire"
)

const messageBuffer = 256

type sendRequest struct {
	data   []byte
	result chan error
}

// Client is one chat connection to a single Glimesh channel.
type Client struct {
	cfg Config

	mu        sync.RWMutex
	logger    *slog.Logger
	state     State
	readOnly  bool
	channelID int
	api       *APIClient
	conn      transport.Conn
	joinErr   error

	// per connection; replaced by each successful Connect
	done          chan struct{}
	ready         chan struct{}
	sendCh        chan sendRequest
	messages      chan ChatMessage
	readStarted   bool // messages belongs to a read loop or is closed
	stopHeartbeat context.CancelFunc
	heartbeatDone chan struct{}
	loops         *sync.WaitGroup
}

// New creates an idle client. Nothing is dialed until Connect.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:      cfg,
		logger:   cfg.Logger,
		messages: make(chan ChatMessage, messageBuffer),
	}
}

// Connect opens the socket, joins the control channel and starts the
// heartbeat. The chat subscription is joined in the background; Connect
// returns Connected=true before it completes. Use WaitReady to observe it.
//
// With no token or client id configured Connect returns Connected=false and
// a nil error without dialing.
func (c *Client) Connect(ctx context.Context, channelName string) (ConnectionMetadata, error) {
	auth, err := ResolveAuth(c.cfg.Credentials())
	if errors.Is(err, ErrNoCredentials) {
		c.cfg.Logger.Warn("no credentials configured, not connecting")
		return ConnectionMetadata{}, nil
	}
	meta := ConnectionMetadata{ReadOnly: auth.Mode == ReadOnly}

	c.mu.Lock()
	switch c.state {
	case StateConnecting, StateJoining, StateReady:
		c.mu.Unlock()
		return meta, ErrAlreadyConnected
	case StateFailed:
		// a failed join leaves its socket open
		done := c.done
		c.mu.Unlock()
		if err := c.shutdown(done, ErrClosed); err != nil {
			c.cfg.Logger.Warn("closing failed connection", "error", err)
		}
		c.mu.Lock()
		if c.state != StateClosed && c.state != StateFailed {
			c.mu.Unlock()
			return meta, ErrAlreadyConnected
		}
	}

	if c.readStarted {
		c.messages = make(chan ChatMessage, messageBuffer)
		c.readStarted = false
	}
	c.state = StateConnecting
	c.readOnly = meta.ReadOnly
	c.channelID = 0
	c.joinErr = nil
	c.api = NewAPIClient(c.cfg, auth)
	c.done = make(chan struct{})
	c.ready = make(chan struct{})
	c.sendCh = make(chan sendRequest, 64)
	c.loops = &sync.WaitGroup{}
	c.logger = c.cfg.Logger.With("conn_id", uuid.NewString(), "channel", channelName)
	done, api, logger, loops := c.done, c.api, c.logger, c.loops
	c.mu.Unlock()

	conn, err := c.cfg.Dialer.Dial(ctx, socketURL(c.cfg.Endpoint, auth))
	if err != nil {
		c.mu.Lock()
		if c.done == done && c.state == StateConnecting {
			c.state = StateFailed
			c.joinErr = err
			close(c.ready)
			c.endMessages()
		}
		c.mu.Unlock()
		return meta, &TransportError{Op: "dial", Err: err}
	}

	c.mu.Lock()
	if c.done != done || c.state != StateConnecting {
		// closed while dialing
		c.mu.Unlock()
		conn.Close()
		return meta, &TransportError{Op: "dial", Err: ErrClosed}
	}
	c.conn = conn
	c.state = StateJoining
	c.readStarted = true
	sendCh, messages := c.sendCh, c.messages
	// read, write and join; registered before Close can observe them
	loops.Add(3)
	c.mu.Unlock()

	// handlers run before the first frame is sent so nothing is dropped
	go c.readLoop(conn, done, loops, messages, logger)
	go c.writeLoop(conn, done, loops, sendCh, logger)

	join, _ := frame.Encode(frame.Join())
	if err := c.write(ctx, join); err != nil {
		loops.Done()
		c.shutdown(done, err)
		return meta, &TransportError{Op: "join", Err: err}
	}

	if err := c.startHeartbeat(done, logger); err != nil {
		loops.Done()
		return meta, &TransportError{Op: "join", Err: err}
	}

	go c.join(channelName, api, done, loops, logger)

	logger.Info("connected to chat socket", "mode", auth.Mode.String())
	meta.Connected = true
	return meta, nil
}

// WaitReady blocks until the chat subscription has been sent, the background
// join failed, the connection closed, or ctx is done.
func (c *Client) WaitReady(ctx context.Context) error {
	c.mu.RLock()
	ready, done := c.ready, c.done
	c.mu.RUnlock()
	if ready == nil {
		return ErrNotConnected
	}

	select {
	case <-ready:
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	switch {
	case c.state == StateReady:
		return nil
	case c.joinErr != nil:
		return c.joinErr
	default:
		return ErrClosed
	}
}

// Close stops the heartbeat, then closes the socket, and waits for the
// connection's goroutines to exit. It is safe to call from any goroutine,
// in any state and more than once.
func (c *Client) Close() error {
	c.mu.RLock()
	done, loops := c.done, c.loops
	c.mu.RUnlock()
	err := c.shutdown(done, nil)
	if loops != nil {
		loops.Wait()
	}
	return err
}

// Messages returns the chat stream of the current connection. The channel
// is closed when that connection ends; call Messages again after a new
// Connect.
func (c *Client) Messages() <-chan ChatMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.messages
}

// Connected reports whether the socket is open.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// ReadOnly reports whether the connection authenticated with a client id.
func (c *Client) ReadOnly() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.readOnly
}

// ChannelID returns the resolved channel id, or 0 before the join resolves it.
func (c *Client) ChannelID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channelID
}

// UserID resolves a username with the client's credentials.
func (c *Client) UserID(ctx context.Context, username string) (int, error) {
	api, err := c.lookupClient()
	if err != nil {
		return 0, err
	}
	return api.UserID(ctx, username)
}

// LookupChannelID resolves a channel name with the client's credentials.
func (c *Client) LookupChannelID(ctx context.Context, channelName string) (int, error) {
	api, err := c.lookupClient()
	if err != nil {
		return 0, err
	}
	return api.ChannelID(ctx, channelName)
}

// Send writes f to the socket and returns the transport's write result.
func (c *Client) Send(ctx context.Context, f frame.Frame) error {
	data, err := frame.Encode(f)
	if err != nil {
		return err
	}
	if err := c.write(ctx, data); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

// --- Internal ---

func (c *Client) lookupClient() (*APIClient, error) {
	c.mu.RLock()
	api := c.api
	c.mu.RUnlock()
	if api != nil {
		return api, nil
	}
	auth, err := ResolveAuth(c.cfg.Credentials())
	if err != nil {
		return nil, err
	}
	return NewAPIClient(c.cfg, auth), nil
}

// write queues data on the write loop and waits for the write result.
func (c *Client) write(ctx context.Context, data []byte) error {
	c.mu.RLock()
	sendCh, done, open := c.sendCh, c.done, c.conn != nil
	c.mu.RUnlock()
	if !open {
		return ErrNotConnected
	}

	req := sendRequest{data: data, result: make(chan error, 1)}
	select {
	case sendCh <- req:
	case <-done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.result:
		return err
	case <-done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) startHeartbeat(done chan struct{}, logger *slog.Logger) error {
	c.mu.Lock()
	if c.done != done || c.conn == nil {
		c.mu.Unlock()
		return ErrClosed
	}
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	c.stopHeartbeat = cancel
	c.heartbeatDone = stopped
	c.mu.Unlock()

	go c.heartbeat(ctx, stopped, logger)
	return nil
}

// heartbeat sends the keepalive frame every interval until ctx is cancelled.
// Failed sends are logged and the ticker keeps running.
func (c *Client) heartbeat(ctx context.Context, stopped chan struct{}, logger *slog.Logger) {
	defer close(stopped)

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// fresh buffer per tick; the transport owns what it is given
			data, _ := frame.Encode(frame.Heartbeat())
			if err := c.write(ctx, data); err != nil && ctx.Err() == nil {
				logger.Warn("heartbeat failed", "error", err)
			}
		}
	}
}

// join resolves the channel id and sends the chat subscription.
func (c *Client) join(channelName string, api *APIClient, done chan struct{}, loops *sync.WaitGroup, logger *slog.Logger) {
	defer loops.Done()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.JoinTimeout)
	defer cancel()
	go func() {
		select {
		case <-done:
			cancel()
		case <-ctx.Done():
		}
	}()

	joinFailed := func(err error) {
		select {
		case <-done:
			return
		default:
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", ErrJoinTimeout, err)
		}
		logger.Error("chat join failed", "error", err)
		c.setJoinResult(done, 0, err)
	}

	id, err := api.ChannelID(ctx, channelName)
	if err != nil {
		joinFailed(fmt.Errorf("%w: %w", ErrChannelNotFound, err))
		return
	}

	f, err := frame.New(frame.TopicControl, frame.EventDoc, wire.NewDoc(wire.ChatSubscription, map[string]any{
		"channelId": id,
	}))
	if err != nil {
		joinFailed(err)
		return
	}
	if err := c.Send(ctx, f); err != nil {
		joinFailed(err)
		return
	}

	c.setJoinResult(done, id, nil)
	logger.Info("joined chat", "channel_id", id)
}

func (c *Client) setJoinResult(done chan struct{}, channelID int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != done || c.state != StateJoining {
		return
	}
	if err != nil {
		c.state = StateFailed
		c.joinErr = err
	} else {
		c.state = StateReady
		c.channelID = channelID
	}
	close(c.ready)
}

// shutdown tears down the connection owning done. Stale callers from an
// earlier connection are ignored.
func (c *Client) shutdown(done chan struct{}, cause error) error {
	c.mu.Lock()
	if done == nil || c.done != done || c.state == StateIdle || c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	c.endMessages()
	conn := c.conn
	c.conn = nil
	stop, stopped := c.stopHeartbeat, c.heartbeatDone
	c.stopHeartbeat, c.heartbeatDone = nil, nil
	logger := c.logger
	c.mu.Unlock()

	// heartbeat must be gone before the socket it writes to
	if stop != nil {
		stop()
		<-stopped
	}
	close(done)

	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil {
		return &TransportError{Op: "close", Err: err}
	}
	if cause != nil {
		logger.Info("connection closed", "cause", cause)
	} else {
		logger.Info("connection closed")
	}
	return nil
}

// endMessages closes the stream of a connection whose read loop never
// started. Callers hold c.mu.
func (c *Client) endMessages() {
	if !c.readStarted {
		close(c.messages)
		c.readStarted = true
	}
}

func (c *Client) readLoop(conn transport.Conn, done chan struct{}, loops *sync.WaitGroup, messages chan<- ChatMessage, logger *slog.Logger) {
	defer loops.Done()
	defer close(messages)

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
			default:
				logger.Warn("read error, disconnecting", "error", err)
				c.shutdown(done, err)
			}
			return
		}

		f, err := frame.Decode(data)
		if err != nil {
			logger.Debug("bad frame", "error", err)
			continue
		}

		msg, ok := parseChatMessage(f)
		if !ok {
			logReply(f, logger)
			continue
		}

		select {
		case messages <- msg:
		case <-done:
			return
		}
	}
}

func (c *Client) writeLoop(conn transport.Conn, done chan struct{}, loops *sync.WaitGroup, sendCh <-chan sendRequest, logger *slog.Logger) {
	defer loops.Done()

	for {
		select {
		case req := <-sendCh:
			err := conn.WriteMessage(req.data)
			if err != nil {
				logger.Warn("write error", "error", err)
			}
			req.result <- err
		case <-done:
			return
		}
	}
}

// parseChatMessage extracts a chat message from a subscription:data frame.
// Frames of any other shape report false.
func parseChatMessage(f frame.Frame) (ChatMessage, bool) {
	if f.Event != frame.EventSubscriptionData {
		return ChatMessage{}, false
	}
	var data wire.SubscriptionData
	if err := json.Unmarshal(f.Payload, &data); err != nil {
		return ChatMessage{}, false
	}
	if data.Result.Data == nil || data.Result.Data.ChatMessage == nil {
		return ChatMessage{}, false
	}
	m := data.Result.Data.ChatMessage
	if m.Message == "" || m.User == nil || m.User.Username == "" {
		return ChatMessage{}, false
	}
	return ChatMessage{
		User:    User{ID: int(m.User.ID), Username: m.User.Username},
		Message: m.Message,
	}, true
}

func logReply(f frame.Frame, logger *slog.Logger) {
	if f.Event != frame.EventReply {
		return
	}
	var reply wire.ReplyPayload
	if err := json.Unmarshal(f.Payload, &reply); err != nil {
		return
	}
	if reply.Status != "ok" {
		logger.Warn("server rejected request", "topic", f.Topic, "status", reply.Status, "response", string(reply.Response))
	}
}
