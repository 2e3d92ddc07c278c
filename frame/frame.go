// Package frame implements the Phoenix Channels V2 JSON envelope used by the
// Glimesh socket. Every frame, in both directions, is a 5-element JSON array:
//
//	[join_ref, ref, topic, event, payload]
//
// join_ref and ref are correlation strings; only one topic is ever joined so
// the client holds both at DefaultRef.
package frame

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// DefaultRef is used for both join_ref and ref on every outgoing frame.
	DefaultRef = "1"

	// MaxFrameLen bounds incoming text frames.
	MaxFrameLen = 1 << 20 // 1 MB
)

// Topics.
const (
	TopicControl = "__absinthe__:control"
	TopicPhoenix = "phoenix"
)

// Events.
const (
	EventJoin             = "phx_join"
	EventReply            = "phx_reply"
	EventError            = "phx_error"
	EventClose            = "phx_close"
	EventHeartbeat        = "heartbeat"
	EventDoc              = "doc"
	EventSubscriptionData = "subscription:data"
)

var (
	ErrMalformed     = errors.New("frame: malformed envelope")
	ErrMissingTopic  = errors.New("frame: topic is required")
	ErrMissingEvent  = errors.New("frame: event is required")
	ErrFrameTooLarge = errors.New("frame: exceeds maximum size")
)

var emptyPayload = json.RawMessage(`{}`)

// Frame is one decoded envelope.
type Frame struct {
	JoinRef string
	Ref     string
	Topic   string
	Event   string
	Payload json.RawMessage
}

// New builds a frame on topic/event carrying payload, with the default refs.
// A nil payload is sent as an empty object.
func New(topic, event string, payload any) (Frame, error) {
	f := Frame{JoinRef: DefaultRef, Ref: DefaultRef, Topic: topic, Event: event}
	if payload == nil {
		return f, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("frame: marshal payload: %w", err)
	}
	f.Payload = raw
	return f, nil
}

// Join returns the control-channel join frame.
func Join() Frame {
	return Frame{JoinRef: DefaultRef, Ref: DefaultRef, Topic: TopicControl, Event: EventJoin}
}

// Heartbeat returns the keepalive frame.
func Heartbeat() Frame {
	return Frame{JoinRef: DefaultRef, Ref: DefaultRef, Topic: TopicPhoenix, Event: EventHeartbeat}
}

// Encode serialises f as a 5-element JSON array.
func Encode(f Frame) ([]byte, error) {
	if f.Topic == "" {
		return nil, ErrMissingTopic
	}
	if f.Event == "" {
		return nil, ErrMissingEvent
	}
	payload := f.Payload
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = emptyPayload
	} else if !json.Valid(payload) {
		return nil, fmt.Errorf("%w: payload is not valid JSON", ErrMalformed)
	}

	out, err := json.Marshal([5]any{
		refOrNil(f.JoinRef),
		refOrNil(f.Ref),
		f.Topic,
		f.Event,
		payload,
	})
	if err != nil {
		return nil, fmt.Errorf("frame: encode: %w", err)
	}
	return out, nil
}

// Decode parses data into a Frame. Anything other than a 5-element array with
// string topic and event is ErrMalformed. Refs may be null.
func Decode(data []byte) (Frame, error) {
	if len(data) > MaxFrameLen {
		return Frame{}, ErrFrameTooLarge
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(parts) != 5 {
		return Frame{}, fmt.Errorf("%w: got %d elements, want 5", ErrMalformed, len(parts))
	}

	var f Frame
	var err error
	if f.JoinRef, err = decodeRef(parts[0]); err != nil {
		return Frame{}, err
	}
	if f.Ref, err = decodeRef(parts[1]); err != nil {
		return Frame{}, err
	}
	if err := json.Unmarshal(parts[2], &f.Topic); err != nil || f.Topic == "" {
		return Frame{}, fmt.Errorf("%w: bad topic", ErrMalformed)
	}
	if err := json.Unmarshal(parts[3], &f.Event); err != nil || f.Event == "" {
		return Frame{}, fmt.Errorf("%w: bad event", ErrMalformed)
	}
	f.Payload = parts[4]
	return f, nil
}

func refOrNil(ref string) any {
	if ref == "" {
		return nil
	}
	return ref
}

func decodeRef(raw json.RawMessage) (string, error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return "", nil
	}
	var ref string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("%w: bad ref", ErrMalformed)
	}
	return ref, nil
}
