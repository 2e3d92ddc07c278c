// Package wire defines the JSON payload types carried inside Phoenix frames
// and GraphQL HTTP requests by the Glimesh API.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is a GraphQL ID. Glimesh sends ids as strings on some paths and as
// numbers on others; both decode.
type ID int

// UnmarshalJSON accepts 7, "7" and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*id = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("wire: id %q is not numeric", s)
		}
		*id = ID(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("wire: bad id: %w", err)
	}
	*id = ID(n)
	return nil
}

// DocPayload is the payload of a "doc" frame and the body of an HTTP
// GraphQL request.
type DocPayload struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// NewDoc returns a payload with a non-nil variables map.
func NewDoc(query string, variables map[string]any) DocPayload {
	if variables == nil {
		variables = map[string]any{}
	}
	return DocPayload{Query: query, Variables: variables}
}

// GraphQLError is one entry of a GraphQL "errors" array.
type GraphQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// ReplyPayload is the payload of a phx_reply frame.
type ReplyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response,omitempty"`
}

// User is the author of a chat message.
type User struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
}

// ChatMessage is the chatMessage subscription node.
type ChatMessage struct {
	User    *User  `json:"user"`
	Message string `json:"message"`
}

// SubscriptionData is the payload of a subscription:data frame.
type SubscriptionData struct {
	SubscriptionID string `json:"subscriptionId,omitempty"`
	Result         struct {
		Data *struct {
			ChatMessage *ChatMessage `json:"chatMessage"`
		} `json:"data"`
		Errors []GraphQLError `json:"errors,omitempty"`
	} `json:"result"`
}

// IDNode is the {id} selection returned by channel and user lookups.
type IDNode struct {
	ID ID `json:"id"`
}

// LookupResponse is the HTTP response body of a channel or user lookup.
type LookupResponse struct {
	Data struct {
		Channel *IDNode `json:"channel,omitempty"`
		User    *IDNode `json:"user,omitempty"`
	} `json:"data"`
	Errors []GraphQLError `json:"errors,omitempty"`
}
