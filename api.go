package glimesh

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/glimesh/glimesh-go-sdk/wire"
)

// APIClient resolves channel and user names through the Glimesh GraphQL
// HTTP endpoint. It works independently of the socket; no live connection
// is needed.
type APIClient struct {
	endpoint string
	header   http.Header
	http     HTTPDoer
	logger   *slog.Logger
}

// NewAPIClient creates a lookup client authenticated with auth.
func NewAPIClient(cfg Config, auth Auth) *APIClient {
	cfg = cfg.withDefaults()
	return &APIClient{
		endpoint: cfg.APIEndpoint,
		header:   auth.Header.Clone(),
		http:     cfg.HTTPClient,
		logger:   cfg.Logger,
	}
}

// ChannelID returns the numeric id of the channel owned by username.
// On any failure it returns 0 and an error wrapping ErrLookupFailed;
// 0 is never a valid id.
func (c *APIClient) ChannelID(ctx context.Context, username string) (int, error) {
	return c.lookupID(ctx, "channel", wire.ChannelIDQuery, username)
}

// UserID returns the numeric id of username. Failures behave as in ChannelID.
func (c *APIClient) UserID(ctx context.Context, username string) (int, error) {
	return c.lookupID(ctx, "user", wire.UserIDQuery, username)
}

func (c *APIClient) lookupID(ctx context.Context, kind, query, username string) (int, error) {
	var resp wire.LookupResponse
	doc := wire.NewDoc(query, map[string]any{"username": username})
	if err := c.doJSON(ctx, doc, &resp); err != nil {
		return c.fail(kind, username, err)
	}
	if len(resp.Errors) > 0 {
		return c.fail(kind, username, fmt.Errorf("graphql: %s", resp.Errors[0].Message))
	}

	node := resp.Data.Channel
	if kind == "user" {
		node = resp.Data.User
	}
	if node == nil || node.ID <= 0 {
		return c.fail(kind, username, fmt.Errorf("no %s named %q", kind, username))
	}
	return int(node.ID), nil
}

func (c *APIClient) fail(kind, username string, err error) (int, error) {
	c.logger.Error("lookup failed", "kind", kind, "name", username, "error", err)
	return 0, fmt.Errorf("%w: %s %q: %w", ErrLookupFailed, kind, username, err)
}

// doJSON posts a GraphQL document and decodes the JSON response into dest.
func (c *APIClient) doJSON(ctx context.Context, doc wire.DocPayload, dest any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	for k, v := range c.header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("glimesh returned %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
