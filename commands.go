package glimesh

import (
	"context"

	"github.com/glimesh/glimesh-go-sdk/frame"
	"github.com/glimesh/glimesh-go-sdk/wire"
)

// --- Chat ---

// SendMessage posts text to the joined channel's chat.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	return c.command(ctx, wire.CreateChatMessageMutation, map[string]any{
		"message": map[string]string{"message": text},
	})
}

// --- Moderation ---

// ShortTimeout times userID out of the joined channel for the short period.
func (c *Client) ShortTimeout(ctx context.Context, userID int) error {
	return c.moderate(ctx, wire.ShortTimeoutMutation, userID)
}

// LongTimeout times userID out of the joined channel for the long period.
func (c *Client) LongTimeout(ctx context.Context, userID int) error {
	return c.moderate(ctx, wire.LongTimeoutMutation, userID)
}

// BanUser bans userID from the joined channel.
func (c *Client) BanUser(ctx context.Context, userID int) error {
	return c.moderate(ctx, wire.BanUserMutation, userID)
}

// UnbanUser lifts a ban on userID.
func (c *Client) UnbanUser(ctx context.Context, userID int) error {
	return c.moderate(ctx, wire.UnbanUserMutation, userID)
}

func (c *Client) moderate(ctx context.Context, mutation string, userID int) error {
	return c.command(ctx, mutation, map[string]any{"userId": userID})
}

// command sends a mutation as a doc frame bound to the joined channel.
// Values travel as GraphQL variables.
func (c *Client) command(ctx context.Context, mutation string, variables map[string]any) error {
	c.mu.RLock()
	state, channelID := c.state, c.channelID
	c.mu.RUnlock()
	if state != StateReady || channelID == 0 {
		return ErrNotReady
	}

	variables["channelId"] = channelID
	f, err := frame.New(frame.TopicControl, frame.EventDoc, wire.NewDoc(mutation, variables))
	if err != nil {
		return err
	}
	return c.Send(ctx, f)
}
