package client

import (
	"context"

	"github.com/dmitrijs2005/aegislink/internal/client/models"
)

// Client is the transport seen by one participant.
type Client interface {
	// Broadcast hands p to every other participant.
	Broadcast(ctx context.Context, p models.Payload) error
	// Inbox yields payloads broadcast by others. It is closed by Close.
	Inbox() <-chan models.Payload
	Close() error
}
