package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/aegislink/internal/client/models"
	"github.com/dmitrijs2005/aegislink/internal/logging"
	"github.com/fxamacker/cbor/v2"
)

// DefaultInboxSize is the per-member buffer used by Join.
const DefaultInboxSize = 64

// payloadEncMode keeps timestamps at nanosecond precision on the wire.
var payloadEncMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

// Bus fans payloads out between the members that joined it.
type Bus struct {
	mu      sync.RWMutex
	members map[*LocalClient]struct{}
	logger  logging.Logger
}

func NewBus(logger logging.Logger) *Bus {
	return &Bus{
		members: make(map[*LocalClient]struct{}),
		logger:  logger.With("module", "bus"),
	}
}

// Join adds a member named name (used in logs only).
func (b *Bus) Join(name string) *LocalClient {
	return b.JoinWithBuffer(name, DefaultInboxSize)
}

func (b *Bus) JoinWithBuffer(name string, size int) *LocalClient {
	c := &LocalClient{
		name:  name,
		bus:   b,
		inbox: make(chan models.Payload, size),
	}
	b.mu.Lock()
	b.members[c] = struct{}{}
	b.mu.Unlock()
	return c
}

// Members returns the current member count.
func (b *Bus) Members() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.members)
}

func (b *Bus) leave(c *LocalClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.members[c]; !ok {
		return
	}
	delete(b.members, c)
	close(c.inbox)
}

func (b *Bus) publish(ctx context.Context, from *LocalClient, p models.Payload) error {
	raw, err := payloadEncMode.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, ok := b.members[from]; !ok {
		return ErrClosed
	}

	for m := range b.members {
		if m == from {
			continue
		}
		var clone models.Payload
		if err := cbor.Unmarshal(raw, &clone); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		select {
		case m.inbox <- clone:
		default:
			b.logger.Warn(ctx, "inbox full, payload dropped", "to", m.name, "kind", p.Kind, "id", p.ID)
		}
	}
	return nil
}

// LocalClient is one member of a Bus. It implements Client.
type LocalClient struct {
	name  string
	bus   *Bus
	inbox chan models.Payload
}

func (c *LocalClient) Broadcast(ctx context.Context, p models.Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.bus.publish(ctx, c, p)
}

func (c *LocalClient) Inbox() <-chan models.Payload {
	return c.inbox
}

// Close leaves the bus. It is safe to call more than once.
func (c *LocalClient) Close() error {
	c.bus.leave(c)
	return nil
}
