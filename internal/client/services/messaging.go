package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/dmitrijs2005/aegislink/internal/client/client"
	"github.com/dmitrijs2005/aegislink/internal/client/models"
	"github.com/dmitrijs2005/aegislink/internal/common"
	"github.com/dmitrijs2005/aegislink/internal/cryptox"
	"github.com/dmitrijs2005/aegislink/internal/logging"
	"github.com/google/uuid"
)

// KeySource is the part of AccessService messaging depends on.
type KeySource interface {
	Session() (models.Session, bool)
	SessionKey() (string, error)
}

// Event is an inbound payload after it was opened.
type Event struct {
	Kind     models.PayloadKind
	From     models.Role
	Message  *models.Message
	Location *models.Location
}

type MessagingService struct {
	keys      KeySource
	transport client.Client
	logger    logging.Logger
	clock     clock.Clock
}

func NewMessagingService(keys KeySource, transport client.Client, logger logging.Logger, c clock.Clock) *MessagingService {
	if c == nil {
		c = clock.New()
	}
	return &MessagingService{
		keys:      keys,
		transport: transport,
		logger:    logger.With("module", "messaging"),
		clock:     c,
	}
}

// sessionCredentials returns the session role and key, or the reason crypto is refused.
func (s *MessagingService) sessionCredentials() (models.Role, string, error) {
	key, err := s.keys.SessionKey()
	if err != nil {
		return "", "", err
	}
	session, ok := s.keys.Session()
	if !ok {
		return "", "", common.ErrNoSession
	}
	return session.Role, key, nil
}

func (s *MessagingService) newPayload(kind models.PayloadKind, sender models.Role) models.Payload {
	return models.Payload{
		ID:     uuid.NewString(),
		Kind:   kind,
		Sender: sender,
		SentAt: s.clock.Now(),
	}
}

// SendText seals text under the session key and broadcasts it. The returned
// Message is the sender's own copy for display.
func (s *MessagingService) SendText(ctx context.Context, text string) (models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return models.Message{}, common.ErrEmptyMessage
	}

	role, key, err := s.sessionCredentials()
	if err != nil {
		return models.Message{}, err
	}

	env, err := cryptox.Encrypt(text, key)
	if err != nil {
		return models.Message{}, fmt.Errorf("seal message: %w", err)
	}

	p := s.newPayload(models.KindMessage, role)
	p.Envelope = &env

	if err := s.transport.Broadcast(ctx, p); err != nil {
		return models.Message{}, fmt.Errorf("broadcast message: %w", err)
	}

	s.logger.Debug(ctx, "message sent", "id", p.ID)

	return models.Message{
		ID:          p.ID,
		Sender:      role,
		Content:     text,
		Timestamp:   p.SentAt,
		Type:        models.MessageText,
		IsEncrypted: true,
	}, nil
}

// ShareLocation broadcasts a position fix stamped with the current time.
func (s *MessagingService) ShareLocation(ctx context.Context, lat, lng, accuracy float64) (models.Location, error) {
	role, _, err := s.sessionCredentials()
	if err != nil {
		return models.Location{}, err
	}

	p := s.newPayload(models.KindLocation, role)
	loc := models.Location{Lat: lat, Lng: lng, Timestamp: p.SentAt, Accuracy: accuracy}
	p.Location = &loc

	if err := s.transport.Broadcast(ctx, p); err != nil {
		return models.Location{}, fmt.Errorf("broadcast location: %w", err)
	}
	return loc, nil
}

func (s *MessagingService) RequestCall(ctx context.Context) error {
	return s.signal(ctx, models.KindCallRequest)
}

func (s *MessagingService) EndCall(ctx context.Context) error {
	return s.signal(ctx, models.KindCallEnd)
}

func (s *MessagingService) signal(ctx context.Context, kind models.PayloadKind) error {
	role, _, err := s.sessionCredentials()
	if err != nil {
		return err
	}
	if err := s.transport.Broadcast(ctx, s.newPayload(kind, role)); err != nil {
		return fmt.Errorf("broadcast %s: %w", kind, err)
	}
	return nil
}

// Open turns an inbound payload into an Event. A message that fails to
// decrypt is still returned, with Message.Err set and the corrupt-payload
// marker as content.
func (s *MessagingService) Open(p models.Payload) (Event, error) {
	_, key, err := s.sessionCredentials()
	if err != nil {
		return Event{}, err
	}

	ev := Event{Kind: p.Kind, From: p.Sender}

	switch p.Kind {
	case models.KindMessage:
		var opened cryptox.Opened
		if p.Envelope == nil {
			opened = cryptox.Opened{Err: cryptox.ErrIntegrity}
		} else {
			opened = cryptox.Open(*p.Envelope, key)
		}
		ev.Message = &models.Message{
			ID:          p.ID,
			Sender:      p.Sender,
			Content:     opened.Display(),
			Timestamp:   p.SentAt,
			Type:        models.MessageText,
			IsEncrypted: true,
			Err:         opened.Err,
		}
	case models.KindLocation:
		if p.Location == nil {
			return Event{}, fmt.Errorf("%w: location payload without location", common.ErrUnknownPayload)
		}
		loc := *p.Location
		ev.Location = &loc
	case models.KindCallRequest, models.KindCallEnd:
	default:
		return Event{}, fmt.Errorf("%w: %q", common.ErrUnknownPayload, p.Kind)
	}

	return ev, nil
}

// Run delivers inbound events to handler until ctx is done or the inbox is
// closed. Payloads arriving while no unlocked session exists are dropped.
func (s *MessagingService) Run(ctx context.Context, handler func(Event)) error {
	inbox := s.transport.Inbox()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-inbox:
			if !ok {
				return nil
			}
			ev, err := s.Open(p)
			if err != nil {
				s.logger.Debug(ctx, "payload dropped", "id", p.ID, "kind", p.Kind, "error", err)
				continue
			}
			if ev.Message != nil && ev.Message.Err != nil {
				s.logger.Warn(ctx, "corrupt payload", "id", p.ID, "from", p.Sender)
			}
			handler(ev)
		}
	}
}
