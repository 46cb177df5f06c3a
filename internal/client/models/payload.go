package models

import (
	"time"

	"github.com/dmitrijs2005/aegislink/internal/cryptox"
)

// PayloadKind tags what a Payload carries.
type PayloadKind string

const (
	KindMessage     PayloadKind = "MESSAGE"
	KindLocation    PayloadKind = "LOCATION"
	KindCallRequest PayloadKind = "CALL_REQUEST"
	KindCallEnd     PayloadKind = "CALL_END"
)

// Payload is the unit handed to the transport. Only the fields relevant to
// Kind are set: Envelope for KindMessage, Location for KindLocation.
type Payload struct {
	ID       string            `cbor:"id"`
	Kind     PayloadKind       `cbor:"kind"`
	Sender   Role              `cbor:"sender"`
	SentAt   time.Time         `cbor:"sent_at"`
	Envelope *cryptox.Envelope `cbor:"envelope,omitempty"`
	Location *Location         `cbor:"location,omitempty"`
}

// Location is a position fix shared with the peer.
type Location struct {
	Lat       float64   `cbor:"lat"`
	Lng       float64   `cbor:"lng"`
	Timestamp time.Time `cbor:"ts"`
	Accuracy  float64   `cbor:"accuracy"`
}

// MessageType is the content type of a chat message.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageLocation MessageType = "location"
)

// Message is a chat line as shown to the user.
type Message struct {
	ID          string
	Sender      Role
	Content     string
	Timestamp   time.Time
	Type        MessageType
	IsEncrypted bool
	// Err is set when the content could not be opened; Content then holds
	// cryptox.CorruptPayload.
	Err error
}
