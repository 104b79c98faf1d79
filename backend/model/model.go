package model

import (
	"encoding/json"
	"time"
)

// Connection states. A connection cycles Idle -> Queued -> Matched -> Idle
// until its channel closes.
const (
	StateIdle    = "idle"
	StateQueued  = "queued"
	StateMatched = "matched"
)

// Room roles. p1 initiates the SDP offer.
const (
	RoleP1 = "p1"
	RoleP2 = "p2"
)

// Filter wildcards, fixed by the client defaults.
const (
	GenderBoth      = "both"
	CountryBalanced = "balanced"
)

// Event types carried on the wire in both directions.
const (
	EventStartMatching = "start-matching"
	EventMatched       = "matched"
	EventSDP           = "sdp"
	EventICECandidate  = "ice-candidate"
	EventChatMessage   = "chat-message"
	EventEndChat       = "end-chat"
	EventNextChat      = "next-chat"
	EventSessionEnded  = "session-ended"
	EventError         = "error"
	EventOnlineCount   = "online-count"
)

// Error codes surfaced to clients via EventError.
const (
	CodeNotFound        = "not-found"
	CodeNoActiveSession = "no-active-session"
)

// Envelope is the wire frame. Payload stays opaque for sdp and ice-candidate
// events; the server forwards it verbatim.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Filters are matching preferences. A wildcard value accepts anything.
type Filters struct {
	Gender  string `json:"gender"`
	Country string `json:"country"`
}

// Compatible reports whether two filter sets accept each other.
// Compatibility is symmetric: each field matches when either side holds
// the wildcard or both sides hold the same value.
func (f Filters) Compatible(other Filters) bool {
	gender := f.Gender == GenderBoth || other.Gender == GenderBoth || f.Gender == other.Gender
	country := f.Country == CountryBalanced || other.Country == CountryBalanced || f.Country == other.Country
	return gender && country
}

// WithDefaults replaces unset fields with their wildcard. The stock client
// always sends explicit values; hand-rolled clients may send an empty
// object and should still be matchable.
func (f Filters) WithDefaults() Filters {
	if f.Gender == "" {
		f.Gender = GenderBoth
	}
	if f.Country == "" {
		f.Country = CountryBalanced
	}
	return f
}

// Connection is one live real-time channel. State fields are mutated only
// under the lifecycle service lock; TX is the server-to-client wire.
type Connection struct {
	ID      string
	UserID  string
	Filters Filters
	RoomID  string
	Role    string
	State   string

	TX chan Envelope
}

func NewConnection(id, userID string) *Connection {
	return &Connection{
		ID:     id,
		UserID: userID,
		State:  StateIdle,
		// Buffered so that a notification burst (matched + online-count)
		// does not stall lifecycle transitions while the write pump drains.
		TX: make(chan Envelope, 8),
	}
}

// QueueEntry is a connection waiting for a match.
type QueueEntry struct {
	Conn       *Connection
	Filters    Filters
	EnqueuedAt time.Time
}

// Match is an ephemeral pairing decision. Existing is the side that was
// already waiting and becomes p1; Arriving becomes p2.
type Match struct {
	Existing *QueueEntry
	Arriving *QueueEntry
}

// ChatMessage is one entry of a room's transient message log.
type ChatMessage struct {
	Text       string    `json:"text"`
	SenderRole string    `json:"senderRole"`
	SentAt     time.Time `json:"-"`
}

// Room is a paired session between exactly two connections. It holds
// non-owning references to them and an in-memory message log that is
// discarded with the room.
type Room struct {
	ID        string
	P1        *Connection
	P2        *Connection
	CreatedAt time.Time
	Messages  []ChatMessage
}

// RoleOf returns the role held by connID in the room, or "" if connID is
// not a participant.
func (r *Room) RoleOf(connID string) string {
	switch connID {
	case r.P1.ID:
		return RoleP1
	case r.P2.ID:
		return RoleP2
	}
	return ""
}

// Other returns the role complement of connID, or nil if connID is not a
// participant.
func (r *Room) Other(connID string) *Connection {
	switch connID {
	case r.P1.ID:
		return r.P2
	case r.P2.ID:
		return r.P1
	}
	return nil
}

// Typed payloads for non-opaque events.

type MatchedPayload struct {
	RoomID     string `json:"roomId"`
	Role       string `json:"role"`
	PeerUserID string `json:"peerUserId"`
}

type ChatMessagePayload struct {
	Text       string `json:"text"`
	SenderRole string `json:"senderRole"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type OnlineCountPayload struct {
	Count int `json:"count"`
}
