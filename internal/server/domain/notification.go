package domain

import (
	"encoding/json"
	"time"
)

// NotificationCode is a topic that clients can subscribe channels to.
type NotificationCode struct {
	// Code identifies the topic and is the primary key.
	Code string

	// LastUsed is the timestamp of the last published event, or the
	// creation time if nothing was ever published.
	LastUsed time.Time

	Description string
}

// NotificationTarget subscribes one channel in one guild to a code.
type NotificationTarget struct {
	ID        int
	CreatedAt time.Time
	Code      string
	ChannelID int64
	GuildID   int64

	// Format is an optional template applied to outbound message content.
	// A "{message}" token inside it is replaced with the raw content.
	Format string
}

// NotificationData is one per-target entry of an outbound push payload.
type NotificationData struct {
	// TriggeringEvent names the producer, for client-side debugging.
	TriggeringEvent string `json:"triggering_event"`

	ChannelID int64 `json:"channel_id"`
	GuildID   int64 `json:"guild_id"`

	// Embed is opaque structured content forwarded verbatim.
	Embed json.RawMessage `json:"embed,omitempty"`

	// Message is the formatted text content, absent when the target only
	// carries an embed.
	Message string `json:"message,omitempty"`
}

// NotificationPayload is the wire shape pushed over live connections.
type NotificationPayload struct {
	Code      string             `json:"code"`
	Timestamp time.Time          `json:"timestamp"`
	Data      []NotificationData `json:"data"`
}
