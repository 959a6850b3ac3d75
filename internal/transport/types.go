package transport

import (
	"context"
	"strconv"
	"strings"
)

// Kind distinguishes the two delivery backends.
type Kind string

const (
	// KindBot is the platform-native bot-token client (always available,
	// moderate payload-size ceiling).
	KindBot Kind = "bot"
	// KindUser is the user-session backed client (optional, higher ceiling,
	// required for payloads above the bot ceiling).
	KindUser Kind = "user"
)

// Target identifies a destination chat/channel.
// Either ChatID or Username must be set.
type Target struct {
	ChatID   int64
	Username string
}

func (t Target) Recipient() string {
	if t.ChatID != 0 {
		return strconv.FormatInt(t.ChatID, 10)
	}
	u := strings.TrimPrefix(t.Username, "@")
	if u == "" {
		return ""
	}
	return "@" + u
}

// Content is a transport-agnostic description of one outgoing post.
//
// Payload holds either the message text (Type "text") or an opaque
// file handle previously obtained from the platform. A handle can go
// stale; the delivery pipeline rebuilds it from the payload source when
// the platform rejects it.
type Content struct {
	Type    string // text | photo | video | document
	Payload string
	Caption string
	Size    int64 // payload size in bytes; 0 for text
	Thumb   string
	Buttons []Button
}

// Button is a single URL button attached below a post.
type Button struct {
	Text string
	URL  string
}

// MessageRef points at a message the transport has delivered.
// It is what a later delete call needs.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

func (r MessageRef) IsZero() bool { return r.ChatID == 0 && r.MessageID == 0 }

// Client is one delivery backend.
//
// Implementations must return *Error for failed operations so the
// delivery pipeline can classify them.
type Client interface {
	Name() string
	Kind() Kind
	// SizeCeiling is the largest payload (bytes) this client can upload.
	SizeCeiling() int64

	Send(ctx context.Context, to Target, c Content) (MessageRef, error)
	Delete(ctx context.Context, ref MessageRef) error
}
