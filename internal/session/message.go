// Package session holds the conversation threads of one user and the
// ordered messages inside them, and persists them to a key-value store.
package session

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one immutable turn in a thread.
type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Seq       int       `json:"seq"`
}

// Thread is an ordered conversation.
type Thread struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages"`
}

// ThreadSummary describes a thread without its messages.
type ThreadSummary struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
	Active       bool      `json:"active"`
}

func (t Thread) clone() Thread {
	out := t
	out.Messages = make([]Message, len(t.Messages))
	copy(out.Messages, t.Messages)
	return out
}

func (t Thread) last() (Message, bool) {
	if len(t.Messages) == 0 {
		return Message{}, false
	}
	return t.Messages[len(t.Messages)-1], true
}

// Default content bounds, in runes.
const (
	DefaultMinLength = 2
	DefaultMaxLength = 1000
)

// Bounds limits the length of user-authored content, counted in runes.
type Bounds struct {
	Min int
	Max int
}

// DefaultBounds returns the 2..1000 rune bounds.
func DefaultBounds() Bounds {
	return Bounds{Min: DefaultMinLength, Max: DefaultMaxLength}
}

// Check returns ErrInvalidContent when content is not valid UTF-8 or its
// length is outside b.
func (b Bounds) Check(content string) error {
	if !utf8.ValidString(content) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidContent)
	}
	n := utf8.RuneCountInString(content)
	if n < b.Min || n > b.Max {
		return fmt.Errorf("%w: length %d outside %d..%d", ErrInvalidContent, n, b.Min, b.Max)
	}
	return nil
}

func (b Bounds) orDefault() Bounds {
	if b.Min == 0 && b.Max == 0 {
		return DefaultBounds()
	}
	return b
}
