// Package conversation persists chat history: conversations tied to one user
// and one portrait, each holding an append-only, creation-ordered sequence of
// user and assistant messages.
package conversation

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MaxTitleLen bounds the conversation title derived from the first message.
const MaxTitleLen = 100

// HistoryLimit is how many trailing messages are loaded when composing a
// prompt.
const HistoryLimit = 20

// Conversation ties a user and a portrait to an ordered message sequence.
type Conversation struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	PortraitID uuid.UUID
	Title      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Message is a single turn. ChunksReferenced records, for user messages,
// which knowledge chunks were retrieved when generating the reply that
// follows.
type Message struct {
	ID               uuid.UUID
	ConversationID   uuid.UUID
	Role             string
	Content          string
	ChunksReferenced []uuid.UUID
	CreatedAt        time.Time
}

// TitleFromMessage derives a conversation title from the first message,
// truncated to at most MaxTitleLen bytes on a rune boundary.
func TitleFromMessage(message string) string {
	if len(message) <= MaxTitleLen {
		return message
	}
	cut := MaxTitleLen
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}
