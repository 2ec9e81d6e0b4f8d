package models

import (
	"strings"
	"time"
)

/** --------------------ENTITIES-------------------- */
// Message is a direct message between two users. It is soft-deleted per
// party and removed for good once both parties deleted it.
type Message struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	SenderUsername    string     `gorm:"index;not null" json:"senderUsername"`
	SenderKnownAs     string     `json:"senderKnownAs"`
	RecipientUsername string     `gorm:"index;not null" json:"recipientUsername"`
	Content           string     `gorm:"type:text;not null" json:"content"`
	DateRead          *time.Time `json:"dateRead,omitempty"`
	MessageSent       time.Time  `gorm:"index;not null" json:"messageSent"`
	SenderDeleted     bool       `gorm:"not null;default:false" json:"-"`
	RecipientDeleted  bool       `gorm:"not null;default:false" json:"-"`
}

// IsParticipant reports whether username sent or received the message.
func (m *Message) IsParticipant(username string) bool {
	return m.SenderUsername == username || m.RecipientUsername == username
}

// IsBetween reports whether the message belongs to the thread of a and b.
func (m *Message) IsBetween(a, b string) bool {
	return (m.SenderUsername == a && m.RecipientUsername == b) ||
		(m.SenderUsername == b && m.RecipientUsername == a)
}

// VisibleTo reports whether username has not soft-deleted the message.
func (m *Message) VisibleTo(username string) bool {
	switch username {
	case m.SenderUsername:
		return !m.SenderDeleted
	case m.RecipientUsername:
		return !m.RecipientDeleted
	}
	return false
}

// MarkDeletedBy flags the message as deleted for username and reports
// whether both parties have now deleted it.
func (m *Message) MarkDeletedBy(username string) bool {
	if m.SenderUsername == username {
		m.SenderDeleted = true
	}
	if m.RecipientUsername == username {
		m.RecipientDeleted = true
	}
	return m.SenderDeleted && m.RecipientDeleted
}

/** -------------------- DTOs -------------------- */
// MessageResponse is the payload pushed to channels and returned by REST.
type MessageResponse struct {
	ID                uint       `json:"id"`
	SenderUsername    string     `json:"senderUsername"`
	SenderKnownAs     string     `json:"senderKnownAs"`
	RecipientUsername string     `json:"recipientUsername"`
	Content           string     `json:"content"`
	DateRead          *time.Time `json:"dateRead,omitempty"`
	MessageSent       time.Time  `json:"messageSent"`
}

func (m *Message) ToResponse() MessageResponse {
	return MessageResponse{
		ID:                m.ID,
		SenderUsername:    m.SenderUsername,
		SenderKnownAs:     m.SenderKnownAs,
		RecipientUsername: m.RecipientUsername,
		Content:           m.Content,
		DateRead:          m.DateRead,
		MessageSent:       m.MessageSent,
	}
}

// ToResponses converts a thread for the wire, keeping its order.
func ToResponses(messages []*Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ToResponse())
	}
	return out
}

// NormalizeUsername is the canonical form usernames are stored and compared in.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
