package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"chat-presence/internal/models"

	"github.com/google/uuid"
)

// MessageType names an event on the realtime channel.
type MessageType string

// Inbound events sent by clients
const (
	MessageTypeJoinConversation  MessageType = "join-conversation"
	MessageTypeLeaveConversation MessageType = "leave-conversation"
	MessageTypeSendMessage       MessageType = "send-message"
)

// Outbound events pushed by the server
const (
	MessageTypeConnected       MessageType = "connected"
	MessageTypeUserOnline      MessageType = "user-online"
	MessageTypeUserOffline     MessageType = "user-offline"
	MessageTypeOnlineUsers     MessageType = "online-users"
	MessageTypeMessageReceived MessageType = "message-received"
	MessageTypeNewMessage      MessageType = "new-message"
	MessageTypeMessageSent     MessageType = "message-sent"
	MessageTypeMessagesRead    MessageType = "messages-read"
	MessageTypeMessageThread   MessageType = "message-thread"
	MessageTypeError           MessageType = "error"
)

func (mt MessageType) String() string {
	return string(mt)
}

// IsInbound reports whether clients may send this type.
func (mt MessageType) IsInbound() bool {
	switch mt {
	case MessageTypeJoinConversation, MessageTypeLeaveConversation, MessageTypeSendMessage:
		return true
	default:
		return false
	}
}

// Error codes carried by error events
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeSendFailed     = "SEND_FAILED"
	ErrCodeInvalidMessage = "INVALID_MESSAGE"
	ErrCodeUnknownEvent   = "UNKNOWN_EVENT"
)

// Request is an inbound frame. Data is decoded according to Type.
type Request struct {
	ID   string          `json:"id"`
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Message is an outbound frame.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
	// ReplyTo echoes the ID of the request that caused the event, if any.
	ReplyTo string `json:"replyTo,omitempty"`
}

// Payloads of inbound events

type JoinConversationData struct {
	Username string `json:"username" validate:"max=128"`
}

// MaxContentLength is the longest content, in runes, a send-message may
// carry. It must match the max tag on SendMessageData.Content.
const MaxContentLength = 4000

// MaxUsernameLength must match the max tags on usernames.
const MaxUsernameLength = 128

type SendMessageData struct {
	RecipientUsername string `json:"recipientUsername" validate:"max=128"`
	Content           string `json:"content" validate:"max=4000"`
}

// Payloads of outbound events

type ConnectedData struct {
	ConnectionID string `json:"connectionId"`
	Username     string `json:"username"`
}

type PresenceData struct {
	Username string `json:"username"`
}

type OnlineUsersData struct {
	Users []string `json:"users"`
}

// NewMessageData notifies a user outside the conversation that a message
// is waiting for them.
type NewMessageData struct {
	Username string `json:"username"`
	KnownAs  string `json:"knownAs"`
}

type MessagesReadData struct {
	ReaderUsername string    `json:"readerUsername"`
	SenderUsername string    `json:"senderUsername"`
	ReadAt         time.Time `json:"readAt"`
	Count          int64     `json:"count"`
}

type MessageThreadData struct {
	Username string                   `json:"username"`
	Messages []models.MessageResponse `json:"messages"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessage creates an outbound event with a fresh ID.
func NewMessage(msgType MessageType, data interface{}) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
}

// NewErrorMessage creates an error event answering requestID.
func NewErrorMessage(requestID, code, message string) *Message {
	msg := NewMessage(MessageTypeError, ErrorData{Code: code, Message: message})
	msg.ReplyTo = requestID
	return msg
}

func encode(msg *Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", msg.Type, err)
	}
	return data, nil
}
