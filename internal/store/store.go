package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a conversation does not exist.
var ErrNotFound = errors.New("not found")

// Sender values stored on chat messages.
const (
	SenderUser = "user"
	SenderBot  = "bot"
)

type Conversation struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
}

type ChatMessage struct {
	ID             int64
	ConversationID string
	UserID         string
	Sender         string
	Content        string
	Timestamp      time.Time
}

// Detection is the disease prediction attached to one bot message.
type Detection struct {
	ID             int64
	MessageID      int64
	ConversationID string // filled on reads
	PlantType      string
	DiseaseName    string
	Confidence     *float64
	DetectedAt     time.Time
}

// Repository persists the caller-visible chat history.
type Repository interface {
	CreateConversation(ctx context.Context, userID, title string) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)
	DeleteConversation(ctx context.Context, id string) error

	AddMessage(ctx context.Context, msg *ChatMessage) (int64, error)
	ListMessages(ctx context.Context, conversationID string) ([]ChatMessage, error)

	AddDetection(ctx context.Context, d *Detection) error
	GetDetection(ctx context.Context, messageID int64) (*Detection, error)
	ListDetections(ctx context.Context, userID string) ([]Detection, error)

	Ping(ctx context.Context) error
	Close() error
}
