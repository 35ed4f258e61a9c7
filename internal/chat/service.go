package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agri-chat-core/server/internal/agent/graph"
	"github.com/agri-chat-core/server/internal/agent/model"
	errx "github.com/agri-chat-core/server/internal/core/error"
	"github.com/agri-chat-core/server/internal/store"
	logx "github.com/agri-chat-core/server/pkg/logger"
)

const (
	EventEnd   = "end"
	EventError = "error"

	DefaultTitle = "Hội thoại mới"
	titleLimit   = 50

	imagePlaceholder = "[Image Sent]"
)

var ErrAccessDenied = errors.New("conversation not found or access denied")

// Request is one submission from a chat client.
type Request struct {
	UserID         string
	ConversationID string // empty starts a new conversation
	Text           string
	ImageBase64    string
}

// Event is the single result of a processed request.
type Event struct {
	Event          string `json:"event"`
	FinalMessage   string `json:"final_message,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Detail         string `json:"detail,omitempty"`
}

// Service runs turns for chat clients and keeps the displayed history in the
// repository. Turns of one conversation run one at a time.
type Service struct {
	runner      graph.Runner
	repo        store.Repository
	checkpoints model.CheckpointStore
	locks       *keyedMutex
}

func NewService(runner graph.Runner, repo store.Repository, checkpoints model.CheckpointStore) *Service {
	return &Service{runner: runner, repo: repo, checkpoints: checkpoints, locks: newKeyedMutex()}
}

// Title derives a conversation title from the first message.
func Title(first string) string {
	r := []rune(first)
	if len(r) > titleLimit {
		r = r[:titleLimit]
	}
	if t := strings.TrimSpace(string(r)); t != "" {
		return t
	}
	return DefaultTitle
}

// Conversation returns the id of the requested conversation, creating one when
// req carries none. An id owned by another user is rejected.
func (s *Service) Conversation(ctx context.Context, req Request) (string, error) {
	if req.ConversationID == "" {
		c, err := s.repo.CreateConversation(ctx, req.UserID, Title(req.Text))
		if err != nil {
			return "", err
		}
		return c.ID, nil
	}

	c, err := s.owned(ctx, req.UserID, req.ConversationID)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

func (s *Service) owned(ctx context.Context, userID, convID string) (*store.Conversation, error) {
	c, err := s.repo.GetConversation(ctx, convID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAccessDenied
	}
	if err != nil {
		return nil, err
	}
	if c.UserID != userID {
		return nil, ErrAccessDenied
	}
	return c, nil
}

// Conversations lists the user's conversations, newest first.
func (s *Service) Conversations(ctx context.Context, userID string) ([]store.Conversation, error) {
	return s.repo.ListConversations(ctx, userID)
}

// History returns the displayed messages of a conversation the user owns.
func (s *Service) History(ctx context.Context, userID, convID string) ([]store.ChatMessage, error) {
	if _, err := s.owned(ctx, userID, convID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, convID)
}

// Detections lists the disease detections across the user's conversations.
func (s *Service) Detections(ctx context.Context, userID string) ([]store.Detection, error) {
	return s.repo.ListDetections(ctx, userID)
}

// DeleteConversation drops the turn checkpoint, then the stored history.
func (s *Service) DeleteConversation(ctx context.Context, userID, convID string) error {
	if _, err := s.owned(ctx, userID, convID); err != nil {
		return err
	}

	unlock := s.locks.Lock(convID)
	defer unlock()

	if err := s.checkpoints.Delete(ctx, convID); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	if err := s.repo.DeleteConversation(ctx, convID); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	logx.Info().Str("user_id", userID).Str("conversation_id", convID).Msg("Conversation deleted")
	return nil
}

// Process runs one turn and persists both sides of the exchange.
func (s *Service) Process(ctx context.Context, req Request) Event {
	log := logx.Component("chat").With().Str("user_id", req.UserID).Logger()

	convID, err := s.Conversation(ctx, req)
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", req.ConversationID).Msg("Conversation lookup failed")
		if errors.Is(err, ErrAccessDenied) {
			return errorEvent("Không tìm thấy hội thoại hoặc bạn không có quyền truy cập.")
		}
		return errorEvent("Không thể tạo hội thoại.")
	}
	log = log.With().Str("conversation_id", convID).Logger()

	unlock := s.locks.Lock(convID)
	defer unlock()

	content := req.Text
	if strings.TrimSpace(content) == "" {
		content = imagePlaceholder
	}
	if _, err := s.repo.AddMessage(ctx, &store.ChatMessage{
		ConversationID: convID,
		UserID:         req.UserID,
		Sender:         store.SenderUser,
		Content:        content,
	}); err != nil {
		log.Error().Err(err).Msg("Saving user message failed")
		return errorEvent("Không thể lưu tin nhắn người dùng.")
	}

	out, err := s.runner.Run(ctx, model.TurnInput{
		ConversationID: convID,
		UserID:         req.UserID,
		Text:           req.Text,
		ImageBase64:    req.ImageBase64,
	})
	if err != nil {
		log.Error().Err(err).Msg("Turn failed")
		return errorEvent(serverError(err))
	}

	botID, err := s.repo.AddMessage(ctx, &store.ChatMessage{
		ConversationID: convID,
		UserID:         req.UserID,
		Sender:         store.SenderBot,
		Content:        out.FinalMessage,
	})
	if err != nil {
		log.Error().Err(err).Msg("Saving bot message failed")
		return errorEvent(serverError(err))
	}

	if out.QueryType == model.QueryImageDisease && !out.DiseaseInfo.IsSentinel() {
		if err := s.repo.AddDetection(ctx, &store.Detection{
			MessageID:   botID,
			PlantType:   out.DiseaseInfo.PlantType,
			DiseaseName: out.DiseaseInfo.DiseaseDetected,
			Confidence:  out.DiseaseInfo.Confidence,
		}); err != nil {
			log.Warn().Err(err).Msg("Saving disease detection failed, ignoring")
		}
	}

	return Event{Event: EventEnd, FinalMessage: out.FinalMessage, ConversationID: convID}
}

func errorEvent(detail string) Event {
	return Event{Event: EventError, Detail: detail}
}

func serverError(err error) string {
	if kind := errx.KindOf(err); kind != "" {
		return fmt.Sprintf("Lỗi server: %s", kind)
	}
	return "Lỗi server: internal"
}
