package model

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// QueryType is the closed set of intents a turn can be routed to.
type QueryType string

const (
	QueryTextDisease  QueryType = "text_disease"
	QueryImageDisease QueryType = "image_disease"
	QueryNormalQA     QueryType = "normal_qa"
	QueryChitchat     QueryType = "chitchat"
)

// ParseQueryType maps a raw label onto the enum. Unknown labels are rejected
// so raw model text never leaks into state.
func ParseQueryType(s string) (QueryType, error) {
	switch qt := QueryType(s); qt {
	case QueryTextDisease, QueryImageDisease, QueryNormalQA, QueryChitchat:
		return qt, nil
	}
	return "", fmt.Errorf("unknown query type %q", s)
}

// IsDisease reports whether the turn asks for a diagnosis.
func (q QueryType) IsDisease() bool {
	return q == QueryTextDisease || q == QueryImageDisease
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged entry of the conversation.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func UserMessage(content string) Message {
	return Message{ID: uuid.NewString(), Role: RoleUser, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{ID: uuid.NewString(), Role: RoleAssistant, Content: content}
}

// Sentinel labels written by the image node when no usable prediction exists.
const (
	DiseaseErrorProcessing = "Error processing image"
	DiseaseInconclusive    = "Analysis inconclusive"
)

type DiseaseInfo struct {
	PlantType       string   `json:"plant_type"`
	DiseaseDetected string   `json:"disease_detected"`
	Confidence      *float64 `json:"confidence,omitempty"` // in [0,1]; nil when unknown
}

// IsSentinel reports whether the detection is a failure marker rather than a
// real classifier label.
func (d *DiseaseInfo) IsSentinel() bool {
	if d == nil {
		return true
	}
	return d.DiseaseDetected == "" ||
		d.DiseaseDetected == DiseaseErrorProcessing ||
		d.DiseaseDetected == DiseaseInconclusive
}

// FormatConfidence renders a confidence as a percentage for user-facing text.
func FormatConfidence(c *float64) string {
	if c == nil {
		return "không xác định"
	}
	return fmt.Sprintf("%.1f%%", *c*100)
}

type RetrievalContext struct {
	RetrievedDocs  []string `json:"retrieved_docs"`
	Sources        []string `json:"sources"`
	HasGoodContext bool     `json:"has_good_context"`
}

// TurnState is threaded through the graph for one turn.
type TurnState struct {
	ConversationID string           `json:"conversation_id"`
	UserID         string           `json:"user_id,omitempty"`
	Messages       []Message        `json:"messages"`
	UserQuery      string           `json:"user_query"`
	CondensedQuery string           `json:"condensed_query"`
	QueryType      QueryType        `json:"query_type,omitempty"`
	ImageData      string           `json:"-"` // base64; never checkpointed
	DiseaseInfo    *DiseaseInfo     `json:"disease_info,omitempty"`
	Context        RetrievalContext `json:"context"`
	Terminal       string           `json:"terminal,omitempty"`
	ReplyID        string           `json:"-"` // assistant message written by this turn's terminal node
}

// HasImage reports whether the turn carries an image payload.
func (s *TurnState) HasImage() bool {
	return s.ImageData != ""
}

// Reply returns the assistant message written by this turn's terminal node.
// Assistant messages restored from a checkpoint never count.
func (s *TurnState) Reply() (Message, bool) {
	if s.ReplyID == "" {
		return Message{}, false
	}
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if m := s.Messages[i]; m.ID == s.ReplyID && m.Role == RoleAssistant {
			return m, true
		}
	}
	return Message{}, false
}

// Clone returns a copy that shares no mutable memory with s.
func (s *TurnState) Clone() *TurnState {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = slices.Clone(s.Messages)
	c.Context.RetrievedDocs = slices.Clone(s.Context.RetrievedDocs)
	c.Context.Sources = slices.Clone(s.Context.Sources)
	if s.DiseaseInfo != nil {
		di := *s.DiseaseInfo
		if s.DiseaseInfo.Confidence != nil {
			v := *s.DiseaseInfo.Confidence
			di.Confidence = &v
		}
		c.DiseaseInfo = &di
	}
	return &c
}

// Patch is the partial update returned by a node. Nil fields are untouched.
type Patch struct {
	Messages       []Message
	UserQuery      *string
	CondensedQuery *string
	QueryType      *QueryType
	DiseaseInfo    *DiseaseInfo
	Context        *RetrievalContext
	Terminal       *string
}

// Apply merges p into s. Messages are appended (entries whose ID is already
// present are skipped), every other non-nil field overwrites. QueryType is
// write-once per turn. A rejected patch leaves s untouched. A patch that sets
// Terminal records its last assistant message as the turn's reply.
func (s *TurnState) Apply(p *Patch) error {
	if p == nil {
		return nil
	}
	if err := s.validate(p); err != nil {
		return err
	}

	if p.QueryType != nil {
		s.QueryType = *p.QueryType
	}
	for _, m := range p.Messages {
		if m.ID != "" && slices.ContainsFunc(s.Messages, func(e Message) bool { return e.ID == m.ID }) {
			continue
		}
		s.Messages = append(s.Messages, m)
	}
	if p.UserQuery != nil {
		s.UserQuery = *p.UserQuery
	}
	if p.CondensedQuery != nil {
		s.CondensedQuery = *p.CondensedQuery
	}
	if p.DiseaseInfo != nil {
		s.DiseaseInfo = p.DiseaseInfo
	}
	if p.Context != nil {
		s.Context = *p.Context
	}
	if p.Terminal != nil {
		s.Terminal = *p.Terminal
		s.ReplyID = ""
		for i := len(p.Messages) - 1; i >= 0; i-- {
			if p.Messages[i].Role == RoleAssistant {
				s.ReplyID = p.Messages[i].ID
				break
			}
		}
	}
	return nil
}

func (s *TurnState) validate(p *Patch) error {
	if p.QueryType != nil {
		if _, err := ParseQueryType(string(*p.QueryType)); err != nil {
			return err
		}
		if s.QueryType != "" && s.QueryType != *p.QueryType {
			return fmt.Errorf("query type already set to %s, refusing %s", s.QueryType, *p.QueryType)
		}
	}
	if p.DiseaseInfo != nil && p.DiseaseInfo.Confidence != nil {
		if c := *p.DiseaseInfo.Confidence; c < 0 || c > 1 {
			return fmt.Errorf("confidence %v out of range", c)
		}
	}
	return nil
}

// TurnInput is one user submission.
type TurnInput struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Text           string `json:"text"`
	ImageBase64    string `json:"image,omitempty"`
}

// TurnOutput is what the core hands back for persistence and display.
type TurnOutput struct {
	ConversationID string       `json:"conversation_id"`
	FinalMessage   string       `json:"final_message"`
	QueryType      QueryType    `json:"query_type"`
	Terminal       string       `json:"terminal"`
	DiseaseInfo    *DiseaseInfo `json:"disease_info,omitempty"`
	Sources        []string     `json:"sources,omitempty"`
}

// Ptr returns a pointer to v; handy when building patches.
func Ptr[T any](v T) *T {
	return &v
}
