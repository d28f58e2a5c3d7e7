package session

import (
	"time"

	"github.com/harunnryd/odoo-agent/internal/model/contract"

	"github.com/oklog/ulid/v2"
)

const (
	RoleUser      = contract.RoleUser
	RoleAssistant = contract.RoleAssistant
	RoleSystem    = "system"
)

// Message is one entry of a session transcript.
type Message struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"ts"`
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func NewMessage(role, content string) Message {
	return Message{
		ID:        ulid.Make().String(),
		Timestamp: time.Now(),
		Role:      role,
		Content:   content,
	}
}

func (m Message) ToContractMessage() contract.Message {
	return contract.Message{Role: m.Role, Content: m.Content}
}

type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
)

type Session struct {
	ID        string            `json:"id"`
	Status    Status            `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Messages  []Message         `json:"messages"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Summary is the listing view of a session.
type Summary struct {
	ID           string    `json:"id"`
	Status       Status    `json:"status"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (s *Session) summary() Summary {
	return Summary{
		ID:           s.ID,
		Status:       s.Status,
		MessageCount: len(s.Messages),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

func (s *Session) clone() Session {
	out := *s
	out.Messages = append([]Message(nil), s.Messages...)
	if s.Metadata != nil {
		out.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
