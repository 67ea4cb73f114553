package conversation

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Label is the speaker prefix used when rendering history into a prompt.
func (r Role) Label() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// Status is the lifecycle state of a message.
type Status string

const (
	// StatusPending marks an assistant placeholder awaiting a reply.
	StatusPending Status = "pending"
	// StatusResolved is a finished message. User messages are born resolved.
	StatusResolved Status = "resolved"
	// StatusFailed is an assistant reply that carries the failure text.
	StatusFailed Status = "failed"
)

func (s Status) valid() bool {
	switch s {
	case StatusPending, StatusResolved, StatusFailed:
		return true
	}
	return false
}

// PlaceholderText is shown while a reply is pending.
const PlaceholderText = "Thinking..."

// FailureText replaces a placeholder whose reply could not be produced.
const FailureText = "Sorry, I encountered an error while processing your request."

// Message is one entry of a conversation thread.
type Message struct {
	ID      string
	Role    Role
	Content string
	Status  Status
}

// IsLoading reports whether the message is a pending placeholder.
func (m Message) IsLoading() bool {
	return m.Status == StatusPending
}

// NewID returns a fresh message id.
func NewID() string {
	return uuid.New().String()
}

// UserMessage builds a resolved user message.
func UserMessage(content string) Message {
	return Message{ID: NewID(), Role: RoleUser, Content: content, Status: StatusResolved}
}

// Placeholder builds a pending assistant message.
func Placeholder() Message {
	return Message{ID: NewID(), Role: RoleAssistant, Content: PlaceholderText, Status: StatusPending}
}

// Resolve returns the placeholder completed with the reply text.
func (m Message) Resolve(content string) Message {
	m.Content = content
	m.Status = StatusResolved
	return m
}

// Fail returns the placeholder completed with the failure text.
func (m Message) Fail() Message {
	m.Content = FailureText
	m.Status = StatusFailed
	return m
}

type messageJSON struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Role      Role   `json:"role"`
	Status    Status `json:"status,omitempty"`
	IsLoading bool   `json:"isLoading,omitempty"`
}

// MarshalJSON writes the status and the isLoading flag older snapshots use.
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(messageJSON{
		ID:        m.ID,
		Content:   m.Content,
		Role:      m.Role,
		Status:    m.Status,
		IsLoading: m.IsLoading(),
	})
}

// UnmarshalJSON accepts records with or without a status field.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	status := raw.Status
	switch {
	case status == "" && raw.IsLoading:
		status = StatusPending
	case status == "":
		status = StatusResolved
	case !status.valid():
		return fmt.Errorf("message %s: unknown status %q", raw.ID, raw.Status)
	}
	*m = Message{ID: raw.ID, Role: raw.Role, Content: raw.Content, Status: status}
	return nil
}
