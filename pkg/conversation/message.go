package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleAssistant, RoleUser:
		return true
	}
	return false
}

// NodeID identifies a message for the lifetime of the process.
type NodeID uuid.UUID

var NullNode = NodeID(uuid.Nil)

func NewNodeID() NodeID {
	return NodeID(uuid.New())
}

func (id NodeID) String() string {
	return uuid.UUID(id).String()
}

func (id NodeID) MarshalJSON() ([]byte, error) {
	return json.Marshal(uuid.UUID(id))
}

func (id *NodeID) UnmarshalJSON(data []byte) error {
	var u uuid.UUID
	if err := json.Unmarshal(data, &u); err != nil {
		return err
	}
	*id = NodeID(u)
	return nil
}

// Message is a single turn in a thread. Messages are values: the store never
// hands out pointers into its threads, so changing a Message only takes effect
// through ReplaceMessage.
type Message struct {
	ID        NodeID    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	IsEditing bool      `json:"isEditing,omitempty"`
	Time      time.Time `json:"time"`
}

type MessageOption func(*Message)

func WithID(id NodeID) MessageOption {
	return func(m *Message) {
		m.ID = id
	}
}

func WithTime(t time.Time) MessageOption {
	return func(m *Message) {
		m.Time = t
	}
}

func NewMessage(role Role, content string, options ...MessageOption) Message {
	ret := Message{
		ID:      NewNodeID(),
		Role:    role,
		Content: content,
		Time:    time.Now(),
	}
	for _, option := range options {
		option(&ret)
	}
	return ret
}

func NewUserMessage(content string, options ...MessageOption) Message {
	return NewMessage(RoleUser, content, options...)
}

func NewAssistantMessage(content string, options ...MessageOption) Message {
	return NewMessage(RoleAssistant, content, options...)
}

// NewPlaceholder creates the empty, edit-flagged user message that ends a
// freshly created branch.
func NewPlaceholder(options ...MessageOption) Message {
	ret := NewMessage(RoleUser, "", options...)
	ret.IsEditing = true
	return ret
}

// SameTurn compares role and content only. Identity, timestamps and the edit
// flag do not take part in branch matching.
func (m Message) SameTurn(other Message) bool {
	return m.Role == other.Role && m.Content == other.Content
}

func (m Message) String() string {
	return fmt.Sprintf("[%s]: %s", m.Role, strings.TrimRight(m.Content, "\n"))
}

// Thread is one root-to-leaf path through the implicit conversation tree.
type Thread []Message

// Clone returns a copy that shares no backing array with t.
func (t Thread) Clone() Thread {
	if t == nil {
		return Thread{}
	}
	ret := make(Thread, len(t))
	copy(ret, t)
	return ret
}

func (t Thread) Last() (Message, bool) {
	if len(t) == 0 {
		return Message{}, false
	}
	return t[len(t)-1], true
}

// PrefixEqual reports whether t[0:n) and other[0:n) match turn by turn. Both
// threads must be at least n long.
func (t Thread) PrefixEqual(other Thread, n int) bool {
	if n < 0 || len(t) < n || len(other) < n {
		return false
	}
	for i := 0; i < n; i++ {
		if !t[i].SameTurn(other[i]) {
			return false
		}
	}
	return true
}

// ChatMessage is what a completion gateway gets to see of a message.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ToChatMessages strips identity and edit state from a thread.
func (t Thread) ToChatMessages() []ChatMessage {
	ret := make([]ChatMessage, 0, len(t))
	for _, m := range t {
		ret = append(ret, ChatMessage{Role: m.Role, Content: m.Content})
	}
	return ret
}

// GetSinglePrompt concatenates all the messages, prefixed by their role.
func (t Thread) GetSinglePrompt() string {
	if len(t) == 0 {
		return ""
	}
	if len(t) == 1 {
		return t[0].Content
	}
	var b strings.Builder
	for _, m := range t {
		b.WriteString(m.String())
		b.WriteString("\n")
	}
	return b.String()
}
