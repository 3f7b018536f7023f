package models

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleSystem    = "system"
)

// Message is one turn in a thread. Content may grow in place while
// IsStreaming is true; it is otherwise append-only.
type Message struct {
	ID          string    `json:"id"`
	ThreadID    string    `json:"thread_id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	ToolName    string    `json:"tool_name,omitempty"`
	IsStreaming bool      `json:"is_streaming"`
	CreatedAt   time.Time `json:"created_at"`
}

// Thread is one ordered conversation.
type Thread struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Secret metadata row. The value itself is stored encrypted and is never
// serialized.
type Secret struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	EncryptedValue string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type AuditLog struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Category  string    `json:"category"`
	Target    string    `json:"target"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

type Settings struct {
	ID    string `json:"id"`
	Key   string `json:"key"`
	Value string `json:"value"`
}
