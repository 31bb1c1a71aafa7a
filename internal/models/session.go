package models

import "time"

// Role identifies the speaker of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Entry points a session can arrive through.
const (
	EntryPointCLI    = "cli"
	EntryPointImport = "import"
)

// Message is one turn of a recorded conversation.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionSummaries holds the summarizer output attached to a session.
type SessionSummaries struct {
	Short               string               `json:"short,omitempty"`
	Detailed            string               `json:"detailed,omitempty"`
	ActionItems         []string             `json:"action_items"`
	KnowledgeCandidates []KnowledgeCandidate `json:"knowledge_candidates"`
}

// Session is a recorded conversation with an agent CLI.
type Session struct {
	SessionID    string           `json:"session_id"`
	CreatedAt    time.Time        `json:"created_at"`
	ModelSource  string           `json:"model_source"`
	ModelVariant string           `json:"model_variant,omitempty"`
	EntryPoint   string           `json:"entry_point"`
	Project      string           `json:"project,omitempty"`
	Tags         []string         `json:"tags"`
	Messages     []Message        `json:"messages"`
	Summaries    SessionSummaries `json:"summaries"`
}

// SessionSummary is the lightweight record returned by session listings.
type SessionSummary struct {
	SessionID   string    `json:"session_id"`
	CreatedAt   time.Time `json:"created_at"`
	ModelSource string    `json:"model_source"`
	Project     string    `json:"project,omitempty"`
	Tags        []string  `json:"tags"`
}

// Summarize reduces a session to its listing form.
func (s *Session) Summarize() SessionSummary {
	return SessionSummary{
		SessionID:   s.SessionID,
		CreatedAt:   s.CreatedAt,
		ModelSource: s.ModelSource,
		Project:     s.Project,
		Tags:        s.Tags,
	}
}
