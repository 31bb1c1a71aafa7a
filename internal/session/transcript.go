package session

import (
	"strings"
	"time"

	"github.com/starford/ctxvault/internal/models"
)

var roleIcons = map[models.Role]string{
	models.RoleUser:      "👤",
	models.RoleAssistant: "🤖",
}

// Transcript renders the human-readable Markdown view of a session. System
// messages are left out; they remain in the JSON record.
func Transcript(s *models.Session) string {
	model := s.ModelSource
	if model == "" {
		model = "unknown"
	}
	lines := []string{
		"# Session: " + s.SessionID,
		"",
		"**Model:** " + model,
		"**Date:** " + formatTime(s.CreatedAt),
	}
	if s.Project != "" {
		lines = append(lines, "**Project:** "+s.Project)
	}
	if len(s.Tags) > 0 {
		lines = append(lines, "**Tags:** "+strings.Join(s.Tags, ", "))
	}
	lines = append(lines, "", "---", "", "## Conversation", "")

	for _, m := range s.Messages {
		if m.Role == models.RoleSystem {
			continue
		}
		icon, ok := roleIcons[m.Role]
		if !ok {
			icon = "•"
		}
		role := strings.ToUpper(string(m.Role))
		if role == "" {
			role = "UNKNOWN"
		}
		lines = append(lines,
			"### "+icon+" "+role,
			"_"+formatTime(m.Timestamp)+"_",
			"",
			m.Content,
			"",
		)
	}
	return strings.Join(lines, "\n")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
