package models

import "time"

// Skill is a reusable processing recipe described by a SKILL.md file.
type Skill struct {
	SkillID     string         `json:"skill_id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Command     string         `json:"command,omitempty"`
	Parameters  map[string]any `json:"parameters"`
	CreatedAt   time.Time      `json:"created_at"`
}

// SkillValidation reports whether a skill directory has the expected files.
type SkillValidation struct {
	SkillID  string   `json:"skill_id"`
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	Files    []string `json:"files"`
}
