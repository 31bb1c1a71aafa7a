// Package skills reads skill definitions from {root}/{skill_id}/SKILL.md and
// checks skill directories for their expected files.
package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/starford/ctxvault/internal/apperr"
	"github.com/starford/ctxvault/internal/frontmatter"
	"github.com/starford/ctxvault/internal/models"
	"github.com/starford/ctxvault/internal/storage"
)

const manifestName = "SKILL.md"

var (
	requiredFiles = []string{manifestName}
	optionalFiles = []string{"scripts/summarize_session.py"}
)

// Registry lists and validates skills under one directory.
type Registry struct {
	fs  storage.Provider
	now func() time.Time
}

// NewRegistry opens the skills directory, creating it if missing.
func NewRegistry(dir string) (*Registry, error) {
	fs, err := storage.NewFS(dir)
	if err != nil {
		return nil, err
	}
	return &Registry{fs: fs, now: time.Now}, nil
}

// Root returns the absolute skills directory.
func (r *Registry) Root() string { return r.fs.Root() }

// List returns every skill that has a readable SKILL.md, sorted by ID.
func (r *Registry) List(ctx context.Context) ([]models.Skill, error) {
	entries, err := r.fs.ReadDir("")
	if err != nil {
		return nil, err
	}
	out := []models.Skill{}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sk, err := r.Load(ctx, e.Name())
		if err != nil || sk == nil {
			continue
		}
		out = append(out, *sk)
	}
	return out, nil
}

// Load reads one skill. It returns (nil, nil) when the skill has no
// SKILL.md.
func (r *Registry) Load(ctx context.Context, id string) (*models.Skill, error) {
	if !validID(id) {
		return nil, nil
	}
	rel := id + "/" + manifestName
	ok, err := r.fs.Exists(rel)
	if err != nil || !ok {
		return nil, err
	}
	data, err := r.fs.Read(rel)
	if err != nil {
		return nil, err
	}
	return parseManifest(id, string(data))
}

// Exists reports whether a skill with a SKILL.md is present.
func (r *Registry) Exists(id string) bool {
	if !validID(id) {
		return false
	}
	ok, err := r.fs.Exists(id + "/" + manifestName)
	return err == nil && ok
}

// Validate checks a skill directory for its required and optional files.
// Missing optional files are warnings only.
func (r *Registry) Validate(ctx context.Context, id string) (models.SkillValidation, error) {
	res := models.SkillValidation{
		SkillID:  id,
		Valid:    true,
		Errors:   []string{},
		Warnings: []string{},
		Files:    []string{},
	}
	if !validID(id) {
		res.Valid = false
		res.Errors = append(res.Errors, "Invalid skill id")
		return res, nil
	}
	ok, err := r.fs.DirExists(id)
	if err != nil {
		return res, err
	}
	if !ok {
		res.Valid = false
		res.Errors = append(res.Errors, "Skill directory does not exist")
		return res, nil
	}

	for _, name := range requiredFiles {
		res.Files = append(res.Files, name)
		ok, err := r.fs.Exists(id + "/" + name)
		if err != nil {
			return res, err
		}
		if !ok {
			res.Valid = false
			res.Errors = append(res.Errors, "Missing required file: "+name)
		}
	}
	for _, name := range optionalFiles {
		res.Files = append(res.Files, name)
		ok, err := r.fs.Exists(id + "/" + name)
		if err != nil {
			return res, err
		}
		if !ok {
			res.Warnings = append(res.Warnings, "Optional file missing: "+name)
		}
	}
	return res, nil
}

// CreateParams describes a new skill scaffold.
type CreateParams struct {
	SkillID     string
	Name        string
	Description string
	Command     string
}

// Create writes a SKILL.md template for a new skill. It fails with
// apperr.ErrAlreadyExists if the skill already has a manifest.
func (r *Registry) Create(ctx context.Context, p CreateParams) (*models.Skill, error) {
	if !validID(p.SkillID) {
		return nil, goerr.Wrap(apperr.ErrValidation, "invalid skill id", goerr.V("skill_id", p.SkillID))
	}
	if r.Exists(p.SkillID) {
		return nil, goerr.Wrap(apperr.ErrAlreadyExists, "skill exists", goerr.V("skill_id", p.SkillID))
	}
	if p.Name == "" {
		p.Name = p.SkillID
	}

	md := frontmatter.New()
	md.Set("skill_id", frontmatter.String(p.SkillID))
	md.Set("name", frontmatter.String(p.Name))
	md.Set("command", frontmatter.String(p.Command))
	md.Set("parameters", frontmatter.String("{}"))
	md.Set("created_at", frontmatter.String(r.now().Format(time.RFC3339)))

	body := fmt.Sprintf("# %s\n\n%s\n\n## Usage\n\nDescribe how to use this skill.\n\n"+
		"## Parameters\n\n- `param1`: Description of parameter 1\n\n"+
		"## Examples\n\n```bash\n# Example usage\n```\n", p.Name, p.Description)

	if err := r.fs.Write(p.SkillID+"/"+manifestName, []byte(frontmatter.Encode(md, body))); err != nil {
		return nil, fmt.Errorf("skills: create %s: %w", p.SkillID, err)
	}
	return r.Load(ctx, p.SkillID)
}

func parseManifest(id, text string) (*models.Skill, error) {
	md, body, err := frontmatter.Decode(text)
	if err != nil {
		// A manifest without a header is still a skill; the whole file is
		// its description.
		md, body = frontmatter.New(), text
	}

	sk := &models.Skill{
		SkillID:     orDefault(md.String("skill_id"), id),
		Name:        orDefault(md.String("name"), id),
		Description: describe(body),
		Command:     md.String("command"),
		Parameters:  map[string]any{},
	}
	if raw := md.String("parameters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &sk.Parameters); err != nil {
			return nil, goerr.Wrap(apperr.ErrParse, "skill parameters", goerr.V("skill_id", id))
		}
	}
	if raw := md.String("created_at"); raw != "" {
		if t, err := models.ParseTime(raw); err == nil {
			sk.CreatedAt = t
		}
	}
	return sk, nil
}

// describe returns the first heading's text, or the trimmed body when the
// body does not start with a heading.
func describe(body string) string {
	d := strings.TrimSpace(body)
	if rest, ok := strings.CutPrefix(d, "# "); ok {
		line, _, _ := strings.Cut(strings.TrimSpace(rest), "\n")
		return strings.TrimSpace(line)
	}
	return d
}

func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, `/\`) && !strings.Contains(id, "..") && !strings.HasPrefix(id, ".")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
