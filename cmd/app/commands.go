package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/starford/ctxvault/internal"
	"github.com/starford/ctxvault/internal/apperr"
	"github.com/starford/ctxvault/internal/index"
	"github.com/starford/ctxvault/internal/knowledge"
	"github.com/starford/ctxvault/internal/models"
	"github.com/starford/ctxvault/internal/session"
	"github.com/starford/ctxvault/internal/skills"
	"github.com/starford/ctxvault/internal/vault"
)

func limitFlag() cli.Flag {
	return &cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Max results (0 = default)"}
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	v := cmd.Args().First()
	if v == "" {
		return "", fmt.Errorf("%w: %s argument is required", apperr.ErrValidation, name)
	}
	return v, nil
}

func categoryFlag(cmd *cli.Command) (*models.Category, error) {
	raw := cmd.String("category")
	if raw == "" {
		return nil, nil
	}
	c := models.Category(raw)
	if !c.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", apperr.ErrValidation, raw)
	}
	return &c, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func cmdInit() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Create the data directories, the index and a default config file",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.String("config")
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				if err := writeDefaultConfig(path); err != nil {
					return err
				}
				okColor.Fprintf(color.Output, "wrote %s\n", path)
			}
			return withVault(ctx, cmd, func(ctx context.Context, v *internal.Vault) error {
				okColor.Fprintf(color.Output, "knowledge: %s\n", v.Service.KnowledgeRoot())
				okColor.Fprintf(color.Output, "sessions:  %s\n", v.Service.SessionsRoot())
				return nil
			})
		},
	}
}

func writeDefaultConfig(path string) error {
	cfg := internal.NewDefaultConfig()
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("encode default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func cmdKnowledge() *cli.Command {
	return &cli.Command{
		Name:    "knowledge",
		Aliases: []string{"k"},
		Usage:   "Manage knowledge items",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List knowledge items, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "category", Usage: "Category filter"},
					limitFlag(),
					&cli.BoolFlag{Name: "json", Usage: "Print JSON"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cat, err := categoryFlag(cmd)
					if err != nil {
						return err
					}
					return withVault(ctx, cmd, func(ctx context.Context, v *internal.Vault) error {
						items, err := v.Service.ListKnowledge(ctx, cat, int(cmd.Int("limit")))
						if err != nil {
							return err
						}
						if cmd.Bool("json") {
							return printJSON(color.Output, items)
						}
						printKnowledgeSummaries(color.Output, items)
						return nil
					})
				},
			},
			{
				Name:      "show",
				Usage:     "Print a knowledge item file",
				ArgsUsage: "ID",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := requireArg(cmd, "ID")
					if err != nil {
						return err
					}
					return withVault(ctx, cmd, func(ctx context.Context, v *internal.Vault) error {
						doc, err := v.Service.GetKnowledge(ctx, id)
						if err != nil {
							return err
						}
						dimColor.Fprintln(color.Output, doc.Path)
						fmt.Fprintln(color.Output, string(knowledge.Marshal(doc.Item, doc.Body)))
						return nil
					})
				},
			},
			{
				Name:  "create",
				Usage: "Create a knowledge item",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Required: true},
					&cli.StringFlag{Name: "category", Required: true, Usage: "trusted_sources, thinking, tech_notes or skills_derived"},
					&cli.StringFlag{Name: "content", Usage: "Markdown body"},
					&cli.StringFlag{Name: "file", Usage: "Read the body from a file (- for stdin)"},
					&cli.StringFlag{Name: "tags", Usage: "Comma-separated tags"},
					&cli.StringFlag{Name: "sessions", Usage: "Comma-separated source session IDs"},
					&cli.StringFlag{Name: "models", Usage: "Comma-separated model sources"},
					&cli.StringFlag{Name: "confidence", Usage: "low, medium or high"},
					&cli.StringFlag{Name: "skill", Usage: "Generating skill ID"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					content, err := readContent(cmd.String("content"), cmd.String("file"))
					if err != nil {
						return err
					}
					return withVault(ctx, cmd, func(ctx context.Context, v *internal.Vault) error {
						doc, err := v.Service.CreateKnowledge(ctx, knowledge.CreateParams{
							Title:            cmd.String("title"),
							Content:          content,
							Category:         models.Category(cmd.String("category")),
							SourceSessions:   splitList(cmd.String("sessions")),
							ModelSources:     splitList(cmd.String("models")),
							Tags:             splitList(cmd.String("tags")),
							Confidence:       models.Confidence(cmd.String("confidence")),
							GeneratedBySkill: cmd.String("skill"),
						})
						if err != nil && !vault.IsIndexError(err) {
							return err
						}
						okColor.Fprintf(color.Output, "created %s\n", doc.Item.ID)
						dimColor.Fprintln(color.Output, doc.Path)
						warnIndex(color.Output, err)
						return nil
					})
				},
			},
		},
	}
}

func readContent(inline, file string) (string, error) {
	switch file {
	case "":
		return inline, nil
	case "-":
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	default:
		data, err := os.ReadFile(file)
		return string(data), err
	}
}

func cmdSessions() *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "List sessions, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Usage: "Model source filter"},
			limitFlag(),
			&cli.BoolFlag{Name: "json", Usage: "Print JSON"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withVault(ctx, cmd, func(ctx context.Context, v *internal.Vault) error {
				list, err := v.Service.ListSessions(ctx, int(cmd.Int("limit")), cmd.String("model"))
				if err != nil {
					return err
				}
				if cmd.Bool("json") {
					return printJSON(color.Output, list)
				}
				printSessionSummaries(color.Output, list)
				return nil
			})
		},
	}
}

func cmdSession() *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Inspect or import a single session",
		Commands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Print a session transcript",
				ArgsUsage: "ID",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Print the JSON record instead"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := requireArg(cmd, "ID")
					if err != nil {
						return err
					}
					return withVault(ctx, cmd, func(ctx context.Context, v *internal.Vault) error {
						sess, err := v.Service.GetSession(ctx, id)
						if err != nil {
							return err
						}
						if cmd.Bool("json") {
							return printJSON(color.Output, sess)
						}
						fmt.Fprintln(color.Output, session.Transcript(sess))
						return nil
					})
				},
			},
			{
				Name:      "import",
				Usage:     "Import a session JSON record",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "model", Usage: "Model source when the record has none"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					file, err := requireArg(cmd, "FILE")
					if err != nil {
						return err
					}
					sess, err := readSessionFile(file, cmd.String("model"))
					if err != nil {
						return err
					}
					return withVault(ctx, cmd, func(ctx context.Context, v *internal.Vault) error {
						path, err := v.Service.SaveSession(ctx, sess)
						if err != nil && !vault.IsIndexError(err) {
							return err
						}
						okColor.Fprintf(color.Output, "imported %s\n", sess.SessionID)
						dimColor.Fprintln(color.Output, path)
						warnIndex(color.Output, err)
						return nil
					})
				},
			},
		},
	}
}

// readSessionFile decodes a session record for import, filling the entry
// point and, when absent, the ID from the creation time and model.
func readSessionFile(file, model string) (*models.Session, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperr.ErrParse, file, err)
	}
	if sess.ModelSource == "" {
		sess.ModelSource = model
	}
	if sess.EntryPoint == "" {
		sess.EntryPoint = models.EntryPointImport
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	if sess.SessionID == "" && sess.ModelSource != "" {
		sess.SessionID = session.NewID(sess.CreatedAt, sess.ModelSource)
	}
	return &sess, nil
}

func cmdPromote() *cli.Command {
	return &cli.Command{
		Name:      "promote",
		Usage:     "Promote a session's knowledge candidate to a knowledge item",
		ArgsUsage: "SESSION_ID",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "index", Aliases: []string{"i"}, Usage: "Candidate index"},
			&cli.StringFlag{Name: "category", Usage: "Override the candidate's category"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := requireArg(cmd, "SESSION_ID")
			if err != nil {
				return err
			}
			cat, err := categoryFlag(cmd)
			if err != nil {
				return err
			}
			return withVault(ctx, cmd, func(ctx context.Context, v *internal.Vault) error {
				doc, err := v.Service.PromoteCandidate(ctx, id, int(cmd.Int("index")), cat)
				if err != nil && !vault.IsIndexError(err) {
					return err
				}
				okColor.Fprintf(color.Output, "created %s\n", doc.Item.ID)
				warnIndex(color.Output, err)
				return nil
			})
		},
	}
}

func cmdSearch() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search knowledge items",
		ArgsUsage: "QUERY",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "category", Usage: "Category filter (substring search only)"},
			&cli.BoolFlag{Name: "fts", Usage: "Ranked full-text search over bodies"},
			limitFlag(),
			&cli.BoolFlag{Name: "json", Usage: "Print JSON"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			query := strings.Join(cmd.Args().Slice(), " ")
			limit := int(cmd.Int("limit"))
			return withVault(ctx, cmd, func(ctx context.Context, v *internal.Vault) error {
				if cmd.Bool("fts") {
					if query == "" {
						return fmt.Errorf("%w: QUERY is required with --fts", apperr.ErrValidation)
					}
					hits, err := v.Service.SearchFullText(ctx, query, limit)
					if err != nil {
						return err
					}
					if cmd.Bool("json") {
						return printJSON(color.Output, hits)
					}
					printFTSHits(color.Output, hits)
					return nil
				}

				hits, err := v.Service.Search(ctx, index.FilterQuery{
					Query:    query,
					Category: models.Category(cmd.String("category")),
					Limit:    limit,
				})
				if err != nil {
					return err
				}
				if cmd.Bool("json") {
					return printJSON(color.Output, hits)
				}
				printKnowledgeHits(color.Output, hits)
				return nil
			})
		},
	}
}

func cmdStats() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show index counts",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withVault(ctx, cmd, func(ctx context.Context, v *internal.Vault) error {
				st, err := v.Service.Stats(ctx)
				if err != nil {
					return err
				}
				printStats(color.Output, st)
				return nil
			})
		},
	}
}

func cmdReindex() *cli.Command {
	return &cli.Command{
		Name:  "reindex",
		Usage: "Rebuild the index from the knowledge and session files",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "full", Usage: "Drop the index first and re-index everything"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withVault(ctx, cmd, func(ctx context.Context, v *internal.Vault) error {
				report, err := v.Service.Reindex(ctx, vault.ReindexOptions{Full: cmd.Bool("full")})
				if err != nil {
					return err
				}
				printReport(color.Output, report)
				return nil
			})
		},
	}
}

func cmdSkills() *cli.Command {
	return &cli.Command{
		Name:  "skills",
		Usage: "Manage skills",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List skills",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withVault(ctx, cmd, func(ctx context.Context, v *internal.Vault) error {
						list, err := v.Service.ListSkills(ctx)
						if err != nil {
							return err
						}
						if len(list) == 0 {
							dimColor.Fprintln(color.Output, "no skills")
						}
						for _, sk := range list {
							fmt.Fprintf(color.Output, "%s  %s\n", idColor.Sprint(sk.SkillID), titleColor.Sprint(sk.Name))
							if sk.Description != "" {
								fmt.Fprintf(color.Output, "    %s\n", oneLine(sk.Description))
							}
						}
						return nil
					})
				},
			},
			{
				Name:      "validate",
				Usage:     "Check a skill directory's files",
				ArgsUsage: "SKILL_ID",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := requireArg(cmd, "SKILL_ID")
					if err != nil {
						return err
					}
					return withVault(ctx, cmd, func(ctx context.Context, v *internal.Vault) error {
						res, err := v.Service.ValidateSkill(ctx, id)
						if err != nil {
							return err
						}
						printValidation(color.Output, res)
						if !res.Valid {
							return fmt.Errorf("%w: skill %s is invalid", apperr.ErrValidation, id)
						}
						return nil
					})
				},
			},
			{
				Name:      "new",
				Usage:     "Scaffold a new skill",
				ArgsUsage: "SKILL_ID",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name"},
					&cli.StringFlag{Name: "description"},
					&cli.StringFlag{Name: "command", Usage: "Command the skill runs"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := requireArg(cmd, "SKILL_ID")
					if err != nil {
						return err
					}
					return withVault(ctx, cmd, func(ctx context.Context, v *internal.Vault) error {
						sk, err := v.Service.CreateSkill(ctx, skills.CreateParams{
							SkillID:     id,
							Name:        cmd.String("name"),
							Description: cmd.String("description"),
							Command:     cmd.String("command"),
						})
						if err != nil {
							return err
						}
						okColor.Fprintf(color.Output, "created skill %s\n", sk.SkillID)
						return nil
					})
				},
			},
		},
	}
}
