package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/starford/ctxvault/internal/apperr"
	"github.com/starford/ctxvault/internal/index"
	"github.com/starford/ctxvault/internal/models"
	"github.com/starford/ctxvault/internal/vault"
)

var (
	idColor    = color.New(color.FgYellow)
	titleColor = color.New(color.FgCyan, color.Bold)
	dimColor   = color.New(color.Faint)
	okColor    = color.New(color.FgGreen)
	warnColor  = color.New(color.FgYellow)
	errColor   = color.New(color.FgRed, color.Bold)
)

// exitCode maps the error taxonomy to process exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation), errors.Is(err, apperr.ErrParse):
		return 2
	case errors.Is(err, apperr.ErrNotFound):
		return 3
	case errors.Is(err, apperr.ErrAlreadyExists):
		return 4
	case errors.Is(err, apperr.ErrIndex):
		return 5
	}
	return 1
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// warnIndex reports a file write whose index update failed.
func warnIndex(w io.Writer, err error) {
	if err != nil {
		warnColor.Fprintf(w, "warning: %v (run `ctxvault reindex` to repair)\n", err)
	}
}

func printKnowledgeSummaries(w io.Writer, items []models.KnowledgeSummary) {
	if len(items) == 0 {
		dimColor.Fprintln(w, "no knowledge items")
		return
	}
	for _, it := range items {
		fmt.Fprintf(w, "%s  %s  %s\n",
			idColor.Sprint(it.ID), titleColor.Sprint(it.Title),
			dimColor.Sprintf("[%s, %s]", it.Category, it.Confidence))
		if len(it.Tags) > 0 {
			dimColor.Fprintf(w, "    tags: %s\n", strings.Join(it.Tags, ", "))
		}
	}
}

func printKnowledgeHits(w io.Writer, hits []index.KnowledgeHit) {
	if len(hits) == 0 {
		dimColor.Fprintln(w, "no matches")
		return
	}
	for _, h := range hits {
		fmt.Fprintf(w, "%s  %s  %s\n",
			idColor.Sprint(h.ID), titleColor.Sprint(h.Title),
			dimColor.Sprintf("[%s, %s]", h.Category, h.Date.Format("2006-01-02")))
		if h.Summary != "" {
			fmt.Fprintf(w, "    %s\n", oneLine(h.Summary))
		}
	}
}

func printFTSHits(w io.Writer, hits []index.FTSHit) {
	if len(hits) == 0 {
		dimColor.Fprintln(w, "no matches")
		return
	}
	for _, h := range hits {
		fmt.Fprintf(w, "%s  %s\n", idColor.Sprint(h.ID), titleColor.Sprint(h.Title))
		if h.Snippet != "" {
			fmt.Fprintf(w, "    %s\n", oneLine(h.Snippet))
		}
	}
}

func printSessionSummaries(w io.Writer, list []models.SessionSummary) {
	if len(list) == 0 {
		dimColor.Fprintln(w, "no sessions")
		return
	}
	for _, s := range list {
		line := fmt.Sprintf("%s  %s", idColor.Sprint(s.SessionID), s.ModelSource)
		if s.Project != "" {
			line += dimColor.Sprintf("  (%s)", s.Project)
		}
		fmt.Fprintln(w, line)
	}
}

func printStats(w io.Writer, st models.Stats) {
	fmt.Fprintf(w, "%s %d\n", titleColor.Sprint("knowledge items:"), st.KnowledgeItems)
	for _, c := range models.Categories {
		fmt.Fprintf(w, "  %-16s %d\n", c, st.ByCategory[string(c)])
	}
	fmt.Fprintf(w, "%s %d\n", titleColor.Sprint("sessions:"), st.Sessions)
}

func printReport(w io.Writer, r vault.ReindexReport) {
	okColor.Fprintf(w, "knowledge: %d indexed, %d unchanged, %d removed\n",
		r.KnowledgeIndexed, r.KnowledgeSkipped, r.KnowledgeRemoved)
	okColor.Fprintf(w, "sessions:  %d indexed, %d removed\n", r.SessionsIndexed, r.SessionsRemoved)
	if r.Failures > 0 {
		errColor.Fprintf(w, "%d records failed to index, see log\n", r.Failures)
	}
}

func printValidation(w io.Writer, res models.SkillValidation) {
	if res.Valid {
		okColor.Fprintf(w, "%s: valid\n", res.SkillID)
	} else {
		errColor.Fprintf(w, "%s: invalid\n", res.SkillID)
	}
	for _, e := range res.Errors {
		errColor.Fprintf(w, "  error: %s\n", e)
	}
	for _, wn := range res.Warnings {
		warnColor.Fprintf(w, "  warning: %s\n", wn)
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
