package mcpserver

// KnowledgeFormatContract describes the on-disk knowledge item format that
// LLM consumers should follow when creating knowledge items.
const KnowledgeFormatContract = `# ctxvault Knowledge Format Contract

Knowledge items are Markdown files with a restricted frontmatter header,
stored at ` + "`" + `{knowledge_dir}/{category}/{YYYY}/{id}.md` + "`" + `.
Create them with the ` + "`" + `create_knowledge` + "`" + ` tool; the vault assigns the ID,
date and path and keeps the search index in sync.

## Structure

` + "```" + `markdown
---
id: "tech_notes-2025-01-15-1a2b3c4d"
title: "Retry Backoff"
date: "2025-01-15T10:30:00+09:00"
source_sessions: ["2025-01-15T10-00-00-claude"]
model_sources: ["claude"]
tags: ["go","networking"]
category: "tech_notes"
confidence: "medium"
---

Body text in standard Markdown.
` + "```" + `

## Fields

1. **category** is one of ` + "`" + `trusted_sources` + "`" + `, ` + "`" + `thinking` + "`" + `, ` + "`" + `tech_notes` + "`" + `,
   ` + "`" + `skills_derived` + "`" + `. Anything else is rejected.
2. **confidence** is ` + "`" + `low` + "`" + `, ` + "`" + `medium` + "`" + ` or ` + "`" + `high` + "`" + `. Omit it for medium.
3. **title** is required and is what substring search matches, together with
   the summary.
4. **source_sessions** lists the session IDs (` + "`" + `YYYY-MM-DDTHH-MM-SS-model` + "`" + `)
   the knowledge came from. **model_sources** lists the agents involved.
5. **generated_by_skill** names the skill that produced the item, when any.
6. The summary is derived from the body: markup characters removed, cut at
   200 characters. Put the key statement first.

## Header syntax

- One ` + "`" + `key: value` + "`" + ` per line between ` + "`" + `---` + "`" + ` fences at the very start of the file.
- Scalars sit inside one pair of double quotes and are taken literally:
  backslashes and inner quotes are plain characters. Keep them on one line.
- Lists are inline JSON arrays: ` + "`" + `["a","b"]` + "`" + `. An empty list is ` + "`" + `[]` + "`" + `.
- Nested maps and multi-line values are not supported.
- Keys are English schema names; values and body may use any language.

## Full-text queries

` + "`" + `search_fulltext` + "`" + ` accepts the SQLite FTS5 query grammar: bare terms are
ANDed, ` + "`" + `"exact phrase"` + "`" + `, ` + "`" + `prefix*` + "`" + `, ` + "`" + `OR` + "`" + `, ` + "`" + `NOT` + "`" + ` and
` + "`" + `title:term` + "`" + ` column filters.
`
