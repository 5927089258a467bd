package mcpserver

// NoteFormatContract describes the canonical Markdown note format that
// LLM consumers should follow when creating or updating notes.
const NoteFormatContract = `# Ansuz Note Format Contract

Every Markdown note stored in Ansuz MUST follow this structure.

## Structure

` + "```" + `markdown
---
title: Human-readable title        # REQUIRED – used in search and the structure index
type: zettel                        # OPTIONAL – zettel, zk-index, or project-moc
project: my-project                 # OPTIONAL – project hub this note belongs to
keywords:                           # OPTIONAL – YAML list; drives related-note retrieval
  - keyword-one
  - keyword-two
created: 2026-01-15                 # OPTIONAL – ISO-8601 date or datetime
---

Body text in standard Markdown.

Use [[wikilinks]] to reference other notes (without .md extension).
Use [[target|alias]] for display text that differs from the target.
` + "```" + `

## Rules

1. **YAML frontmatter is mandatory.** The ` + "```" + `---` + "```" + ` fences must be the first
   thing in the file (no leading blank lines).
2. **` + "`" + `title` + "`" + ` field is required.** It is the primary display name everywhere.
3. **Keywords** are lowercase, kebab-case (e.g. ` + "`" + `project-x` + "`" + `, ` + "`" + `meeting-notes` + "`" + `).
   They drive the related-note prefilter, so pick terms you would search by.
4. **Wikilinks** use double brackets: ` + "`" + `[[other-note]]` + "`" + `. The target is the
   filename stem (no ` + "`" + `.md` + "`" + ` extension, path separators OK: ` + "`" + `[[folder/note]]` + "`" + `).
5. **File paths** end with ` + "`" + `.md` + "`" + ` and use forward slashes.
6. **Encoding** is UTF-8 with a trailing newline.
7. **No HTML** unless absolutely necessary; prefer Markdown equivalents.
8. **Zettel notes** (` + "`" + `type: zettel` + "`" + `) live under ` + "`" + `zettel/` + "`" + ` and carry one
   atomic idea each. Their ## Connections section is maintained by the organizer;
   append to it, never rewrite it.
9. **Language policy:** file names and directory names MUST be in English (Latin characters).
   Frontmatter keys MUST be in English (they are schema fields). Frontmatter values
   (title, keywords, aliases, etc.) and body content may use any language.

## Example

` + "```" + `markdown
---
title: MQTT retained messages
type: zettel
keywords:
  - mqtt
  - messaging
created: 2026-01-20
---

# MQTT retained messages

A broker stores the last retained message per topic and delivers it to
new subscribers immediately.

## Connections

- [[zettel/20260112-003]] (85%): both cover MQTT delivery guarantees
` + "```" + `
`
