package mcpserver

// NoteFormatContract describes the canonical Markdown note format that
// LLM consumers should follow when creating or updating notes.
const NoteFormatContract = `# Ansuz Note Format Contract

Every Markdown note stored in Ansuz MUST follow this structure.

## Structure

` + "```" + `markdown
---
title: Human-readable title        # REQUIRED – used in search, graph, link resolution
category: Research                  # OPTIONAL – one of the fixed categories
tags:                               # OPTIONAL – YAML list; used for filtering
  - tag-one
  - tag-two
parent: "[[parent-note]]"           # OPTIONAL – hierarchy parent
created: 2025-01-15                 # OPTIONAL – ISO-8601 date or datetime
---

Body text in standard Markdown.

Use [[wikilinks]] to reference other notes (without .md extension).
Use [[target|alias]] for display text that differs from the target.
Use typed relation markup for semantic edges: supports:: [[claim-note]]
` + "```" + `

## Rules

1. **YAML frontmatter is mandatory.** The ` + "```" + `---` + "```" + ` fences must be the first
   thing in the file (no leading blank lines).
2. **` + "`" + `title` + "`" + ` field is required.** It is the primary display name everywhere.
3. **Tags** are lowercase, kebab-case (e.g. ` + "`" + `project-x` + "`" + `, ` + "`" + `meeting-notes` + "`" + `).
4. **Wikilinks** use double brackets: ` + "`" + `[[other-note]]` + "`" + `. The target is resolved
   against note titles first; use a path-qualified target (` + "`" + `[[folder/note]]` + "`" + `,
   no ` + "`" + `.md` + "`" + ` extension) to pin the link to one file.
5. **Typed relations** use ` + "`" + `keyword:: [[target]]` + "`" + ` markup at line start. Supported
   keywords: parent, child, supports, contradicts, depends, references,
   related, extends, implements, example.
6. **Categories** map to top-level folders: Ideas to Develop, Personal,
   Research, Reading List, Projects, Learning, Quick Notes.
7. **File paths** end with ` + "`" + `.md` + "`" + ` and use forward slashes.
8. **Encoding** is UTF-8 with a trailing newline.
9. **No HTML** unless absolutely necessary; prefer Markdown equivalents.
10. **Language policy:** file names and directory names MUST be in English
    (Latin characters). Frontmatter keys MUST be in English (they are schema
    fields). Frontmatter values (title, tags, etc.) and body content may use
    any language including Cyrillic.

## Example

` + "```" + `markdown
---
title: Attention Is All You Need
category: Research
tags:
  - machine-learning
  - papers
created: 2025-01-20
---

# Attention Is All You Need

Transformer architecture summary.

supports:: [[sequence-modeling-survey]]

See [[Research/positional-encoding|positional encodings]] for details.
` + "```" + `
`
