// Package parser extracts front matter, wikilinks, typed relations, and tags
// from Markdown note content.
package parser

import (
	"bytes"
	"path"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/ansuz/internal/models"
)

var (
	wikilinkRe = regexp.MustCompile(`\[\[([^\]]+)\]\]`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
	headingRe  = regexp.MustCompile(`(?m)^#\s+(.+)$`)
)

// relationKeywords maps `keyword:: [[target]]` markup to canonical relation
// type names understood by the graph layer.
var relationKeywords = map[string]string{
	// `parent:: [[X]]` names X as this note's parent, so the edge from this
	// note is child_of; `child:: [[X]]` is the reverse.
	"parent":      "child_of",
	"child":       "parent_of",
	"supports":    "supports",
	"contradicts": "contradicts",
	"depends":     "depends_on",
	"references":  "references",
	"related":     "related_to",
	"extends":     "extends",
	"implements":  "implements",
	"example":     "example_of",
}

var relationRe = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(relationKeywords))
	for kw, rel := range relationKeywords {
		m[rel] = regexp.MustCompile(`(?im)^\s*` + kw + `::\s*\[\[([^\]]+)\]\]`)
	}
	return m
}()

// WikiLink is one `[[target]]` or `[[target|display]]` occurrence.
type WikiLink struct {
	Target  string `json:"target"`
	Display string `json:"display"`
	Line    int    `json:"line"`
	Context string `json:"context,omitempty"`
}

// Relation is a typed-relationship marker such as `supports:: [[Other]]`.
// Target carries the raw link text; resolution to a node id happens in the
// graph layer.
type Relation struct {
	Type   string `json:"type"`
	Target string `json:"target"`
}

// Result holds the output of parsing a Markdown note.
type Result struct {
	Frontmatter map[string]any
	Body        string
	Links       []WikiLink
	Relations   []Relation
	Tags        []string
	Title       string
	Category    models.Category
	Parent      string   // raw link target, empty when the note has no parent
	Children    []string // raw link targets
}

// Parse extracts all note features from raw Markdown bytes. relPath is the
// vault-relative file path, used for title and category fallbacks. Parsing
// is tolerant: malformed front matter degrades to an empty metadata map.
func Parse(data []byte, relPath string) (*Result, error) {
	fm, body := splitFrontmatter(data)

	res := &Result{
		Frontmatter: fm,
		Body:        body,
		Links:       extractLinks(body),
		Relations:   extractRelations(body),
		Tags:        extractTags(body, fm),
		Title:       deriveTitle(fm, body, relPath),
		Category:    deriveCategory(fm, relPath),
	}
	res.Parent, res.Children = extractHierarchy(fm, res.Relations)
	return res, nil
}

// splitFrontmatter separates YAML front matter (between leading ---
// delimiters) from the Markdown body. Missing or invalid front matter is not
// an error: the entire content becomes the body.
func splitFrontmatter(data []byte) (map[string]any, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data)
	}
	return fm, body
}

// extractLinks returns every wikilink occurrence in order, with display
// text, line number, and a short surrounding context snippet.
func extractLinks(body string) []WikiLink {
	matches := wikilinkRe.FindAllStringSubmatchIndex(body, -1)
	var out []WikiLink
	for _, m := range matches {
		raw := body[m[2]:m[3]]

		target, display := raw, raw
		if i := strings.Index(raw, "|"); i >= 0 {
			target = strings.TrimSpace(raw[:i])
			display = strings.TrimSpace(raw[i+1:])
		} else {
			target = strings.TrimSpace(target)
			display = target
		}
		if target == "" {
			continue
		}

		line := strings.Count(body[:m[0]], "\n") + 1
		start := m[0] - 50
		if start < 0 {
			start = 0
		}
		end := m[1] + 50
		if end > len(body) {
			end = len(body)
		}
		context := strings.ReplaceAll(body[start:end], "\n", " ")

		out = append(out, WikiLink{
			Target:  target,
			Display: display,
			Line:    line,
			Context: context,
		})
	}
	return out
}

// extractRelations collects typed-relationship markers from the body.
func extractRelations(body string) []Relation {
	var out []Relation
	for rel, re := range relationRe {
		for _, m := range re.FindAllStringSubmatch(body, -1) {
			target := strings.TrimSpace(m[1])
			if i := strings.Index(target, "|"); i >= 0 {
				target = strings.TrimSpace(target[:i])
			}
			if target == "" {
				continue
			}
			out = append(out, Relation{Type: rel, Target: target})
		}
	}
	return out
}

// extractTags collects #tags from the body and the front-matter tags field
// (YAML list or comma-separated string), deduplicated.
func extractTags(body string, fm map[string]any) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(tag string) {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			return
		}
		if _, dup := seen[tag]; dup {
			return
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}

	if fm != nil {
		switch v := fm["tags"].(type) {
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					add(s)
				}
			}
		case string:
			for _, s := range strings.Split(v, ",") {
				add(s)
			}
		}
	}

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// deriveTitle returns the front-matter title, else the first H1 heading,
// else the filename stem.
func deriveTitle(fm map[string]any, body, relPath string) string {
	if fm != nil {
		if s, ok := fm["title"].(string); ok && s != "" {
			return s
		}
	}
	if m := headingRe.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}
	return Stem(relPath)
}

// deriveCategory returns the front-matter category when it names a known
// category, otherwise the category implied by the vault folder.
func deriveCategory(fm map[string]any, relPath string) models.Category {
	if fm != nil {
		if s, ok := fm["category"].(string); ok {
			if c := models.Category(strings.TrimSpace(s)); c.Valid() {
				return c
			}
		}
	}
	return models.CategoryFromPath(relPath)
}

// extractHierarchy merges parent/children declarations from front matter
// with parent_of/child_of relation markup. Values are raw link targets.
func extractHierarchy(fm map[string]any, relations []Relation) (string, []string) {
	var parent string
	var children []string

	if fm != nil {
		if s, ok := fm["parent"].(string); ok {
			parent = strings.TrimSpace(s)
		}
		switch v := fm["children"].(type) {
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					children = append(children, strings.TrimSpace(s))
				}
			}
		case string:
			for _, s := range strings.Split(v, ",") {
				if s = strings.TrimSpace(s); s != "" {
					children = append(children, s)
				}
			}
		}
	}

	for _, rel := range relations {
		switch rel.Type {
		case "parent_of":
			children = append(children, rel.Target)
		case "child_of":
			parent = rel.Target
		}
	}
	return parent, children
}

// Stem returns the filename without directory or .md extension.
func Stem(relPath string) string {
	base := path.Base(strings.ReplaceAll(relPath, "\\", "/"))
	return strings.TrimSuffix(base, ".md")
}
