package graph

import (
	"regexp"
	"sort"
	"strings"
)

// Resolution strategy names, reported for diagnostics.
const (
	StrategyExactPath  = "exact_path"
	StrategyExactTitle = "exact_title"
	StrategyCaseFold   = "case_insensitive"
	StrategyNormalized = "normalized"
	StrategyPartial    = "partial"
	StrategyStem       = "filename_stem"
	StrategyUnresolved = "unresolved"
)

// Resolution is the outcome of resolving one wikilink target.
type Resolution struct {
	NodeID     string
	Strategy   string
	Ambiguous  bool
	Candidates []string
}

// Lookup is a point-in-time snapshot of the resolvable names in the graph,
// built under the graph's read lock and queried without it. Resolution
// strategies run in a fixed order from strictest to loosest; the first match
// wins and an ambiguous match stops the chain.
type Lookup struct {
	byQualified map[string]string
	byQualFold  map[string][]string
	byTitle     map[string][]string
	byFold      map[string][]string
	byNorm      map[string][]string
	byStem      map[string][]string
	titles      []string // sorted, for stable partial scans
}

func newLookup() *Lookup {
	return &Lookup{
		byQualified: make(map[string]string),
		byQualFold:  make(map[string][]string),
		byTitle:     make(map[string][]string),
		byFold:      make(map[string][]string),
		byNorm:      make(map[string][]string),
		byStem:      make(map[string][]string),
	}
}

var separatorRe = regexp.MustCompile(`[\s_-]+`)

// normalizeName lowercases and collapses runs of spaces, hyphens, and
// underscores so "my-note", "My_Note", and "my note" compare equal.
func normalizeName(s string) string {
	return separatorRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

func (l *Lookup) add(id, title, qualified, stem string) {
	if qualified != "" {
		l.byQualified[qualified] = id
		fold := strings.ToLower(qualified)
		l.byQualFold[fold] = append(l.byQualFold[fold], id)
	}
	if title != "" {
		if _, seen := l.byTitle[title]; !seen {
			l.titles = append(l.titles, title)
		}
		l.byTitle[title] = append(l.byTitle[title], id)
		fold := strings.ToLower(title)
		l.byFold[fold] = append(l.byFold[fold], id)
		l.byNorm[normalizeName(title)] = append(l.byNorm[normalizeName(title)], id)
	}
	if stem != "" {
		l.byStem[strings.ToLower(stem)] = append(l.byStem[strings.ToLower(stem)], id)
	}
}

// Resolve maps a raw wikilink target to a node id. A target that matches
// nothing, or matches more than one node at the deciding strategy, comes
// back with an empty NodeID; ambiguous outcomes carry the candidate set.
func (l *Lookup) Resolve(target string) Resolution {
	target = strings.TrimSpace(target)
	if target == "" {
		return Resolution{Strategy: StrategyUnresolved}
	}

	// Path-qualified targets like [[research/my-note]] try their vault
	// path first, exact then case-insensitive; on a miss they keep going
	// down the chain like any other target.
	if strings.Contains(target, "/") {
		qualified := strings.TrimSuffix(target, ".md")
		if id, ok := l.byQualified[qualified]; ok {
			return Resolution{NodeID: id, Strategy: StrategyExactPath}
		}
		if res, done := pick(l.byQualFold[strings.ToLower(qualified)], StrategyExactPath); done {
			return res
		}
	}

	if res, done := pick(l.byTitle[target], StrategyExactTitle); done {
		return res
	}
	if res, done := pick(l.byFold[strings.ToLower(target)], StrategyCaseFold); done {
		return res
	}
	if res, done := pick(l.byNorm[normalizeName(target)], StrategyNormalized); done {
		return res
	}

	// Unique substring of exactly one title, checked both directions.
	if res, done := l.partial(target); done {
		return res
	}

	if res, done := pick(l.byStem[strings.ToLower(target)], StrategyStem); done {
		return res
	}

	// A path-qualified target that matched nothing falls back to its bare
	// filename part, so a link keeps resolving after the note moves to
	// another folder.
	if i := strings.LastIndex(target, "/"); i >= 0 {
		if part := strings.TrimSuffix(target[i+1:], ".md"); part != "" {
			return l.Resolve(part)
		}
	}

	return Resolution{Strategy: StrategyUnresolved}
}

func (l *Lookup) partial(target string) (Resolution, bool) {
	needle := strings.ToLower(target)
	if needle == "" {
		return Resolution{}, false
	}
	var matched []string
	for _, title := range l.sortedTitles() {
		hay := strings.ToLower(title)
		if strings.Contains(hay, needle) || strings.Contains(needle, hay) {
			matched = append(matched, l.byTitle[title]...)
		}
	}
	switch len(matched) {
	case 0:
		return Resolution{}, false
	case 1:
		return Resolution{NodeID: matched[0], Strategy: StrategyPartial}, true
	default:
		sort.Strings(matched)
		return Resolution{Strategy: StrategyPartial, Ambiguous: true, Candidates: matched}, true
	}
}

func (l *Lookup) sortedTitles() []string {
	if !sort.StringsAreSorted(l.titles) {
		sort.Strings(l.titles)
	}
	return l.titles
}

// pick turns a candidate list into a resolution: one candidate resolves,
// several are ambiguous and terminal, zero falls through to the next
// strategy.
func pick(ids []string, strategy string) (Resolution, bool) {
	switch len(ids) {
	case 0:
		return Resolution{}, false
	case 1:
		return Resolution{NodeID: ids[0], Strategy: strategy}, true
	default:
		sorted := append([]string(nil), ids...)
		sort.Strings(sorted)
		return Resolution{Strategy: strategy, Ambiguous: true, Candidates: sorted}, true
	}
}
