package ingest

import (
	"regexp"
	"strings"
)

// BlockTag is the structural classification of a line of page text.
type BlockTag string

const (
	TagContent    BlockTag = "content"
	TagNavigation BlockTag = "navigation"
)

const (
	// A line repeated across this many distinct pages is a running header
	// or footer, not text.
	repeatedLineThreshold = 3
	// Banner lines are short; long lines are never classified by repetition
	// alone because duaas and basmalas legitimately recur.
	maxBannerLength = 80
)

var (
	siteBannerPattern = regexp.MustCompile(`(?i)(www\.hubeali\.com|bihar\s+al[- ]anwaa?r.*volume\s+\d+|^\s*page\s+\d+\s+of\s+\d+\s*$)`)
	tocLinePattern    = regexp.MustCompile(`(?i)^.{0,70}?[. ]{2,}\s*\d{1,4}\s*$|^\s*(table\s+of\s+contents|contents|فهرست|الفهرس)\s*$`)
	pageNumberPattern = regexp.MustCompile(`^\s*[-–—]?\s*\d{1,4}\s*[-–—]?\s*$`)

	// Lines carrying any of these are hadith-bearing text and are kept even
	// when another rule would match. The bias is toward keeping.
	contentIndicatorPattern = regexp.MustCompile(`(?i)(said|says|narrated|reported|asked|replied|قال|قالت|عن|حدثنا|أخبرنا|روى|سمعت)`)
)

// filterRule pairs a name with a predicate. Rules run in order and the
// first match wins, so the ordering below is part of the contract: cheap,
// unambiguous markers come before frequency heuristics.
type filterRule struct {
	name  string
	match func(line string) bool
}

// StructuralFilter classifies lines as substantive text or print apparatus
// (running headers, page numbers, tables of contents). It is built per
// document because the repeated-banner rule needs line frequencies across
// that document's pages.
type StructuralFilter struct {
	rules    []filterRule
	lineFreq map[string]int
}

// NewStructuralFilter builds a filter for the given pages. The constructor
// counts, for every normalized line, how many distinct pages it appears on.
func NewStructuralFilter(pages []Page) *StructuralFilter {
	freq := make(map[string]int)
	for _, p := range pages {
		seen := make(map[string]bool)
		for _, l := range p.Lines {
			key := normalizeLine(l)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			freq[key]++
		}
	}

	f := &StructuralFilter{lineFreq: freq}
	f.rules = []filterRule{
		{name: "site-banner", match: func(line string) bool {
			return siteBannerPattern.MatchString(line)
		}},
		{name: "page-number", match: func(line string) bool {
			return pageNumberPattern.MatchString(line)
		}},
		{name: "toc-line", match: func(line string) bool {
			return tocLinePattern.MatchString(line)
		}},
		{name: "repeated-banner", match: func(line string) bool {
			if len(line) > maxBannerLength {
				return false
			}
			return f.lineFreq[normalizeLine(line)] >= repeatedLineThreshold
		}},
	}
	return f
}

// Classify tags one line and names the rule that matched. Content lines
// return an empty rule name. Lines carrying narration indicators are always
// content: a mistaken banner match on hadith text loses data, while a missed
// banner only adds noise.
func (f *StructuralFilter) Classify(line string) (BlockTag, string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return TagNavigation, "blank"
	}
	if contentIndicatorPattern.MatchString(trimmed) {
		return TagContent, ""
	}
	for _, rule := range f.rules {
		if rule.match(trimmed) {
			return TagNavigation, rule.name
		}
	}
	return TagContent, ""
}

func normalizeLine(line string) string {
	return strings.Join(strings.Fields(strings.ToLower(line)), " ")
}
