package models

import (
	"fmt"
	"regexp"
	"strings"
)

// NumberingState records how a chunk's hadith coordinate was determined.
// A resolved number was printed in the source; an unassigned one means the
// text showed a hadith boundary but no usable number, so the position in the
// chapter is known while the printed number is not. Unknown means no hadith
// boundary was seen at all.
type NumberingState string

const (
	NumberingResolved   NumberingState = "resolved"
	NumberingUnknown    NumberingState = "unknown"
	NumberingUnassigned NumberingState = "unassigned"
)

// Reference is a structural coordinate within the collection: volume, and
// optionally chapter and hadith number. Chapter and HadithNumber are nil when
// unknown; a partial reference renders by omission and is never padded with a
// fabricated number.
type Reference struct {
	Volume       int            `json:"volume"`
	Chapter      *string        `json:"chapter,omitempty"`
	HadithNumber *string        `json:"hadith_number,omitempty"`
	Numbering    NumberingState `json:"numbering,omitempty"`
}

// Citation renders the canonical citation string for the reference.
// Components the reference does not carry are simply left out.
func (r Reference) Citation() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bihar ul Anwar, Volume %d", r.Volume)
	if r.Chapter != nil {
		fmt.Fprintf(&b, ", Chapter %s", *r.Chapter)
	}
	if r.HadithNumber != nil {
		fmt.Fprintf(&b, ", Hadith %s", *r.HadithNumber)
	}
	return b.String()
}

var citationPattern = regexp.MustCompile(
	`Bihar ul Anwar,\s*Volume\s+(\d+)(?:,\s*Chapter\s+(\d+[a-z]?))?(?:,\s*Hadith\s+(\d+))?`)

// ParseCitation parses a canonical citation string back into a Reference.
// It returns false when s does not start with a citation.
func ParseCitation(s string) (Reference, bool) {
	m := citationPattern.FindStringSubmatch(s)
	if m == nil {
		return Reference{}, false
	}
	ref := Reference{Numbering: NumberingUnknown}
	fmt.Sscanf(m[1], "%d", &ref.Volume)
	if m[2] != "" {
		ch := m[2]
		ref.Chapter = &ch
	}
	if m[3] != "" {
		h := m[3]
		ref.HadithNumber = &h
		ref.Numbering = NumberingResolved
	}
	return ref, true
}

// CitationToken pairs a citation as it literally appears in text with its
// parsed reference. The literal survives variant spacing, so callers that
// rewrite text can remove exactly what the text contains rather than the
// canonical rendering.
type CitationToken struct {
	Text string
	Ref  Reference
}

// FindCitationTokens extracts every citation that appears in text, in order
// of appearance, keeping the matched literal alongside the parsed reference.
func FindCitationTokens(text string) []CitationToken {
	var tokens []CitationToken
	for _, m := range citationPattern.FindAllString(text, -1) {
		if ref, ok := ParseCitation(m); ok {
			tokens = append(tokens, CitationToken{Text: m, Ref: ref})
		}
	}
	return tokens
}

// FindCitations extracts every citation token that appears in text,
// in order of appearance.
func FindCitations(text string) []Reference {
	tokens := FindCitationTokens(text)
	refs := make([]Reference, 0, len(tokens))
	for _, t := range tokens {
		refs = append(refs, t.Ref)
	}
	return refs
}

// Covers reports whether r is consistent with other: every component r
// carries must match the corresponding component of other. A volume-only
// citation is covered by any reference in the same volume.
func (r Reference) Covers(other Reference) bool {
	if r.Volume != other.Volume {
		return false
	}
	if r.Chapter != nil && (other.Chapter == nil || *r.Chapter != *other.Chapter) {
		return false
	}
	if r.HadithNumber != nil && (other.HadithNumber == nil || *r.HadithNumber != *other.HadithNumber) {
		return false
	}
	return true
}
