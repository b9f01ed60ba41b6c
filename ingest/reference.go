package ingest

import (
	"regexp"
	"strconv"
	"strings"

	"bihar-rag-backend/models"
)

// Validation bounds for extracted markers. Numbers outside these ranges are
// page numbers, years or print artifacts, not structural coordinates.
const (
	maxChapterNumber = 200
	maxHadithNumber  = 10000
	maxHeadingLength = 100
)

var chapterPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bchapter\s+(\d+[a-z]?)\b`),
	regexp.MustCompile(`(?i)\bbab\s+(\d+)\b`),
	regexp.MustCompile(`(?:ال)?باب\s+(\d+)`),
	regexp.MustCompile(`فصل\s+(\d+)`),
}

var hadithPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bhadith\s+#?(\d+)\b`),
	regexp.MustCompile(`حديث\s+(\d+)`),
	regexp.MustCompile(`^\s*(\d+)\s*[-–—.]\s+(?:من|عن|قال|حدثنا|روى|It|The|From|Imam|Abu|I\b)`),
}

// unnumberedBoundaryPattern marks a hadith boundary that carries no printed
// number, such as a dash bullet opening a narration chain.
var unnumberedBoundaryPattern = regexp.MustCompile(`^\s*[-–—•]\s+(?:عن|حدثنا|أخبرنا|روى|It\s|From\s)`)

// markerExclusionPattern lists contexts in which a chapter or hadith keyword
// is bibliographic apparatus rather than a structural marker.
var markerExclusionPattern = regexp.MustCompile(`(?i)(page|volume|year|\bof\b\s+\d|صفحة|مجلد|سنة|www\.|bihar\s+al[- ]anwaa?r|table\s+of\s+contents|فهرست)`)

// exclusionWindow is how close, in characters, an exclusion term must be to
// a marker match to disqualify it.
const exclusionWindow = 30

var versePattern = regexp.MustCompile(`﴿|سورة|(?i)\bsurah\b`)

// Segment is a run of consecutive lines sharing one structural coordinate.
// Heading is set for the chapter-title line itself.
type Segment struct {
	Lines        []Line
	ContentType  models.ContentType
	Chapter      *string
	HadithNumber *string
	Numbering    models.NumberingState
	Heading      bool
}

// Text joins the segment's lines back into a block.
func (s *Segment) Text() string {
	parts := make([]string, 0, len(s.Lines))
	for _, l := range s.Lines {
		parts = append(parts, l.Text)
	}
	return strings.Join(parts, "\n")
}

// Page returns the page of the segment's first line.
func (s *Segment) Page() int {
	if len(s.Lines) == 0 {
		return 0
	}
	return s.Lines[0].Page
}

// InferReferences folds over the content lines of a volume in a single
// ordered pass, threading a chapter counter and a hadith counter, and groups
// the lines into segments that each carry one coordinate. A chapter marker
// resets the hadith state, so a misread marker cannot corrupt coordinates
// past the next confident one. Markers whose numbers fail validation open a
// new segment with sequentially-unassigned numbering instead of inventing a
// number.
func InferReferences(lines []Line) []Segment {
	var (
		segments  []Segment
		current   *Segment
		chapter   *string
		hadith    *string
		numbering = models.NumberingUnknown
	)

	flush := func() {
		if current != nil && len(current.Lines) > 0 {
			segments = append(segments, *current)
		}
		current = nil
	}

	for _, line := range lines {
		if ch, ok := matchChapter(line.Text); ok {
			flush()
			chapter = &ch
			hadith = nil
			numbering = models.NumberingUnknown
			if isHeading(line.Text) {
				segments = append(segments, Segment{
					Lines:       []Line{line},
					ContentType: models.ContentTypeChapterHeader,
					Chapter:     chapter,
					Numbering:   models.NumberingUnknown,
					Heading:     true,
				})
				continue
			}
		}

		if num, numbered, boundary := matchHadith(line.Text); boundary {
			flush()
			if numbered {
				hadith = &num
				numbering = models.NumberingResolved
			} else {
				hadith = nil
				numbering = models.NumberingUnassigned
			}
		}

		if current == nil {
			current = &Segment{
				Chapter:      chapter,
				HadithNumber: hadith,
				Numbering:    numbering,
			}
		}
		current.Lines = append(current.Lines, line)
	}
	flush()

	for i := range segments {
		if segments[i].Heading {
			continue
		}
		segments[i].ContentType = classifySegment(&segments[i])
	}
	return segments
}

func classifySegment(s *Segment) models.ContentType {
	if s.HadithNumber != nil || s.Numbering == models.NumberingUnassigned {
		return models.ContentTypeHadith
	}
	if versePattern.MatchString(s.Text()) {
		return models.ContentTypeVerse
	}
	return models.ContentTypeCommentary
}

// Markers re-scans a stored block of text for structural markers. It backs
// the metadata repair path, where chunks persisted with unresolved
// coordinates get another pass after their text is already windowed.
func Markers(text string) (chapter, hadith *string) {
	for _, line := range strings.Split(text, "\n") {
		if chapter == nil {
			if ch, ok := matchChapter(line); ok {
				chapter = &ch
			}
		}
		if hadith == nil {
			if num, numbered, _ := matchHadith(line); numbered {
				hadith = &num
			}
		}
		if chapter != nil && hadith != nil {
			break
		}
	}
	return chapter, hadith
}

// matchChapter returns the chapter number found in the line, if any.
func matchChapter(line string) (string, bool) {
	for _, p := range chapterPatterns {
		m := p.FindStringSubmatchIndex(line)
		if m == nil {
			continue
		}
		if excludedContext(line, m[0], m[1]) {
			continue
		}
		num := line[m[2]:m[3]]
		if !validChapterNumber(num) {
			continue
		}
		return num, true
	}
	return "", false
}

// matchHadith reports whether the line opens a hadith. The second return
// distinguishes a printed number from an unnumbered boundary marker.
func matchHadith(line string) (num string, numbered, boundary bool) {
	for _, p := range hadithPatterns {
		m := p.FindStringSubmatchIndex(line)
		if m == nil {
			continue
		}
		if excludedContext(line, m[0], m[1]) {
			continue
		}
		num = line[m[2]:m[3]]
		if n, err := strconv.Atoi(num); err == nil && n >= 1 && n <= maxHadithNumber {
			return num, true, true
		}
		return "", false, true
	}
	if unnumberedBoundaryPattern.MatchString(line) {
		return "", false, true
	}
	return "", false, false
}

func excludedContext(line string, start, end int) bool {
	lo := start - exclusionWindow
	if lo < 0 {
		lo = 0
	}
	hi := end + exclusionWindow
	if hi > len(line) {
		hi = len(line)
	}
	return markerExclusionPattern.MatchString(line[lo:hi])
}

func validChapterNumber(num string) bool {
	digits := strings.TrimRight(num, "abcdefghij")
	n, err := strconv.Atoi(digits)
	return err == nil && n >= 1 && n <= maxChapterNumber
}

func isHeading(line string) bool {
	trimmed := strings.TrimSpace(line)
	return len(trimmed) <= maxHeadingLength
}
