package ingest

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	ErrNoText      = errors.New("document contains no extractable text")
	ErrBadEncoding = errors.New("document is not valid UTF-8")
)

// minPageLength filters out pages that carry no substantive text,
// such as blank separator pages or image-only scans.
const minPageLength = 50

// Page is the raw text of one source page.
type Page struct {
	Number int
	Lines  []string
}

// Line is one line of page text tagged with the page it came from.
type Line struct {
	Page int
	Text string
}

var pageMarkerPattern = regexp.MustCompile(`(?m)^---\s*Page\s+(\d+)\s*---\s*$`)

// ExtractPages splits raw document bytes into per-page text. Page boundaries
// are either explicit "--- Page N ---" markers emitted by the text
// conversion step, or form-feed characters from plain dumps. A document with
// neither is treated as a single page. Pages below minPageLength are dropped.
func ExtractPages(data []byte) ([]Page, error) {
	if len(data) == 0 {
		return nil, ErrNoText
	}
	if !utf8.Valid(data) {
		return nil, ErrBadEncoding
	}

	text := strings.ReplaceAll(string(data), "\x00", "")
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var pages []Page
	if locs := pageMarkerPattern.FindAllStringSubmatchIndex(text, -1); len(locs) > 0 {
		for i, loc := range locs {
			number, _ := strconv.Atoi(text[loc[2]:loc[3]])
			start := loc[1]
			end := len(text)
			if i+1 < len(locs) {
				end = locs[i+1][0]
			}
			pages = appendPage(pages, number, text[start:end])
		}
	} else if strings.Contains(text, "\f") {
		for i, body := range strings.Split(text, "\f") {
			pages = appendPage(pages, i+1, body)
		}
	} else {
		pages = appendPage(pages, 1, text)
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("all pages below %d characters: %w", minPageLength, ErrNoText)
	}
	return pages, nil
}

func appendPage(pages []Page, number int, body string) []Page {
	body = strings.TrimSpace(body)
	if len(body) < minPageLength {
		return pages
	}
	var lines []string
	for _, l := range strings.Split(body, "\n") {
		lines = append(lines, strings.TrimRight(l, " \t"))
	}
	return append(pages, Page{Number: number, Lines: lines})
}

// Flatten returns the pages as a single ordered line stream, skipping
// blank lines.
func Flatten(pages []Page) []Line {
	var out []Line
	for _, p := range pages {
		for _, l := range p.Lines {
			if strings.TrimSpace(l) == "" {
				continue
			}
			out = append(out, Line{Page: p.Number, Text: l})
		}
	}
	return out
}
