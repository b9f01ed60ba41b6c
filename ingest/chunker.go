package ingest

import "strings"

// ChunkerConfig bounds the windowing of segment text. Windows aim for
// TargetSize, never exceed MaxSize, and adjacent windows share Overlap
// characters so a narration cut mid-sentence stays findable from both sides.
type ChunkerConfig struct {
	TargetSize int
	MaxSize    int
	Overlap    int
	MinSize    int
}

// DefaultChunkerConfig mirrors the sizing the embedding model handles well.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		TargetSize: 600,
		MaxSize:    800,
		Overlap:    100,
		MinSize:    50,
	}
}

// Separators to cut at, in order of preference. The Urdu full stop and the
// devanagari danda appear in some translated prints.
var separators = []string{"\n\n", "\n", ". ", "۔", "।"}

// SplitText windows text deterministically. Each window ends at the latest
// separator between TargetSize and MaxSize; when none exists the cut falls
// at MaxSize. The final window is kept even below MinSize only if it is the
// sole window, otherwise short tails merge into the previous window's
// overlap. Splitting is by rune so multi-byte script is never cut mid
// character.
func SplitText(text string, cfg ChunkerConfig) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= cfg.MaxSize {
		return []string{string(runes)}
	}

	var out []string
	start := 0
	for start < len(runes) {
		end := start + cfg.MaxSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = cutPoint(runes, start, end, cfg.TargetSize)
		}

		window := strings.TrimSpace(string(runes[start:end]))
		if len([]rune(window)) >= cfg.MinSize || len(out) == 0 {
			out = append(out, window)
		}

		if end >= len(runes) {
			break
		}
		next := end - cfg.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// cutPoint finds the latest separator ending inside [start+target, hardEnd),
// scanning the preference order. Falls back to hardEnd.
func cutPoint(runes []rune, start, hardEnd, target int) int {
	windowStart := start + target
	if windowStart >= hardEnd {
		return hardEnd
	}
	window := string(runes[windowStart:hardEnd])
	for _, sep := range separators {
		idx := strings.LastIndex(window, sep)
		if idx < 0 {
			continue
		}
		// Convert the byte offset back to a rune offset within the window.
		runeIdx := len([]rune(window[:idx]))
		return windowStart + runeIdx + len([]rune(sep))
	}
	return hardEnd
}
