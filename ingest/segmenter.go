package ingest

import "strings"

// arabicRatioThreshold is the fraction of letters that must fall in the
// Arabic block for a line to be routed to the Arabic channel. Translations
// quote the odd Arabic term, so the threshold sits well below half.
const arabicRatioThreshold = 0.30

// IsArabicLine reports whether the line is predominantly Arabic script.
func IsArabicLine(line string) bool {
	var arabic, letters int
	for _, r := range line {
		if r >= 0x0600 && r <= 0x06FF {
			arabic++
			letters++
		} else if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			letters++
		}
	}
	if letters == 0 {
		return false
	}
	return float64(arabic)/float64(letters) > arabicRatioThreshold
}

// SplitChannels routes lines into the Arabic and English channels, keeping
// source order within each. Interleaved prints alternate between original
// and translation line by line; splitting by majority script reassembles
// each language as continuous text.
func SplitChannels(lines []Line) (arabic, english string) {
	var ar, en []string
	for _, l := range lines {
		if IsArabicLine(l.Text) {
			ar = append(ar, strings.TrimSpace(l.Text))
		} else {
			en = append(en, strings.TrimSpace(l.Text))
		}
	}
	return strings.Join(ar, "\n"), strings.Join(en, "\n")
}
