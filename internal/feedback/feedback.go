// Package feedback extracts a readiness score from an interviewer's closing
// message.
package feedback

import (
	"regexp"
	"strconv"
	"strings"
)

// Score is a readiness score out of 100, or N/A when none could be found.
type Score struct {
	value int
	known bool
}

// NA is the unknown score.
func NA() Score {
	return Score{}
}

// Points creates a known score.
func Points(n int) Score {
	return Score{value: n, known: true}
}

// Value returns the score and whether it is known.
func (s Score) Value() (int, bool) {
	return s.value, s.known
}

func (s Score) String() string {
	if !s.known {
		return "N/A"
	}
	return strconv.Itoa(s.value)
}

// Band groups scores for display.
type Band string

const (
	BandHigh    Band = "high"
	BandMedium  Band = "medium"
	BandLow     Band = "low"
	BandUnknown Band = "unknown"
)

// Band classifies the score: 80 and above is high, 50 and above is medium.
func (s Score) Band() Band {
	switch {
	case !s.known:
		return BandUnknown
	case s.value >= 80:
		return BandHigh
	case s.value >= 50:
		return BandMedium
	default:
		return BandLow
	}
}

// Result is the parsed closing feedback.
type Result struct {
	Score       Score
	Explanation string
}

var (
	fractionPattern = regexp.MustCompile(`(\d{1,3})\s?/\s?100`)
	titledPattern   = regexp.MustCompile(`(?i)Interview Readiness Score:?\s?(\d{1,3})`)
	labelledPattern = regexp.MustCompile(`(?i)Score:\s?(\d{1,3})`)
	titlePattern    = regexp.MustCompile(`(?i)Interview Readiness Score:?`)
	finishTag       = "[FINISH]"
)

// noScoreHints mark a closing message that explains why no score exists.
var noScoreHints = []string{"accuracy", "incomplete", "early"}

// Extract parses a closing message. It reports false when the text has
// neither a score nor an explanation of why there is none; callers then
// show the whole message with an N/A score.
func Extract(text string) (Result, bool) {
	text = strings.TrimSpace(strings.ReplaceAll(text, finishTag, ""))

	for _, re := range []*regexp.Regexp{fractionPattern, titledPattern, labelledPattern} {
		loc := re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		n, err := strconv.Atoi(text[loc[2]:loc[3]])
		if err != nil || n > 100 {
			continue
		}
		rest := text[:loc[0]] + text[loc[1]:]
		rest = titlePattern.ReplaceAllString(rest, "")
		rest = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(rest), ".,;:-"))
		return Result{Score: Points(n), Explanation: rest}, true
	}

	lower := strings.ToLower(text)
	for _, hint := range noScoreHints {
		if strings.Contains(lower, hint) {
			return Result{Score: NA(), Explanation: text}, true
		}
	}

	return Result{Score: NA(), Explanation: text}, false
}
