package transcript

import (
	"math"
	"unicode/utf8"
)

// charsPerToken approximates characters per model token for transcript
// text. Token ratios and budget convergence both use this estimate.
const charsPerToken = 3.5

// Chars counts characters (runes) in s.
func Chars(s string) int {
	return utf8.RuneCountInString(s)
}

// EstimateTokens estimates the token count of a text as ceil(chars/3.5).
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return int(math.Ceil(float64(Chars(s)) / charsPerToken))
}

// EstimateMessageTokens estimates the token count of a message's content.
func EstimateMessageTokens(m Message) int {
	return EstimateTokens(m.Content)
}

// EstimateTotalTokens sums the per-message token estimate over a sequence.
func EstimateTotalTokens(msgs []Message) int {
	total := 0
	for _, m := range msgs {
		total += EstimateMessageTokens(m)
	}
	return total
}
