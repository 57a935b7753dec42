package clinical

import (
	"regexp"
	"strings"
)

var (
	countryPattern  = regexp.MustCompile(`(?i)\bin\s+([A-Za-z\x{00C0}-\x{017F} \-]+)`)
	countryStop     = regexp.MustCompile(`(?i)\s+(for|with|about|on|of|during|since)\b.*$`)
	leadingPhrases  = regexp.MustCompile(`(?i)^(tell me about|show me|give me|what are|summarize|find|list|show|get|for|about|on|of)\b`)
	trailingCommand = regexp.MustCompile(`(?i),?\s*(summarize.*|please.*|show.*|tell me.*|give me.*|list.*)$`)
	trialWords      = regexp.MustCompile(`(?i)\bclinical trials?\b|\btrials?\b|\bstudies\b`)
	spaces          = regexp.MustCompile(`\s+`)
)

// ParseQuery splits a free-text request such as "type 2 diabetes trials in
// Brazil" into a registry condition and an optional country. The condition
// falls back to the raw query when nothing is left after cleanup.
func ParseQuery(q string) (condition, country string) {
	s := strings.TrimSpace(q)
	if s == "" {
		return q, ""
	}

	if loc := countryPattern.FindStringSubmatchIndex(s); loc != nil {
		end := loc[3]
		if stop := countryStop.FindStringIndex(s[loc[2]:loc[3]]); stop != nil {
			end = loc[2] + stop[0]
		}
		country = strings.Trim(strings.TrimSpace(s[loc[2]:end]), ",")
		s = strings.TrimSpace(s[:loc[0]] + " " + s[end:])
	}

	for i := 0; i < 3; i++ {
		trimmed := strings.TrimSpace(leadingPhrases.ReplaceAllString(s, ""))
		if trimmed == s {
			break
		}
		s = trimmed
	}
	s = strings.TrimSpace(trailingCommand.ReplaceAllString(s, ""))
	s = trialWords.ReplaceAllString(s, "")
	s = spaces.ReplaceAllString(strings.TrimSpace(s), " ")
	for i := 0; i < 2; i++ {
		s = strings.TrimSpace(leadingPhrases.ReplaceAllString(s, ""))
	}
	s = strings.Trim(s, " ,.?!")

	if s == "" {
		return q, country
	}
	return s, country
}
