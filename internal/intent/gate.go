// Package intent decides whether a request needs the data pipeline at all.
// Small talk, identity questions and overly vague input are answered with a
// fixed text instead of planning and dispatching lookups.
package intent

import (
	"strings"
	"unicode"
)

// Category is the reason behind a gate decision.
type Category string

const (
	Domain   Category = "domain"
	Greeting Category = "greeting"
	Casual   Category = "casual"
	Identity Category = "identity"
	Thanks   Category = "thanks"
	Farewell Category = "farewell"
	Clarify  Category = "clarify"
	Proceed  Category = "proceed"
)

// Decision is the outcome of Classify. Canned is set only when ShortCircuit
// is true.
type Decision struct {
	ShortCircuit bool     `json:"short_circuit"`
	Category     Category `json:"category"`
	Canned       string   `json:"canned,omitempty"`
}

var domainKeywords = []string{
	"drug", "medicine", "pharma", "clinical", "trial", "trials", "patent", "patents",
	"market", "import", "export", "api", "sales", "iqvia", "exim", "cancer", "diabetes",
	"cardio", "neuro", "immuno", "oncology", "vaccine", "therapeutic", "fda",
	"approval", "pipeline", "competitor", "generic", "biosimilar", "molecule", "data",
	"show", "tell", "give", "find", "search", "list", "get", "fetch", "display",
	"news", "latest", "recent", "article", "web", "look up", "lookup", "information",
}

var greetings = map[string]bool{
	"hello": true, "hi": true, "hey": true, "howdy": true, "greetings": true,
	"yo": true, "sup": true, "hiya": true, "heya": true,
}

var greetingPhrases = []string{"good morning", "good afternoon", "good evening", "good day"}

var casualPhrases = []string{
	"whats up", "what is up", "what up", "wassup", "wazzup",
	"how are you", "how r u", "hows it going", "how is it going",
	"whats going on", "what is going on", "whats new", "what is new",
	"how do you do", "hows your day", "how is your day",
	"nice to meet you", "pleased to meet you",
}

var identityPhrases = []string{
	"who are you", "what are you", "what is your name", "whats your name",
	"what can you do", "what do you do", "what is gloser", "whats gloser",
	"tell me about yourself", "introduce yourself",
}

var thanksPhrases = []string{"thank you", "thanks", "thx", "appreciated", "cheers", "ty"}

var farewellPhrases = []string{"bye", "goodbye", "see you", "later", "take care", "cya", "ttyl"}

// Classify runs the gate rules in priority order. It is pure and total: every
// input, including the empty string, yields exactly one decision.
func Classify(query string) Decision {
	norm := Normalize(query)
	tokens := strings.Fields(norm)

	// Domain vocabulary overrides every social rule below.
	if containsAny(norm, domainKeywords) {
		return Decision{Category: Domain}
	}

	for _, t := range tokens {
		if greetings[t] {
			return shortCircuit(Greeting)
		}
	}
	for _, p := range greetingPhrases {
		if strings.HasPrefix(norm, p) {
			return shortCircuit(Greeting)
		}
	}
	if containsAny(norm, casualPhrases) {
		return shortCircuit(Casual)
	}
	if containsAny(norm, identityPhrases) {
		return shortCircuit(Identity)
	}
	if containsPhrase(tokens, thanksPhrases) {
		return shortCircuit(Thanks)
	}
	if containsPhrase(tokens, farewellPhrases) {
		return shortCircuit(Farewell)
	}

	meaningful := 0
	for _, t := range tokens {
		if len([]rune(t)) > 2 {
			meaningful++
		}
	}
	if meaningful < 2 {
		return shortCircuit(Clarify)
	}
	return Decision{Category: Proceed}
}

// Normalize lowercases q, drops punctuation and collapses whitespace.
func Normalize(q string) string {
	var b strings.Builder
	b.Grow(len(q))
	for _, r := range strings.ToLower(q) {
		if unicode.IsPunct(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func shortCircuit(c Category) Decision {
	return Decision{ShortCircuit: true, Category: c, Canned: cannedText[c]}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// containsPhrase matches whole tokens only, so "ty" does not fire on "city".
func containsPhrase(tokens []string, phrases []string) bool {
	padded := " " + strings.Join(tokens, " ") + " "
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}
