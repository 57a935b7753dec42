package memory

import (
	"strings"
)

// Context is the memory view handed to the planner and the synthesizer.
type Context struct {
	HasHistory bool
	Summary    string
	Topics     []string
	Recent     []Turn
	Exchanges  int
	IsFollowUp bool
}

// Render formats the context as bracketed prompt sections. A session with no
// history renders as "".
func (c Context) Render() string {
	if !c.HasHistory {
		return ""
	}

	var parts []string
	if c.Summary != "" {
		parts = append(parts, "[Previous conversation summary: "+c.Summary+"]")
	}
	if len(c.Topics) > 0 {
		parts = append(parts, "[Key topics discussed: "+strings.Join(c.Topics, ", ")+"]")
	}
	if len(c.Recent) > 0 {
		parts = append(parts, "[Recent conversation:]")
		recent := c.Recent
		if len(recent) > renderedTurns {
			recent = recent[len(recent)-renderedTurns:]
		}
		for _, t := range recent {
			speaker := "Assistant"
			if t.Role == RoleUser {
				speaker = "User"
			}
			text := t.Text
			if r := []rune(text); len(r) > renderedLength {
				text = string(r[:renderedLength]) + "..."
			}
			parts = append(parts, speaker+": "+text)
		}
	}
	if c.IsFollowUp {
		parts = append(parts, "[Note: This appears to be a follow-up question to the previous conversation]")
	}
	return strings.Join(parts, "\n")
}
