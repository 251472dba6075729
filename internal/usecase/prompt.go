package usecase

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"tenant-ai-agents/internal/domain/model"
)

// selfDebugGuidance is appended to every system prompt so the model
// reports tool failures instead of papering over them.
const selfDebugGuidance = "If a tool call fails, say so plainly and describe what you could not do. " +
	"Never claim an action succeeded unless the tool result confirms it. " +
	"If you are missing information required by a tool, ask for it instead of guessing."

// composeSystemPrompt builds the full system prompt: the agent's base
// prompt, then non-script operating procedures in strictness order
// (guidelines before tone), then a server-computed clock line in the
// tenant's timezone. The model's own notion of "today" is never trusted.
func composeSystemPrompt(agent *model.Agent, procs []*model.OperatingProcedure, loc *time.Location, now time.Time) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(agent.SystemPrompt))

	guidelines := proceduresAt(procs, model.StrictnessGuideline)
	if len(guidelines) > 0 {
		b.WriteString("\n\nFollow these operating procedures closely, adapting wording where needed:\n")
		for _, p := range guidelines {
			b.WriteString("- ")
			b.WriteString(strings.TrimSpace(p.Content))
			b.WriteString("\n")
		}
	}

	tone := proceduresAt(procs, model.StrictnessGeneralTone)
	if len(tone) > 0 {
		b.WriteString("\nStyle guidance:\n")
		for _, p := range tone {
			b.WriteString("- ")
			b.WriteString(strings.TrimSpace(p.Content))
			b.WriteString("\n")
		}
	}

	if loc == nil {
		loc = time.UTC
	}
	b.WriteString(fmt.Sprintf("\nCurrent date and time: %s\n", now.In(loc).Format("Monday, 2 January 2006 15:04 (MST)")))
	b.WriteString("\n")
	b.WriteString(selfDebugGuidance)
	return b.String()
}

// proceduresAt filters to one strictness level, ordered by position.
func proceduresAt(procs []*model.OperatingProcedure, level model.Strictness) []*model.OperatingProcedure {
	var out []*model.OperatingProcedure
	for _, p := range procs {
		if p.Level == level {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// scriptTemplates returns the exact_script procedures in template order.
func scriptTemplates(procs []*model.OperatingProcedure) []*model.OperatingProcedure {
	return proceduresAt(procs, model.StrictnessExactScript)
}

// The introduction phrase matches case-insensitively but the captured name
// must be capitalized, so "i am not sure" never yields "Not" as a name.
var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmy name is ([A-Za-z][A-Za-z'-]*)`),
	regexp.MustCompile(`(?i:\bi am )([A-Z][A-Za-z'-]*)\b`),
	regexp.MustCompile(`(?i:\bi'm )([A-Z][A-Za-z'-]*)\b`),
	regexp.MustCompile(`(?i:\bthis is )([A-Z][A-Za-z'-]*)\b`),
}

// extractLeadName pulls a first name from free text. Returns "" when no
// pattern matches; callers fall back to "there".
func extractLeadName(text string) string {
	for _, re := range namePatterns {
		if m := re.FindStringSubmatch(text); len(m) == 2 {
			return capitalize(m[1])
		}
	}
	return ""
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

// substituteTemplate fills a compliance-reviewed script verbatim. Only the
// four placeholders are replaced; everything else is untouched.
func substituteTemplate(tpl string, conv *model.Conversation, agent *model.Agent, lastUserMessage string) string {
	lead := conv.Metadata["lead_name"]
	if lead == "" {
		lead = extractLeadName(lastUserMessage)
	}
	if lead == "" {
		lead = "there"
	}
	business := conv.Metadata["business_name"]
	if business == "" {
		business = agent.Meta("business_name", "our team")
	}
	location := conv.Metadata["location"]
	if location == "" {
		location = agent.Meta("location", "")
	}
	sender := agent.Meta("sender_name", agent.Name)

	r := strings.NewReplacer(
		"{{lead_name}}", lead,
		"{{business_name}}", business,
		"{{location}}", location,
		"{{sender_name}}", sender,
	)
	return r.Replace(tpl)
}

// tenantLocation resolves a timezone name, defaulting to UTC.
func tenantLocation(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
