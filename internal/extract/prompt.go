package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/todoharvest/internal/config"
	"github.com/todoharvest/pkg/models"
)

// BuildPrompt assembles the single extraction prompt: the caller's identity,
// the ownership rules, feature-gated field instructions, and every content
// unit tagged with a [SOURCE:N] marker the model echoes back as source_id.
func BuildPrompt(units []models.ContentUnit, identity config.Identity, features config.Features, now time.Time) string {
	var b strings.Builder

	primaryName := identity.Name
	if primaryName == "" {
		primaryName = "the user"
	}

	b.WriteString(fmt.Sprintf("You are extracting todos specifically for %s.\n\n", primaryName))

	b.WriteString("## User Identity\n")
	nameVariants := identity.NameVariants
	if len(nameVariants) == 0 && identity.Name != "" {
		nameVariants = []string{identity.Name}
	}
	if len(nameVariants) > 0 {
		b.WriteString(fmt.Sprintf("- Name variations: %s\n", strings.Join(nameVariants, ", ")))
	}
	if identity.ChatHandle != "" {
		b.WriteString(fmt.Sprintf("- Chat handle: @%s (messages from this user are %s's own words)\n",
			identity.ChatHandle, primaryName))
	}
	if identity.Email != "" {
		b.WriteString(fmt.Sprintf("- Email: %s\n", identity.Email))
	}

	b.WriteString(`
## Message Format
- **chat**: "[timestamp] @handle: message" - the @handle shows WHO sent each message
- **email**: "Subject (from: Sender)" - shows the sender; the greeting often shows the recipient
- **meeting**: meeting transcript segments and summaries with action items

## Your Task

Analyze each conversation or thread as a whole. Consider the full context -
who is talking to whom, what commitments are being made, and who is
responsible for what.
`)

	b.WriteString(fmt.Sprintf(`
**Only return a todo if %[1]s is clearly the intended owner**, either because:
- %[1]s agreed to do something
- %[1]s was clearly the recipient of a request or assignment, based on context
- An email or message is directly addressed to %[1]s with an actionable ask

**Do not extract todos that belong to other people.** If two other people are
discussing tasks between themselves, those are not %[1]s's todos - even if
%[1]s is CC'd or in the same channel.

**%[1]s must be PART of the conversation.** Do not extract todos from
conversations %[1]s is only observing.

**Outbound requests are NOT the user's todos.** When %[1]s ASKS someone else
to do something ("Could you...", "Please send me...", direct imperatives), the
task belongs to the OTHER person.

**Delegation removes ownership.** If %[1]s asks someone for help, the task
belongs to that person even if they have not responded yet.

**Do NOT create todos for:**
- Calendar invites or "attend [meeting]" items - these are already on the calendar
- Requests already resolved within the same thread (look for a concluding back-and-forth)
- Automated notifications from noreply@/notifications@ senders or bulk mail
- Low-value transactional email unless genuinely urgent

Set the **confidence** field to how certain you are the todo belongs to %[1]s (0.0 to 1.0).
`, primaryName))

	b.WriteString("\nFor each todo, determine:\n")
	b.WriteString("- task: Clear, concise description\n")
	b.WriteString("- assigned_to: Person's name or null if unspecified\n")
	b.WriteString(dueDateInstructions(features, now))
	if features.PriorityScoring {
		b.WriteString(`- priority: "high" (urgency signals, due within 48 hours, from executives), "medium" (due within a week, normal requests), or "low" (flexible timeline)
`)
	}
	if features.CategoryTagging {
		b.WriteString(fmt.Sprintf("- category: Array of applicable tags from: %s\n", strings.Join(models.Categories, ", ")))
	}
	b.WriteString(`- source: Platform name (chat, email, meeting)
- source_id: The [SOURCE:N] number where this todo was found (e.g. 5 for [SOURCE:5])
- confidence: Your certainty level (0.0 to 1.0)
- type: "explicit" (direct request) or "implicit" (self-commitment)
`)

	b.WriteString("\nContent to analyze:\n")
	b.WriteString(FormatUnits(units))

	b.WriteString(`
Return a JSON array of todos with this structure:
[
  {
    "task": "Clear description of the todo",
    "assigned_to": "Person's name or null",
    "due_date": "YYYY-MM-DD or null",
    "priority": "high",
    "category": ["follow-up", "technical"],
    "source": "chat",
    "source_id": 5,
    "confidence": 0.85,
    "type": "explicit"
  }
]

Only return the JSON array, no additional text. Return [] if there are no todos.`)

	return b.String()
}

// dueDateInstructions returns the due_date field instructions, anchored on
// the run date when inference is enabled so relative phrases resolve.
func dueDateInstructions(features config.Features, now time.Time) string {
	if !features.DueDateInference {
		return "- due_date: YYYY-MM-DD format or null\n"
	}
	today := now.Format("2006-01-02")
	return fmt.Sprintf(`- due_date: Extract or infer date in YYYY-MM-DD format:
  - "today" means %s
  - "tomorrow", "next Monday", "by end of week", "within 2 days": calculate the date
  - null if no date is mentioned
  (Today is %s, %s)
`, today, today, now.Weekday())
}

// FormatUnits renders content units grouped by source, each prefixed with its
// [SOURCE:N] marker. N is the unit's index in the input slice.
func FormatUnits(units []models.ContentUnit) string {
	var b strings.Builder
	var lastSource models.Source

	for i, unit := range units {
		if unit.Source != lastSource {
			b.WriteString(fmt.Sprintf("\n=== %s ===\n", strings.ToUpper(string(unit.Source))))
			lastSource = unit.Source
		}
		b.WriteString(fmt.Sprintf("[SOURCE:%d]\n%s\n", i, unit.Text))
	}

	return b.String()
}
