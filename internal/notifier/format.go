package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"leaguebot/internal/reminder"
)

const deadlineTimeFormat = "Mon, 02 Jan 2006 15:04 MST"

// FormatReminder renders a fired reminder as a Telegram HTML message.
func FormatReminder(r reminder.Reminder) string {
	var b strings.Builder

	b.WriteString("⏰ <b>")
	b.WriteString(kindHeading(r.Kind))
	b.WriteString("</b>")
	if label := strings.TrimSpace(r.Payload.Label); label != "" {
		b.WriteString(" — ")
		b.WriteString(html.EscapeString(label))
	}
	b.WriteString("\n")

	b.WriteString("Due ")
	b.WriteString(r.Deadline.Local().Format(deadlineTimeFormat))
	if left := time.Until(r.Deadline); left > time.Minute {
		b.WriteString(fmt.Sprintf(" (in %s)", formatLeft(left)))
	}
	b.WriteString("\n")

	if link := strings.TrimSpace(r.Payload.Link); link != "" {
		b.WriteString(fmt.Sprintf("<a href=\"%s\">Open round</a>\n", html.EscapeString(link)))
	}

	b.WriteString("id: <code>")
	b.WriteString(html.EscapeString(r.ID))
	b.WriteString("</code>")
	return b.String()
}

func kindHeading(k reminder.Kind) string {
	switch k {
	case reminder.KindSubmission:
		return "Submission deadline"
	case reminder.KindVoting:
		return "Voting deadline"
	case reminder.KindCombined:
		return "Submissions and voting close"
	default:
		return "Deadline"
	}
}

// formatLeft renders a duration as the largest two units ("25h30m" reads
// worse than "1d 1h" in a chat message).
func formatLeft(d time.Duration) string {
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) - h*60
		if m == 0 {
			return fmt.Sprintf("%dh", h)
		}
		return fmt.Sprintf("%dh %dm", h, m)
	}
	days := int(d.Hours()) / 24
	h := int(d.Hours()) - days*24
	if h == 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dd %dh", days, h)
}
