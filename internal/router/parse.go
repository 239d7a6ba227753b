package router

import (
	"fmt"
	"strings"
	"time"

	"leaguebot/internal/reminder"
)

// RemindRequest is a parsed /remind command.
type RemindRequest struct {
	Kind     reminder.Kind
	Deadline time.Time
	// Lead is how long before the deadline to fire; zero means caller default.
	Lead  time.Duration
	Label string
}

// ParseRemind parses /remind arguments:
//
//	/remind <kind> <when> [lead=<duration>] [label...]
//
// where <when> is a duration from now ("90m", "2h30m", "48h") or an absolute
// timestamp (RFC3339, "2006-01-02T15:04" or "2006-01-02 15:04" local time —
// the date and time count as one argument when joined by a space, so both
// tokens are consumed).
func ParseRemind(args []string, now time.Time) (RemindRequest, error) {
	if len(args) < 2 {
		return RemindRequest{}, fmt.Errorf("usage: /remind <kind> <when> [lead=1h] [label]")
	}

	kind, err := reminder.ParseKind(args[0])
	if err != nil {
		return RemindRequest{}, fmt.Errorf("unknown kind %q (want submission, voting or combined)", args[0])
	}

	deadline, used, err := parseWhen(args[1:], now)
	if err != nil {
		return RemindRequest{}, err
	}
	rest := args[1+used:]

	req := RemindRequest{Kind: kind, Deadline: deadline}
	for len(rest) > 0 {
		if v, ok := strings.CutPrefix(rest[0], "lead="); ok {
			lead, err := time.ParseDuration(v)
			if err != nil || lead <= 0 {
				return RemindRequest{}, fmt.Errorf("bad lead %q (want a duration like 1h or 30m)", v)
			}
			req.Lead = lead
			rest = rest[1:]
			continue
		}
		break
	}
	req.Label = strings.TrimSpace(strings.Join(rest, " "))
	return req, nil
}

// parseWhen resolves the <when> argument and reports how many tokens it used.
func parseWhen(args []string, now time.Time) (time.Time, int, error) {
	if len(args) == 0 {
		return time.Time{}, 0, fmt.Errorf("missing deadline")
	}

	if d, err := time.ParseDuration(args[0]); err == nil {
		if d <= 0 {
			return time.Time{}, 0, fmt.Errorf("deadline %q is not in the future", args[0])
		}
		return now.Add(d), 1, nil
	}

	if t, err := time.Parse(time.RFC3339, args[0]); err == nil {
		return t, 1, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04", args[0], time.Local); err == nil {
		return t, 1, nil
	}
	// "2006-01-02 15:04" arrives as two tokens.
	if len(args) >= 2 {
		if t, err := time.ParseInLocation("2006-01-02 15:04", args[0]+" "+args[1], time.Local); err == nil {
			return t, 2, nil
		}
	}
	if t, err := time.ParseInLocation("2006-01-02", args[0], time.Local); err == nil {
		return t, 1, nil
	}

	return time.Time{}, 0, fmt.Errorf("cannot parse deadline %q (want 2h30m, RFC3339 or 2006-01-02 15:04)", args[0])
}

// splitCommand splits a message into the command (bot-suffix stripped,
// lowercased) and its arguments. Returns "" if the text is not a command.
func splitCommand(text string) (string, []string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil
	}
	fields := strings.Fields(text)
	cmd := strings.ToLower(fields[0])
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	return cmd, fields[1:]
}
