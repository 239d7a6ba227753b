package league

import (
	"sort"
	"strings"
	"time"

	"leaguebot/internal/reminder"
)

// Feed is the wire format of a league round feed.
type Feed struct {
	League string      `json:"league,omitempty"`
	Rounds []FeedRound `json:"rounds"`
}

type FeedRound struct {
	Name               string `json:"name"`
	Link               string `json:"link,omitempty"`
	SubmissionDeadline string `json:"submission_deadline,omitempty"`
	VotingDeadline     string `json:"voting_deadline,omitempty"`
}

// Deadlines extracts the upcoming deadlines from a feed, sorted ascending.
// Rounds with unparseable or past timestamps contribute nothing; a feed is
// external input and one bad round must not hide the rest.
func Deadlines(feed Feed, now time.Time) []Descriptor {
	out := make([]Descriptor, 0, 2*len(feed.Rounds))
	for _, round := range feed.Rounds {
		label := strings.TrimSpace(round.Name)

		sub, subOK := parseFeedTime(round.SubmissionDeadline)
		vote, voteOK := parseFeedTime(round.VotingDeadline)

		// Identical timestamps collapse into one combined reminder.
		if subOK && voteOK && sub.Equal(vote) {
			if sub.After(now) {
				out = append(out, Descriptor{Kind: reminder.KindCombined, Deadline: sub, Label: label, Link: round.Link})
			}
			continue
		}
		if subOK && sub.After(now) {
			out = append(out, Descriptor{Kind: reminder.KindSubmission, Deadline: sub, Label: label, Link: round.Link})
		}
		if voteOK && vote.After(now) {
			out = append(out, Descriptor{Kind: reminder.KindVoting, Deadline: vote, Label: label, Link: round.Link})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	return out
}

func parseFeedTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05Z07:00", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
