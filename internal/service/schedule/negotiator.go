package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/oggyb/muzz-introductions/internal/domain"
	svcErr "github.com/oggyb/muzz-introductions/internal/errors"
	"github.com/oggyb/muzz-introductions/internal/service/pairs"
)

// Submission is one side's input to the negotiation.
type Submission struct {
	UserID              string
	Dates               []string
	Locations           []string
	AcceptOtherSchedule bool
}

// Outcome describes what Submit did to the pair.
type Outcome struct {
	// Changed is false when the submission was identical to what was stored.
	Changed bool
	Status  domain.Status
}

// Intersect returns the elements of a that also appear in b, in a's order.
func Intersect(a, b []string) []string {
	in := make(map[string]struct{}, len(b))
	for _, s := range b {
		in[s] = struct{}{}
	}
	out := []string{}
	seen := make(map[string]struct{}, len(a))
	for _, s := range a {
		if _, ok := in[s]; !ok {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Resolve picks the first common date and first common location, preferring
// side A's submission order. ok is false when either intersection is empty.
func Resolve(a, b domain.Choices) (date, location string, ok bool) {
	dates := Intersect(a.Dates, b.Dates)
	locations := Intersect(a.Locations, b.Locations)
	if len(dates) == 0 || len(locations) == 0 {
		return "", "", false
	}
	return dates[0], locations[0], true
}

// Submit records one side's choices on p and re-evaluates the schedule.
// It only mutates p; persisting it and propagating the status onto the two
// requests is the caller's job.
//
// Behavior:
//   - The submitter must be a party (ErrNotAuthorized otherwise).
//   - Resubmitting what is already stored changes nothing, at any status.
//   - Otherwise the pair must still be confirmed or mismatched.
//   - Once both sides submitted: common date and location → scheduled,
//     anything else → mismatched with the final fields cleared.
//   - AcceptOtherSchedule copies the counterpart's first date and location
//     and schedules immediately.
func Submit(p *domain.MatchPair, in Submission, now time.Time) (Outcome, error) {
	side := p.Side(in.UserID)
	if side == "" {
		return Outcome{}, fmt.Errorf("%w: user %s, match %s", svcErr.ErrNotAuthorized, in.UserID, p.MatchID)
	}
	mine, theirs := &p.UserAChoices, &p.UserBChoices
	if side == "B" {
		mine, theirs = &p.UserBChoices, &p.UserAChoices
	}

	if in.AcceptOtherSchedule {
		return acceptOther(p, mine, theirs, now)
	}

	choices, err := clean(in)
	if err != nil {
		return Outcome{}, err
	}
	if choices.Equal(*mine) {
		return Outcome{Changed: false, Status: p.Status}, nil
	}
	if p.Status != domain.StatusConfirmed && p.Status != domain.StatusMismatched {
		return Outcome{}, svcErr.InvalidOperation("match %s is %s, choices can no longer change", p.MatchID, p.Status)
	}

	*mine = choices
	p.UpdatedAt = now
	if !theirs.Submitted() {
		return Outcome{Changed: true, Status: p.Status}, nil
	}

	date, location, ok := Resolve(p.UserAChoices, p.UserBChoices)
	if !ok {
		p.FinalDate, p.FinalLocation = "", ""
		if p.Status != domain.StatusMismatched {
			if err := pairs.Apply(p, domain.StatusMismatched, now); err != nil {
				return Outcome{}, err
			}
		}
		return Outcome{Changed: true, Status: p.Status}, nil
	}
	return schedule(p, date, location, now)
}

func acceptOther(p *domain.MatchPair, mine, theirs *domain.Choices, now time.Time) (Outcome, error) {
	if p.Status == domain.StatusScheduled && len(theirs.Dates) > 0 && p.FinalDate == theirs.Dates[0] &&
		len(theirs.Locations) > 0 && p.FinalLocation == theirs.Locations[0] {
		return Outcome{Changed: false, Status: p.Status}, nil
	}
	if p.Status != domain.StatusConfirmed && p.Status != domain.StatusMismatched {
		return Outcome{}, svcErr.InvalidOperation("match %s is %s, choices can no longer change", p.MatchID, p.Status)
	}
	if len(theirs.Dates) == 0 || len(theirs.Locations) == 0 {
		return Outcome{}, svcErr.InvalidOperation("the other side has not submitted a schedule yet")
	}
	date, location := theirs.Dates[0], theirs.Locations[0]
	*mine = domain.Choices{Dates: []string{date}, Locations: []string{location}}
	return schedule(p, date, location, now)
}

func schedule(p *domain.MatchPair, date, location string, now time.Time) (Outcome, error) {
	if err := pairs.Apply(p, domain.StatusScheduled, now); err != nil {
		return Outcome{}, err
	}
	p.FinalDate, p.FinalLocation = date, location
	at := now
	p.ScheduledAt = &at
	return Outcome{Changed: true, Status: p.Status}, nil
}

func clean(in Submission) (domain.Choices, error) {
	c := domain.Choices{Dates: trimAll(in.Dates), Locations: trimAll(in.Locations)}
	if len(c.Dates) == 0 {
		return domain.Choices{}, svcErr.InvalidOperation("at least one date is required")
	}
	if len(c.Locations) == 0 {
		return domain.Choices{}, svcErr.InvalidOperation("at least one location is required")
	}
	return c, nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// DatePassed reports whether an agreed date (YYYY-MM-DD, optionally followed
// by a time) lies strictly before the calendar day of now.
// Unparseable dates never count as passed.
func DatePassed(finalDate string, now time.Time) bool {
	if len(finalDate) < len("2006-01-02") {
		return false
	}
	d, err := time.ParseInLocation("2006-01-02", finalDate[:10], now.Location())
	if err != nil {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return d.Before(today)
}
