package domain

import (
	"fmt"
)

// Status is shared by MatchingRequest and MatchPair; each has its own transition table.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusMatched    Status = "matched"
	StatusConfirmed  Status = "confirmed"
	StatusMismatched Status = "mismatched"
	StatusScheduled  Status = "scheduled"
	StatusCompleted  Status = "completed"
	StatusReviewed   Status = "reviewed"
	StatusExchanged  Status = "exchanged"
	StatusFinished   Status = "finished"
	StatusFailed     Status = "failed"
)

// Machine is a closed transition table.
type Machine struct {
	name  string
	edges map[Status][]Status
}

// RequestMachine drives MatchingRequest.Status.
var RequestMachine = Machine{
	name: "matching request",
	edges: map[Status][]Status{
		StatusWaiting:    {StatusMatched, StatusFailed},
		StatusMatched:    {StatusConfirmed, StatusMismatched, StatusFailed},
		StatusConfirmed:  {StatusScheduled, StatusMismatched},
		StatusMismatched: {StatusScheduled},
		StatusScheduled:  {StatusCompleted},
		StatusCompleted:  {StatusReviewed},
		StatusReviewed:   {StatusExchanged, StatusFinished},
		StatusExchanged:  {StatusFinished},
	},
}

// PairMachine drives MatchPair.Status.
var PairMachine = Machine{
	name: "match pair",
	edges: map[Status][]Status{
		StatusConfirmed:  {StatusScheduled, StatusMismatched},
		StatusMismatched: {StatusScheduled},
		StatusScheduled:  {StatusCompleted},
		StatusCompleted:  {StatusReviewed},
		StatusReviewed:   {StatusExchanged, StatusFinished},
		StatusExchanged:  {StatusFinished},
	},
}

// TransitionError is returned for an edge missing from the table.
type TransitionError struct {
	Machine string
	From    Status
	To      Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition %s -> %s", e.Machine, e.From, e.To)
}

// Allowed reports whether from → to is an edge.
func (m Machine) Allowed(from, to Status) bool {
	for _, s := range m.edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Check returns a *TransitionError when from → to is not an edge.
func (m Machine) Check(from, to Status) error {
	if !m.Allowed(from, to) {
		return &TransitionError{Machine: m.name, From: from, To: to}
	}
	return nil
}

// Terminal reports whether no edge leaves s.
func (m Machine) Terminal(s Status) bool {
	return len(m.edges[s]) == 0
}

// Active reports whether a request in status s still blocks its owner from
// applying again.
func (s Status) Active() bool {
	return !RequestMachine.Terminal(s)
}
