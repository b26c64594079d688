package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-introductions/internal/domain"
	svcErr "github.com/oggyb/muzz-introductions/internal/errors"
)

var now = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func newPair() *domain.MatchPair {
	return &domain.MatchPair{
		MatchID: "p1",
		UserAID: "a",
		UserBID: "b",
		Status:  domain.StatusConfirmed,
	}
}

func TestResolve_PicksFirstCommonInSubmissionOrder(t *testing.T) {
	p := newPair()

	out, err := Submit(p, Submission{UserID: "a", Dates: []string{"2024-01-01", "2024-01-02"}, Locations: []string{"강남"}}, now)
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Equal(t, domain.StatusConfirmed, out.Status, "waits for the other side")

	out, err = Submit(p, Submission{UserID: "b", Dates: []string{"2024-01-02", "2024-01-03"}, Locations: []string{"강남", "홍대"}}, now)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusScheduled, out.Status)
	assert.Equal(t, "2024-01-02", p.FinalDate)
	assert.Equal(t, "강남", p.FinalLocation)
	require.NotNil(t, p.ScheduledAt)
}

func TestSubmit_MismatchClearsFinalFields(t *testing.T) {
	p := newPair()

	_, err := Submit(p, Submission{UserID: "a", Dates: []string{"2024-01-01"}, Locations: []string{"강남"}}, now)
	require.NoError(t, err)
	out, err := Submit(p, Submission{UserID: "b", Dates: []string{"2024-01-01"}, Locations: []string{"홍대"}}, now)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusMismatched, out.Status)
	assert.Empty(t, p.FinalDate)
	assert.Empty(t, p.FinalLocation)

	// a retry that still does not overlap stays mismatched
	out, err = Submit(p, Submission{UserID: "b", Dates: []string{"2024-01-05"}, Locations: []string{"강남"}}, now)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusMismatched, out.Status)

	// and one that does recovers
	out, err = Submit(p, Submission{UserID: "b", Dates: []string{"2024-01-01"}, Locations: []string{"강남"}}, now)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusScheduled, out.Status)
}

func TestSubmit_IdenticalResubmissionIsNoop(t *testing.T) {
	p := newPair()
	in := Submission{UserID: "a", Dates: []string{"2024-01-01"}, Locations: []string{"강남"}}

	_, err := Submit(p, in, now)
	require.NoError(t, err)
	before := *p

	out, err := Submit(p, in, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, out.Changed)
	assert.Equal(t, before, *p)
}

func TestSubmit_IdenticalAfterScheduledIsNoop(t *testing.T) {
	p := newPair()
	in := Submission{UserID: "a", Dates: []string{"2024-01-01"}, Locations: []string{"강남"}}
	_, err := Submit(p, in, now)
	require.NoError(t, err)
	_, err = Submit(p, Submission{UserID: "b", Dates: []string{"2024-01-01"}, Locations: []string{"강남"}}, now)
	require.NoError(t, err)

	out, err := Submit(p, in, now)
	require.NoError(t, err)
	assert.False(t, out.Changed)

	_, err = Submit(p, Submission{UserID: "a", Dates: []string{"2024-02-01"}, Locations: []string{"강남"}}, now)
	assert.Equal(t, svcErr.KindInvalidOperation, svcErr.KindOf(err))
}

func TestSubmit_AcceptOtherSchedule(t *testing.T) {
	p := newPair()

	_, err := Submit(p, Submission{UserID: "a", AcceptOtherSchedule: true}, now)
	assert.Equal(t, svcErr.KindInvalidOperation, svcErr.KindOf(err), "nothing to accept yet")

	_, err = Submit(p, Submission{UserID: "b", Dates: []string{"2024-01-03", "2024-01-04"}, Locations: []string{"홍대", "강남"}}, now)
	require.NoError(t, err)
	_, err = Submit(p, Submission{UserID: "a", Dates: []string{"2024-01-01"}, Locations: []string{"강남"}}, now)
	require.NoError(t, err)
	require.Equal(t, domain.StatusMismatched, p.Status)

	out, err := Submit(p, Submission{UserID: "a", AcceptOtherSchedule: true}, now)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusScheduled, out.Status)
	assert.Equal(t, "2024-01-03", p.FinalDate)
	assert.Equal(t, "홍대", p.FinalLocation)

	out, err = Submit(p, Submission{UserID: "a", AcceptOtherSchedule: true}, now)
	require.NoError(t, err)
	assert.False(t, out.Changed, "accepting twice is a no-op")
}

func TestSubmit_Validation(t *testing.T) {
	p := newPair()

	_, err := Submit(p, Submission{UserID: "mallory", Dates: []string{"2024-01-01"}, Locations: []string{"x"}}, now)
	assert.ErrorIs(t, err, svcErr.ErrNotAuthorized)

	_, err = Submit(p, Submission{UserID: "a", Dates: []string{" "}, Locations: []string{"x"}}, now)
	assert.Equal(t, svcErr.KindInvalidOperation, svcErr.KindOf(err))

	_, err = Submit(p, Submission{UserID: "a", Dates: []string{"2024-01-01"}}, now)
	assert.Equal(t, svcErr.KindInvalidOperation, svcErr.KindOf(err))
}

func TestIntersect(t *testing.T) {
	assert.Equal(t, []string{"b", "c"}, Intersect([]string{"a", "b", "c", "b"}, []string{"c", "b"}))
	assert.Empty(t, Intersect([]string{"a"}, nil))
}

func TestDatePassed(t *testing.T) {
	assert.True(t, DatePassed("2023-12-31", now))
	assert.False(t, DatePassed("2024-01-01", now))
	assert.False(t, DatePassed("2024-01-01T23:00", now.Add(10*time.Hour)))
	assert.True(t, DatePassed("2024-01-01T23:00", now.Add(24*time.Hour)))
	assert.False(t, DatePassed("next friday", now))
}
