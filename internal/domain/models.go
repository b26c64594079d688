package domain

import (
	"time"
)

// RequestID identifies one user's MatchingRequest.
type RequestID string

// PairID identifies a MatchPair joining two requests.
type PairID string

// UserStatus is the moderation flag on a user.
type UserStatus string

const (
	UserGreen  UserStatus = "green"
	UserYellow UserStatus = "yellow"
	UserRed    UserStatus = "red"
	UserBlack  UserStatus = "black"
)

// Valid reports whether s is one of the known moderation flags.
func (s UserStatus) Valid() bool {
	switch s {
	case UserGreen, UserYellow, UserRed, UserBlack:
		return true
	}
	return false
}

// CanRequest reports whether a user with this flag may apply for matching.
func (s UserStatus) CanRequest() bool {
	return s == UserGreen || s == UserYellow || s == ""
}

// Profile is the public subset of a user's profile the matching flow reveals.
type Profile struct {
	Name   string   `json:"name"`
	Job    string   `json:"job"`
	Region string   `json:"region"`
	Photos []string `json:"photos,omitempty"`
}

// Contact is exchanged only once both sides asked to meet again.
type Contact struct {
	Phone     string `json:"phone,omitempty"`
	Instagram string `json:"instagram,omitempty"`
}

// User is owned by signup/profile services; the matching core reads it and the
// points ledger mutates Points.
type User struct {
	UserID         string            `json:"userId"`
	Points         int64             `json:"points"`
	HasProfile     bool              `json:"hasProfile"`
	HasPreferences bool              `json:"hasPreferences"`
	Status         UserStatus        `json:"status"`
	Profile        Profile           `json:"profile"`
	Preferences    map[string]string `json:"preferences,omitempty"`
	Contact        Contact           `json:"contact"`
	PasswordHash   string            `json:"passwordHash,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// Choices is one side's submitted schedule.
type Choices struct {
	Dates     []string `json:"dates"`
	Locations []string `json:"locations"`
}

// Submitted reports whether this side has handed in at least one date.
func (c Choices) Submitted() bool { return len(c.Dates) > 0 }

// Equal compares element-wise, order included.
func (c Choices) Equal(o Choices) bool {
	return equalStrings(c.Dates, o.Dates) && equalStrings(c.Locations, o.Locations)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Transition records one status change of a request.
type Transition struct {
	From   Status    `json:"from"`
	To     Status    `json:"to"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// MatchingRequest is a single user's application for an introduction.
type MatchingRequest struct {
	MatchID        RequestID    `json:"matchId"`
	RequesterID    string       `json:"requesterId"`
	Status         Status       `json:"status"`
	DateChoices    Choices      `json:"dateChoices"`
	IsManual       bool         `json:"isManual"`
	PhotoVisibleAt *time.Time   `json:"photoVisibleAt,omitempty"`
	PairID         PairID       `json:"pairId,omitempty"`
	Debited        int64        `json:"debited"`
	Refunded       bool         `json:"refunded"`
	Transitions    []Transition `json:"transitions,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// MatchPair joins two requests once an operator confirmed them.
type MatchPair struct {
	MatchID       PairID     `json:"matchId"`
	MatchAID      RequestID  `json:"matchAId"`
	MatchBID      RequestID  `json:"matchBId"`
	UserAID       string     `json:"userAId"`
	UserBID       string     `json:"userBId"`
	UserAChoices  Choices    `json:"userAChoices"`
	UserBChoices  Choices    `json:"userBChoices"`
	FinalDate     string     `json:"finalDate,omitempty"`
	FinalLocation string     `json:"finalLocation,omitempty"`
	Status        Status     `json:"status"`
	ScheduledAt   *time.Time `json:"scheduledAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Side returns "A" or "B" for a party of the pair, "" otherwise.
func (p MatchPair) Side(userID string) string {
	switch userID {
	case p.UserAID:
		return "A"
	case p.UserBID:
		return "B"
	}
	return ""
}

// Counterpart returns the other party's user id.
func (p MatchPair) Counterpart(userID string) string {
	if userID == p.UserAID {
		return p.UserBID
	}
	return p.UserAID
}

// RequestOf returns the request id belonging to userID.
func (p MatchPair) RequestOf(userID string) RequestID {
	if userID == p.UserAID {
		return p.MatchAID
	}
	return p.MatchBID
}

// PairIndexEntry maps a request to the pair it belongs to.
type PairIndexEntry struct {
	RequestID RequestID `json:"requestId"`
	PairID    PairID    `json:"pairId"`
}

// Rating holds the four 1..5 review dimensions.
type Rating struct {
	Appearance   int `json:"appearance"`
	Conversation int `json:"conversation"`
	Manners      int `json:"manners"`
	Honesty      int `json:"honesty"`
}

// Valid reports whether every dimension is within 1..5.
func (r Rating) Valid() bool {
	for _, v := range []int{r.Appearance, r.Conversation, r.Manners, r.Honesty} {
		if v < 1 || v > 5 {
			return false
		}
	}
	return true
}

// Review is immutable once written.
type Review struct {
	ReviewID        string    `json:"reviewId"`
	MatchID         PairID    `json:"matchId"`
	ReviewerID      string    `json:"reviewerId"`
	TargetID        string    `json:"targetId"`
	Rating          Rating    `json:"rating"`
	WantToMeetAgain bool      `json:"wantToMeetAgain"`
	Tags            []string  `json:"tags,omitempty"`
	Comment         string    `json:"comment,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// ReviewStats is the running aggregate for one reviewed user.
type ReviewStats struct {
	UserID          string    `json:"userId"`
	AvgAppearance   float64   `json:"avgAppearance"`
	AvgConversation float64   `json:"avgConversation"`
	AvgManners      float64   `json:"avgManners"`
	AvgHonesty      float64   `json:"avgHonesty"`
	TotalReviews    int       `json:"totalReviews"`
	PositiveTags    []string  `json:"positiveTags"`
	LastReviewedAt  time.Time `json:"lastReviewedAt"`
}

// PointsHistory is one append-only ledger row.
type PointsHistory struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Timestamp   time.Time `json:"timestamp"`
	Type        string    `json:"type"`
	Points      int64     `json:"points"`
	Description string    `json:"description"`
}

// Points history types.
const (
	PointsMatchingRequest = "matching_request"
	PointsMatchingRefund  = "matching_refund"
	PointsSignupBonus     = "signup_bonus"
	PointsCharge          = "charge"
	PointsReward          = "reward"
)

// UserStatusHistory records a moderation flag change.
type UserStatusHistory struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	From      UserStatus `json:"from"`
	To        UserStatus `json:"to"`
	Reason    string     `json:"reason,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}
