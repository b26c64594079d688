package handler

// RequestMatchingDTO opens a matching request.
type RequestMatchingDTO struct {
	UserID string `json:"userId" validate:"required"`
}

// ConfirmMatchingDTO pairs two users' requests; matchId is one of those requests.
type ConfirmMatchingDTO struct {
	MatchID string `json:"matchId" validate:"required"`
	UserAID string `json:"userAId" validate:"required"`
	UserBID string `json:"userBId" validate:"required,nefield=UserAID"`
}

// FailMatchingDTO is the operator's fail-and-refund call.
type FailMatchingDTO struct {
	MatchID string `json:"matchId" validate:"required"`
	Reason  string `json:"reason" validate:"max=500"`
}

// SubmitChoicesDTO carries one side's dates and locations. Both lists may be
// empty when acceptOtherSchedule is set.
type SubmitChoicesDTO struct {
	MatchID             string   `json:"matchId" validate:"required"`
	UserID              string   `json:"userId" validate:"required"`
	Dates               []string `json:"dates" validate:"required_without=AcceptOtherSchedule,dive,required"`
	Locations           []string `json:"locations" validate:"required_without=AcceptOtherSchedule,dive,required"`
	AcceptOtherSchedule bool     `json:"acceptOtherSchedule"`
}

// FinishMatchingDTO closes the user's exchanged match.
type FinishMatchingDTO struct {
	UserID string `json:"userId" validate:"required"`
}

// RatingDTO holds the four review dimensions.
type RatingDTO struct {
	Appearance   int `json:"appearance" validate:"min=1,max=5"`
	Conversation int `json:"conversation" validate:"min=1,max=5"`
	Manners      int `json:"manners" validate:"min=1,max=5"`
	Honesty      int `json:"honesty" validate:"min=1,max=5"`
}

// ReviewDTO is a post-date review.
type ReviewDTO struct {
	MatchID         string    `json:"matchId" validate:"required"`
	ReviewerID      string    `json:"reviewerId" validate:"required"`
	TargetID        string    `json:"targetId" validate:"required,nefield=ReviewerID"`
	Rating          RatingDTO `json:"rating"`
	WantToMeetAgain bool      `json:"wantToMeetAgain"`
	Tags            []string  `json:"tags" validate:"max=20,dive,required,max=40"`
	Comment         string    `json:"comment" validate:"max=1000"`
}

// ChargePointsDTO credits points to a user.
type ChargePointsDTO struct {
	UserID string `json:"userId" validate:"required"`
	Amount int64  `json:"amount" validate:"gt=0,max=1000000000"`
	Reason string `json:"reason" validate:"max=200"`
}

// UserStatusDTO sets the moderation flag.
type UserStatusDTO struct {
	Status string `json:"status" validate:"required,oneof=green yellow red black"`
	Reason string `json:"reason" validate:"max=500"`
}
