package matching

import (
	"context"
	"time"

	"github.com/oggyb/muzz-introductions/internal/domain"
	svcErr "github.com/oggyb/muzz-introductions/internal/errors"
)

// StatusView is the polling response. Status, MatchID and MatchedUser are
// always serialised, as null when absent.
type StatusView struct {
	Status        *domain.Status    `json:"status"`
	MatchID       *domain.RequestID `json:"matchId"`
	MatchedUser   *MatchedUser      `json:"matchedUser"`
	PairID        *domain.PairID    `json:"pairId,omitempty"`
	FinalDate     string            `json:"finalDate,omitempty"`
	FinalLocation string            `json:"finalLocation,omitempty"`
}

// MatchedUser is the counterpart's public subset.
type MatchedUser struct {
	UserID string  `json:"userId"`
	Name   string  `json:"name"`
	Job    string  `json:"job"`
	Region string  `json:"region"`
	Photo  *string `json:"photo"`
}

// GetMatchingStatus reports the user's current request and, once paired, who
// the counterpart is. The photo stays hidden until photoVisibleAt has passed.
//
// Behavior:
//   - Unknown user → NotFound.
//   - No request ever → every field null.
//   - No active request → the most recent terminal one is reported.
func (c *Coordinator) GetMatchingStatus(ctx context.Context, userID string) (StatusView, error) {
	c.appCtx.Logger.Debug("GetMatchingStatus called", "user", userID)

	if _, err := c.user(ctx, userID); err != nil {
		return StatusView{}, svcErr.Map(err)
	}
	latest, ok, err := c.Requests.Latest(ctx, userID)
	if err != nil {
		return StatusView{}, svcErr.Map(err)
	}
	if !ok {
		return StatusView{}, nil
	}

	req := latest.Value
	view := StatusView{Status: &req.Status, MatchID: &req.MatchID}
	if req.PairID == "" {
		return view, nil
	}

	pair, err := c.Pairs.Get(ctx, req.PairID)
	if err != nil {
		return StatusView{}, svcErr.Map(err)
	}
	view.PairID = &pair.Value.MatchID
	view.FinalDate = pair.Value.FinalDate
	view.FinalLocation = pair.Value.FinalLocation

	other, err := c.user(ctx, pair.Value.Counterpart(userID))
	if err != nil {
		return StatusView{}, svcErr.Map(err)
	}
	p := other.Value.Profile
	view.MatchedUser = &MatchedUser{UserID: other.Value.UserID, Name: p.Name, Job: p.Job, Region: p.Region}
	if photosVisible(req, c.appCtx.Now()) && len(p.Photos) > 0 {
		url, err := c.appCtx.Photos.URL(ctx, p.Photos[0])
		if err != nil {
			c.appCtx.Logger.Warn("photo url failed", "user", other.Value.UserID, "err", err)
		} else {
			view.MatchedUser.Photo = &url
		}
	}
	return view, nil
}

func photosVisible(req domain.MatchingRequest, now time.Time) bool {
	return req.PhotoVisibleAt != nil && !now.Before(*req.PhotoVisibleAt)
}

// History is the audit view of one user.
type History struct {
	UserID        string                     `json:"userId"`
	Points        int64                      `json:"points"`
	Requests      []domain.MatchingRequest   `json:"requests"`
	Pairs         []domain.MatchPair         `json:"pairs"`
	PointsHistory []domain.PointsHistory     `json:"pointsHistory"`
	StatusHistory []domain.UserStatusHistory `json:"statusHistory"`
}

// GetHistory unions everything recorded about the user.
func (c *Coordinator) GetHistory(ctx context.Context, userID string) (History, error) {
	c.appCtx.Logger.Debug("GetHistory called", "user", userID)

	u, err := c.user(ctx, userID)
	if err != nil {
		return History{}, svcErr.Map(err)
	}
	reqs, err := c.Requests.ListForUser(ctx, userID)
	if err != nil {
		return History{}, svcErr.Map(err)
	}
	prs, err := c.Pairs.ListForUser(ctx, userID)
	if err != nil {
		return History{}, svcErr.Map(err)
	}
	pts, err := c.Ledger.History(ctx, userID)
	if err != nil {
		return History{}, err
	}
	sts, err := c.appCtx.Repos.StatusHistory.ListByUser(ctx, userID)
	if err != nil {
		return History{}, svcErr.Map(err)
	}
	return History{
		UserID:        userID,
		Points:        u.Value.Points,
		Requests:      reqs,
		Pairs:         prs,
		PointsHistory: pts,
		StatusHistory: sts,
	}, nil
}

// Detail is the counterpart view of a pair for one of its parties.
type Detail struct {
	MatchID       domain.PairID     `json:"matchId"`
	Status        domain.Status     `json:"status"`
	FinalDate     string            `json:"finalDate,omitempty"`
	FinalLocation string            `json:"finalLocation,omitempty"`
	MyChoices     domain.Choices    `json:"myChoices"`
	TheirChoices  domain.Choices    `json:"theirChoices"`
	Counterpart   CounterpartDetail `json:"counterpart"`
	ContactReady  bool              `json:"contactReady"`
	Contact       *domain.Contact   `json:"contact"`
}

// CounterpartDetail is profile plus preferences of the other side.
type CounterpartDetail struct {
	UserID      string            `json:"userId"`
	Name        string            `json:"name"`
	Job         string            `json:"job"`
	Region      string            `json:"region"`
	Photos      []string          `json:"photos"`
	Preferences map[string]string `json:"preferences"`
}

// MatchDetail returns the counterpart's profile and preferences. matchID may be
// the pair id or the caller's request id. Contact details are only included
// once both sides asked to meet again.
func (c *Coordinator) MatchDetail(ctx context.Context, matchID, userID string) (Detail, error) {
	c.appCtx.Logger.Debug("MatchDetail called", "match", matchID, "user", userID)

	v, err := c.Pairs.Resolve(ctx, matchID)
	if err != nil {
		return Detail{}, svcErr.Map(err)
	}
	pair := v.Value
	side := pair.Side(userID)
	if side == "" {
		return Detail{}, svcErr.Forbidden("user %s is not a party to match %s", userID, matchID)
	}

	other, err := c.user(ctx, pair.Counterpart(userID))
	if err != nil {
		return Detail{}, svcErr.Map(err)
	}
	mine, err := c.Requests.Get(ctx, pair.RequestOf(userID))
	if err != nil {
		return Detail{}, svcErr.Map(err)
	}
	ready, err := c.Reviews.ContactExchangeReady(ctx, pair)
	if err != nil {
		return Detail{}, svcErr.Map(err)
	}

	d := Detail{
		MatchID:       pair.MatchID,
		Status:        pair.Status,
		FinalDate:     pair.FinalDate,
		FinalLocation: pair.FinalLocation,
		MyChoices:     pair.UserAChoices,
		TheirChoices:  pair.UserBChoices,
		ContactReady:  ready,
		Counterpart: CounterpartDetail{
			UserID:      other.Value.UserID,
			Name:        other.Value.Profile.Name,
			Job:         other.Value.Profile.Job,
			Region:      other.Value.Profile.Region,
			Photos:      []string{},
			Preferences: other.Value.Preferences,
		},
	}
	if side == "B" {
		d.MyChoices, d.TheirChoices = pair.UserBChoices, pair.UserAChoices
	}
	if ready {
		contact := other.Value.Contact
		d.Contact = &contact
	}
	if photosVisible(mine.Value, c.appCtx.Now()) {
		for _, ref := range other.Value.Profile.Photos {
			url, err := c.appCtx.Photos.URL(ctx, ref)
			if err != nil {
				c.appCtx.Logger.Warn("photo url failed", "user", other.Value.UserID, "err", err)
				continue
			}
			d.Counterpart.Photos = append(d.Counterpart.Photos, url)
		}
	}
	return d, nil
}

// ReviewStats returns the aggregate for userID.
func (c *Coordinator) ReviewStats(ctx context.Context, userID string) (domain.ReviewStats, error) {
	if _, err := c.user(ctx, userID); err != nil {
		return domain.ReviewStats{}, svcErr.Map(err)
	}
	return c.Reviews.Stats(ctx, userID)
}
