// Package handler exposes the matching coordinator over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/oggyb/muzz-introductions/internal/domain"
	svcErr "github.com/oggyb/muzz-introductions/internal/errors"
	"github.com/oggyb/muzz-introductions/internal/logger"
	"github.com/oggyb/muzz-introductions/internal/service/matching"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Handler maps HTTP requests onto coordinator operations.
type Handler struct {
	coord    *matching.Coordinator
	validate *validator.Validate
	log      *slog.Logger
}

// New creates a Handler.
func New(coord *matching.Coordinator, validate *validator.Validate, log *slog.Logger) *Handler {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{coord: coord, validate: validate, log: log}
}

// RegisterRoutes mounts every endpoint on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)

	r.HandleFunc("/matching-request", h.requestMatching).Methods(http.MethodPost)
	r.HandleFunc("/matching-requests", h.listWaiting).Methods(http.MethodGet)
	r.HandleFunc("/matching-requests/confirm", h.confirmMatching).Methods(http.MethodPost)
	r.HandleFunc("/matching-requests/fail", h.failMatching).Methods(http.MethodPost)
	r.HandleFunc("/submit-choices", h.submitChoices).Methods(http.MethodPost)
	r.HandleFunc("/finish-matching", h.finishMatching).Methods(http.MethodPost)
	r.HandleFunc("/matching-status", h.matchingStatus).Methods(http.MethodGet)
	r.HandleFunc("/match-detail/{matchId}", h.matchDetail).Methods(http.MethodGet)

	r.HandleFunc("/reviews", h.submitReview).Methods(http.MethodPost)
	r.HandleFunc("/review-stats/{userId}", h.reviewStats).Methods(http.MethodGet)

	r.HandleFunc("/history/{userId}", h.history).Methods(http.MethodGet)
	r.HandleFunc("/charge-points", h.chargePoints).Methods(http.MethodPost)
	r.HandleFunc("/users/{userId}/status", h.setUserStatus).Methods(http.MethodPost)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) requestMatching(w http.ResponseWriter, r *http.Request) {
	var req RequestMatchingDTO
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.coord.RequestMatching(r.Context(), req.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matchId": id})
}

func (h *Handler) listWaiting(w http.ResponseWriter, r *http.Request) {
	limit := defaultPageSize
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeErrorMessage(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxPageSize)
	}
	reqs, next, err := h.coord.ListWaiting(r.Context(), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if reqs == nil {
		reqs = []domain.MatchingRequest{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": reqs, "nextCursor": next})
}

func (h *Handler) confirmMatching(w http.ResponseWriter, r *http.Request) {
	var req ConfirmMatchingDTO
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.coord.ConfirmMatching(r.Context(), req.MatchID, req.UserAID, req.UserBID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matchId": id})
}

func (h *Handler) failMatching(w http.ResponseWriter, r *http.Request) {
	var req FailMatchingDTO
	if !h.decode(w, r, &req) {
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "failed by operator"
	}
	if err := h.coord.FailMatching(r.Context(), domain.RequestID(req.MatchID), reason); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) submitChoices(w http.ResponseWriter, r *http.Request) {
	var req SubmitChoicesDTO
	if !h.decode(w, r, &req) {
		return
	}
	status, err := h.coord.SubmitChoices(r.Context(), matching.SubmitChoicesInput{
		MatchID:             req.MatchID,
		UserID:              req.UserID,
		Dates:               req.Dates,
		Locations:           req.Locations,
		AcceptOtherSchedule: req.AcceptOtherSchedule,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": status})
}

func (h *Handler) finishMatching(w http.ResponseWriter, r *http.Request) {
	var req FinishMatchingDTO
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.coord.FinishMatching(r.Context(), req.UserID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) matchingStatus(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeErrorMessage(w, http.StatusBadRequest, "userId is required")
		return
	}
	view, err := h.coord.GetMatchingStatus(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) matchDetail(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeErrorMessage(w, http.StatusBadRequest, "userId is required")
		return
	}
	d, err := h.coord.MatchDetail(r.Context(), mux.Vars(r)["matchId"], userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) submitReview(w http.ResponseWriter, r *http.Request) {
	var req ReviewDTO
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.coord.SubmitReview(r.Context(), matching.ReviewInput{
		MatchID:    req.MatchID,
		ReviewerID: req.ReviewerID,
		TargetID:   req.TargetID,
		Rating: domain.Rating{
			Appearance:   req.Rating.Appearance,
			Conversation: req.Rating.Conversation,
			Manners:      req.Rating.Manners,
			Honesty:      req.Rating.Honesty,
		},
		WantToMeetAgain: req.WantToMeetAgain,
		Tags:            req.Tags,
		Comment:         req.Comment,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviewId": id})
}

func (h *Handler) reviewStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.coord.ReviewStats(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	hist, err := h.coord.GetHistory(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

func (h *Handler) chargePoints(w http.ResponseWriter, r *http.Request) {
	var req ChargePointsDTO
	if !h.decode(w, r, &req) {
		return
	}
	balance, err := h.coord.ChargePoints(r.Context(), req.UserID, req.Amount, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": balance})
}

func (h *Handler) setUserStatus(w http.ResponseWriter, r *http.Request) {
	var req UserStatusDTO
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.coord.SetUserStatus(r.Context(), mux.Vars(r)["userId"], domain.UserStatus(req.Status), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"userId": u.UserID, "status": u.Status})
}

// decode reads and validates a JSON body. It writes the 400 itself and
// reports false when the body is unusable.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid JSON payload: "+err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "validation failed: " + err.Error()
	}
	fe := ve[0]
	if fe.Param() != "" {
		return fmt.Sprintf("validation failed: %s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("validation failed: %s must satisfy %s", fe.Field(), fe.Tag())
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := svcErr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context(), h.log).Error("request failed", "path", r.URL.Path, "err", err)
	}
	writeErrorMessage(w, status, svcErr.PublicMessage(err))
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
