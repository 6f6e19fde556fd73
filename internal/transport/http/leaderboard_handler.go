package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"quiz-leaderboard-service/internal/domain"
)

// MaxBodySize limits the size of request bodies to 64KB
const MaxBodySize = 64 << 10

// Handler serves the leaderboard REST endpoints.
type Handler struct {
	service   LeaderboardService
	logger    *zap.SugaredLogger
	validator *validator.Validate
}

func NewHandler(service LeaderboardService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:   service,
		logger:    logger.Sugar(),
		validator: validator.New(),
	}
}

type checkRequest struct {
	SubmitterID string    `json:"submitterId" validate:"required,max=128"`
	Score       *int      `json:"score,omitempty" validate:"omitempty,min=0,max=100"`
	Tier        string    `json:"tier,omitempty"`
	Difficulty  string    `json:"difficulty" validate:"required,oneof=advanced beginner"`
	SubmittedAt time.Time `json:"submittedAt" validate:"required"`
}

type commitRequest struct {
	SubmitterID string    `json:"submitterId" validate:"required,max=128"`
	DisplayName string    `json:"displayName" validate:"required,max=32"`
	Score       *int      `json:"score" validate:"required,min=0,max=100"`
	Tier        string    `json:"tier,omitempty"`
	Difficulty  string    `json:"difficulty" validate:"required,oneof=advanced beginner"`
	SubmittedAt time.Time `json:"submittedAt" validate:"required"`
}

type commitResponse struct {
	Placed    bool `json:"placed"`
	FinalRank *int `json:"finalRank"`
}

type leaderboardResponse struct {
	BookID  string        `json:"bookId"`
	Entries []domain.Slot `json:"entries"`
}

func (req checkRequest) entry(bookID string) (domain.Entry, error) {
	e := domain.Entry{BookID: bookID, SubmitterID: req.SubmitterID, SubmittedAt: req.SubmittedAt}
	var err error
	switch {
	case req.Score != nil:
		e.RawScore = *req.Score
		e.Tier, err = domain.Classify(*req.Score)
	case req.Tier != "":
		e.Tier, err = domain.ParseTier(req.Tier)
	default:
		err = &domain.ValidationError{Field: "score", Reason: "score or tier is required"}
	}
	if err != nil {
		return e, err
	}
	e.Difficulty, err = domain.ParseDifficulty(req.Difficulty)
	return e, err
}

func (req commitRequest) entry(bookID string) (domain.Entry, error) {
	e := domain.Entry{
		BookID:      bookID,
		SubmitterID: req.SubmitterID,
		DisplayName: req.DisplayName,
		RawScore:    *req.Score,
		SubmittedAt: req.SubmittedAt,
	}
	var err error
	if req.Tier != "" {
		if e.Tier, err = domain.ParseTier(req.Tier); err != nil {
			return e, err
		}
	}
	e.Difficulty, err = domain.ParseDifficulty(req.Difficulty)
	return e, err
}

// CheckQualification answers whether an attempt would earn a slot right now.
func (h *Handler) CheckQualification(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !h.decode(w, r, &req) {
		return
	}
	candidate, err := req.entry(chi.URLParam(r, "bookID"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	result, err := h.service.CheckQualification(r.Context(), candidate)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, result)
}

// Commit submits a finished attempt to the book's leaderboard.
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if !h.decode(w, r, &req) {
		return
	}
	candidate, err := req.entry(chi.URLParam(r, "bookID"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	result, err := h.service.Commit(r.Context(), candidate)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, toCommitResponse(result))
}

// GetLeaderboard returns one book's slots in rank order.
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "bookID")
	slots, err := h.service.GetPartitionLeaderboard(r.Context(), bookID)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, leaderboardResponse{BookID: bookID, Entries: slots})
}

// GetLeaderboards returns the slots of every ?book= given.
func (h *Handler) GetLeaderboards(w http.ResponseWriter, r *http.Request) {
	var books []string
	for _, raw := range r.URL.Query()["book"] {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				books = append(books, b)
			}
		}
	}
	if len(books) == 0 {
		h.errorResponse(w, http.StatusBadRequest, "at least one book is required")
		return
	}
	all, err := h.service.GetAllLeaderboards(r.Context(), books)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, all)
}

func toCommitResponse(result domain.CommitResult) commitResponse {
	resp := commitResponse{Placed: result.Placed}
	if result.Placed {
		rank := result.Rank
		resp.FinalRank = &rank
	}
	return resp
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		h.errorResponse(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field()+" failed "+fe.Tag())
	}
	return "invalid request: " + strings.Join(fields, ", ")
}

// handleError maps engine errors to HTTP statuses.
func (h *Handler) handleError(w http.ResponseWriter, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Errorw("leaderboard request failed", "status", status, "error", err)
	}
	h.errorResponse(w, status, message)
}

func statusFor(err error) (int, string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Error()
	case errors.Is(err, domain.ErrRetryBudgetExhausted), errors.Is(err, domain.ErrStoreUnavailable),
		errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "leaderboard temporarily unavailable, try again"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (h *Handler) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warnw("encode response", "error", err)
	}
}

func (h *Handler) errorResponse(w http.ResponseWriter, status int, message string) {
	h.jsonResponse(w, status, map[string]string{"error": message})
}
