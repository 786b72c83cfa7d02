package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bloktest/session-backend/internal/gateway"
	"github.com/bloktest/session-backend/internal/middleware"
	"github.com/bloktest/session-backend/internal/model"
	"github.com/bloktest/session-backend/internal/repository"
	"github.com/bloktest/session-backend/internal/response"
	"github.com/bloktest/session-backend/internal/session"
	"github.com/bloktest/session-backend/internal/store"
	"github.com/bloktest/session-backend/internal/validator"
)

// QuizHandler exposes the quiz session lifecycle over REST.
type QuizHandler struct {
	sessions *session.Manager
	attempts *repository.AttemptRepository
}

// NewQuizHandler creates a new QuizHandler.
func NewQuizHandler(sessions *session.Manager, attempts *repository.AttemptRepository) *QuizHandler {
	return &QuizHandler{sessions: sessions, attempts: attempts}
}

func (h *QuizHandler) controller(c *gin.Context) *session.Controller {
	claims := middleware.GetClaims(c)
	return h.sessions.Get(claims.UserID, middleware.GetGatewayToken(c))
}

// Start godoc
// POST /api/v1/quiz/start
// Begins a fresh attempt for a block. Any prior progress in the slot is
// discarded, even progress for a different block.
func (h *QuizHandler) Start(c *gin.Context) {
	var req model.StartSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctrl := h.controller(c)
	if err := ctrl.Start(c.Request.Context(), req.BlockID); err != nil {
		switch {
		case errors.Is(err, gateway.ErrForbidden):
			response.Fail(c, http.StatusForbidden, response.ErrBlockNoAccess)
		case errors.Is(err, gateway.ErrNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, gateway.ErrUnavailable):
			response.Fail(c, http.StatusBadGateway, response.ErrGatewayUnavailable)
		default:
			response.Fail(c, http.StatusBadGateway, response.ErrQuizLoadFailed)
		}
		return
	}

	response.Success(c, http.StatusOK, ctrl.State())
}

// Resume godoc
// POST /api/v1/quiz/resume
// Rebuilds the attempt from the persisted snapshot, keeping answers and the
// remaining time.
func (h *QuizHandler) Resume(c *gin.Context) {
	ctrl := h.controller(c)
	if err := ctrl.Resume(c.Request.Context()); err != nil {
		switch {
		case errors.Is(err, store.ErrNoSnapshot):
			response.Fail(c, http.StatusNotFound, response.ErrNoActiveSession)
		case errors.Is(err, gateway.ErrUnavailable):
			response.Fail(c, http.StatusBadGateway, response.ErrGatewayUnavailable)
		default:
			response.Fail(c, http.StatusBadGateway, response.ErrQuizLoadFailed)
		}
		return
	}

	response.Success(c, http.StatusOK, ctrl.State())
}

// State godoc
// GET /api/v1/quiz/state
// Returns the current session snapshot for rendering.
func (h *QuizHandler) State(c *gin.Context) {
	claims := middleware.GetClaims(c)
	ctrl, ok := h.sessions.Lookup(claims.UserID)
	if !ok {
		response.Fail(c, http.StatusNotFound, response.ErrNoActiveSession)
		return
	}

	response.Success(c, http.StatusOK, ctrl.State())
}

// Answer godoc
// POST /api/v1/quiz/answer
// Records a single-select answer, overwriting any prior choice.
func (h *QuizHandler) Answer(c *gin.Context) {
	var req model.SelectAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctrl := h.controller(c)
	if err := ctrl.SelectAnswer(c.Request.Context(), req.QuestionID, req.OptionID); err != nil {
		switch {
		case errors.Is(err, session.ErrNotActive):
			response.Fail(c, http.StatusConflict, response.ErrNoActiveSession)
		case errors.Is(err, session.ErrUnknownQuestion):
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"answered": ctrl.State().AnsweredCount})
}

// GoTo godoc
// POST /api/v1/quiz/goto
// Moves the navigation pointer; out-of-range indexes clamp.
func (h *QuizHandler) GoTo(c *gin.Context) {
	var req model.GoToRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctrl := h.controller(c)
	ctrl.GoTo(req.Index)
	response.Success(c, http.StatusOK, ctrl.State())
}

// Next godoc
// POST /api/v1/quiz/next
func (h *QuizHandler) Next(c *gin.Context) {
	ctrl := h.controller(c)
	ctrl.Next()
	response.Success(c, http.StatusOK, ctrl.State())
}

// Prev godoc
// POST /api/v1/quiz/prev
func (h *QuizHandler) Prev(c *gin.Context) {
	ctrl := h.controller(c)
	ctrl.Prev()
	response.Success(c, http.StatusOK, ctrl.State())
}

// Finish godoc
// POST /api/v1/quiz/finish
// Submits the attempt. Concurrent calls collapse into one submission; calls
// after completion return the cached summary.
func (h *QuizHandler) Finish(c *gin.Context) {
	ctrl := h.controller(c)

	summary, err := ctrl.Finish(c.Request.Context())
	if err != nil {
		h.failSubmission(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": summary})
}

// Retry godoc
// POST /api/v1/quiz/retry
// Resubmits a payload parked by a failed finish.
func (h *QuizHandler) Retry(c *gin.Context) {
	ctrl := h.controller(c)

	summary, err := ctrl.Retry(c.Request.Context())
	if err != nil {
		h.failSubmission(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": summary})
}

func (h *QuizHandler) failSubmission(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrSubmitInProgress):
		response.Fail(c, http.StatusConflict, response.ErrSubmitInProgress)
	case errors.Is(err, session.ErrNotReady):
		response.Fail(c, http.StatusConflict, response.ErrSessionNotReady)
	case errors.Is(err, session.ErrNothingToRetry):
		response.Fail(c, http.StatusConflict, response.ErrNothingToRetry)
	default:
		response.Fail(c, http.StatusBadGateway, response.ErrSubmitFailed)
	}
}

// Attempts godoc
// GET /api/v1/quiz/attempts
// Lists the locally recorded attempt history, newest first.
func (h *QuizHandler) Attempts(c *gin.Context) {
	claims := middleware.GetClaims(c)

	attempts, err := h.attempts.ListByUser(c.Request.Context(), claims.UserID, 50)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": attempts})
}
