package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bloktest/session-backend/internal/gateway"
	"github.com/bloktest/session-backend/internal/middleware"
	"github.com/bloktest/session-backend/internal/model"
	"github.com/bloktest/session-backend/internal/response"
	"github.com/bloktest/session-backend/internal/service"
	"github.com/bloktest/session-backend/internal/session"
	"github.com/bloktest/session-backend/internal/validator"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService *service.AuthService
	gw          gateway.AuthAPI
	sessions    *session.Manager
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, gw gateway.AuthAPI, sessions *session.Manager) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		gw:          gw,
		sessions:    sessions,
	}
}

// Login godoc
// POST /api/v1/auth/login
// Verifies credentials against the core API and returns a local JWT.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	token, user, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
			return
		}
		if errors.Is(err, gateway.ErrUnavailable) {
			response.Fail(c, http.StatusBadGateway, response.ErrGatewayUnavailable)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token": token,
		"user":  user,
	})
}

// Register godoc
// POST /api/v1/auth/register
// Creates an account upstream and logs the new user in.
func (h *AuthHandler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	token, user, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, gateway.ErrUnavailable) {
			response.Fail(c, http.StatusBadGateway, response.ErrGatewayUnavailable)
			return
		}
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"token": token,
		"user":  user,
	})
}

// Profile godoc
// GET /api/v1/auth/me
// Returns the profile of the currently authenticated user.
func (h *AuthHandler) Profile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	user, err := h.gw.Profile(c.Request.Context(), middleware.GetGatewayToken(c))
	if err != nil {
		if errors.Is(err, gateway.ErrUnauthorized) {
			response.Fail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
			return
		}
		response.Fail(c, http.StatusBadGateway, response.ErrGatewayUnavailable)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"user": user})
}

// Logout godoc
// POST /api/v1/auth/logout
// Ends the session locally and upstream. Any running quiz attempt gets its
// teardown flush; the persisted snapshot survives for a later resume.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	h.sessions.Remove(claims.UserID)

	if err := h.authService.Logout(c.Request.Context(), claims.UserID); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
