package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bloktest/session-backend/internal/gateway"
	"github.com/bloktest/session-backend/internal/middleware"
	"github.com/bloktest/session-backend/internal/response"
)

// BlockHandler proxies read-only block and results data from the core API.
type BlockHandler struct {
	gw gateway.BrowseAPI
}

// NewBlockHandler creates a new BlockHandler.
func NewBlockHandler(gw gateway.BrowseAPI) *BlockHandler {
	return &BlockHandler{gw: gw}
}

// List godoc
// GET /api/v1/blocks
// Returns the blocks visible to the user.
func (h *BlockHandler) List(c *gin.Context) {
	blocks, err := h.gw.ListBlocks(c.Request.Context(), middleware.GetGatewayToken(c))
	if err != nil {
		h.failGateway(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"blocks": blocks})
}

// Results godoc
// GET /api/v1/blocks/results
// Returns the user's past quiz results from the core API.
func (h *BlockHandler) Results(c *gin.Context) {
	results, err := h.gw.Results(c.Request.Context(), middleware.GetGatewayToken(c))
	if err != nil {
		h.failGateway(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"results": results})
}

// Ratings godoc
// GET /api/v1/blocks/ratings/:period
// Returns platform rankings for a period (weekly, monthly, all).
func (h *BlockHandler) Ratings(c *gin.Context) {
	period := c.Param("period")
	switch period {
	case "weekly", "monthly", "all":
	default:
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	ratings, err := h.gw.RatingsByPeriod(c.Request.Context(), middleware.GetGatewayToken(c), period)
	if err != nil {
		h.failGateway(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"ratings": ratings})
}

func (h *BlockHandler) failGateway(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gateway.ErrUnauthorized):
		response.Fail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
	case errors.Is(err, gateway.ErrNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	default:
		response.Fail(c, http.StatusBadGateway, response.ErrGatewayUnavailable)
	}
}
