package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bloktest/session-backend/internal/middleware"
	"github.com/bloktest/session-backend/internal/session"
	ws "github.com/bloktest/session-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allow-list permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams the live quiz session over WebSocket: countdown ticks
// and status changes flow out, answer and navigation intents flow in.
type WSHandler struct {
	sessions *session.Manager
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions *session.Manager, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// QuizStream godoc
// WS /ws/v1/quiz/stream?token=...
// Upgrades to WebSocket for real-time countdown and session events.
func (h *WSHandler) QuizStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ctrl, ok := h.sessions.Lookup(claims.UserID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active session"})
		return
	}

	rawConn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(rawConn)
	defer conn.Close()

	wsLog := h.log.With().Str("user_id", claims.UserID).Logger()
	wsLog.Info().Msg("Client connected")

	// Initial full state so the client renders without a REST round trip.
	if err := conn.WriteTyped(ws.StateResponse{Event: ws.EventState, State: ctrl.State()}); err != nil {
		return
	}

	events, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	// Event push loop. Exits when the subscription closes or a write fails;
	// closing the conn also unblocks the read loop below.
	go func() {
		for ev := range events {
			if err := h.writeEvent(conn, ev); err != nil {
				conn.Close()
				return
			}
		}
	}()

	for {
		var msg ws.RequestPayload
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		h.dispatch(c.Request.Context(), conn, ctrl, &msg, wsLog)
	}
}

func (h *WSHandler) writeEvent(conn *ws.Conn, ev session.Event) error {
	switch ev.Type {
	case session.EventTick:
		return conn.WriteTyped(ws.TickResponse{
			Event:     ws.EventTick,
			Remaining: ev.Remaining,
			Formatted: ev.Formatted,
			Answered:  ev.Answered,
		})
	case session.EventAnswerSaved:
		return conn.WriteTyped(ws.AnswerSavedResponse{
			Event:    ws.EventAnswerSaved,
			Answered: ev.Answered,
		})
	case session.EventFinished:
		return conn.WriteTyped(ws.FinishedResponse{
			Event:   ws.EventFinished,
			Summary: ev.Summary,
		})
	case session.EventStatus:
		return conn.WriteTyped(ws.StateResponse{
			Event: ws.EventState,
			State: gin.H{"status": ev.Status},
		})
	default:
		return nil
	}
}

func (h *WSHandler) dispatch(ctx context.Context, conn *ws.Conn, ctrl *session.Controller, msg *ws.RequestPayload, wsLog zerolog.Logger) {
	switch msg.Action {
	case ws.ActionAnswer:
		if msg.QuestionID == "" || msg.OptionID == "" {
			conn.WriteError("question_id and option_id are required")
			return
		}
		if err := ctrl.SelectAnswer(ctx, msg.QuestionID, msg.OptionID); err != nil {
			conn.WriteError(err.Error())
		}

	case ws.ActionGoTo:
		ctrl.GoTo(msg.Index)

	case ws.ActionFinish:
		summary, err := ctrl.Finish(ctx)
		if err != nil {
			conn.WriteError(err.Error())
			return
		}
		conn.WriteTyped(ws.FinishedResponse{Event: ws.EventFinished, Summary: summary})

	case ws.ActionPing:
		conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})

	default:
		wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		conn.WriteError("unknown action: " + string(msg.Action))
	}
}
