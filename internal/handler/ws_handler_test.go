package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bloktest/session-backend/internal/middleware"
	"github.com/bloktest/session-backend/internal/model"
	"github.com/bloktest/session-backend/internal/service"
	"github.com/bloktest/session-backend/internal/session"
	"github.com/bloktest/session-backend/internal/store"
	ws "github.com/bloktest/session-backend/internal/websocket"
)

type stubGateway struct {
	paper *model.QuizPaper
}

func (g *stubGateway) FetchQuiz(_ context.Context, _, _ string) (*model.QuizPaper, error) {
	// The controller shuffles in place, so hand out a deep copy.
	raw, _ := json.Marshal(g.paper)
	var clone model.QuizPaper
	_ = json.Unmarshal(raw, &clone)
	return &clone, nil
}

func (g *stubGateway) Autosave(_ context.Context, _ string, _ model.ProgressSnapshot) error {
	return nil
}

func (g *stubGateway) SubmitResult(_ context.Context, _ string, _ model.ResultPayload) (*model.ResultSummary, error) {
	return &model.ResultSummary{}, nil
}

func streamTestPaper() *model.QuizPaper {
	return &model.QuizPaper{
		Block: model.Block{ID: "block-1", Name: "Stream Block"},
		Main: model.SubjectGroup{
			Subject: model.Subject{ID: "s1"},
			Questions: []model.Question{{
				ID:      "q1",
				Subject: model.Subject{ID: "s1"},
				Prompt:  "?",
				Options: []model.Option{{ID: "q1-opt0", Value: "a"}, {ID: "q1-opt1", Value: "b"}},
			}},
		},
	}
}

// The tick push goroutine and the read-loop replies share one connection.
// Hammering pings while ticks stream out must not corrupt or kill the stream.
func TestQuizStreamSurvivesPingsDuringTicks(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mgr := session.NewManager(session.ManagerOptions{
		Gateway:      &stubGateway{paper: streamTestPaper()},
		Store:        store.NewMemorySnapshotStore(),
		Log:          zerolog.Nop(),
		Duration:     100000,
		TickInterval: time.Millisecond,
	})
	defer mgr.StopAll()

	ctrl := mgr.Get("user-1", "tok")
	if err := ctrl.Start(context.Background(), "block-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	h := NewWSHandler(mgr, zerolog.Nop(), nil)

	engine := gin.New()
	engine.GET("/ws/v1/quiz/stream", func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{UserID: "user-1"})
	}, h.QuizStream)

	srv := httptest.NewServer(engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/quiz/stream"
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	const pings = 200
	go func() {
		for i := 0; i < pings; i++ {
			if err := client.WriteJSON(ws.RequestPayload{Action: ws.ActionPing}); err != nil {
				return
			}
		}
	}()

	// Drain frames until every ping is answered. Ticks interleave with the
	// pongs; each frame must still decode cleanly.
	pongs, ticks := 0, 0
	client.SetReadDeadline(time.Now().Add(10 * time.Second))
	for pongs < pings {
		var msg map[string]interface{}
		if err := client.ReadJSON(&msg); err != nil {
			t.Fatalf("read after %d pongs, %d ticks: %v", pongs, ticks, err)
		}
		switch msg["event"] {
		case string(ws.EventPong):
			pongs++
		case string(ws.EventTick):
			ticks++
		}
	}

	if ticks == 0 {
		t.Fatal("no tick events interleaved with the pongs")
	}
}
