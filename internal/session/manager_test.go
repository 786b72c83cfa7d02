package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bloktest/session-backend/internal/model"
	"github.com/bloktest/session-backend/internal/store"
)

func newTestManager(gw *fakeGateway) *Manager {
	return NewManager(ManagerOptions{
		Gateway:      gw,
		Store:        store.NewMemorySnapshotStore(),
		Log:          zerolog.Nop(),
		Duration:     100,
		TickInterval: time.Hour,
	})
}

func TestGetReturnsSameControllerPerUser(t *testing.T) {
	gw := &fakeGateway{paper: testPaper()}
	m := newTestManager(gw)
	defer m.StopAll()

	a := m.Get("user-1", "tok-a")
	b := m.Get("user-1", "tok-b")
	if a != b {
		t.Fatal("Get returned different controllers for one user")
	}
	if c := m.Get("user-2", "tok-c"); c == a {
		t.Fatal("controllers must be per user")
	}
}

// A re-login refreshes the controller's upstream token, but a submission
// already in flight keeps the token it was started with.
func TestInFlightSubmitKeepsItsTokenAcrossRefresh(t *testing.T) {
	gw := &fakeGateway{paper: testPaper(), submitGate: make(chan struct{})}
	m := newTestManager(gw)
	defer m.StopAll()

	c := m.Get("user-1", "tok-0")
	if err := c.Start(context.Background(), "block-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.Finish(context.Background())
		done <- err
	}()
	waitForStatus(t, c, model.SessionStatusSubmitting)

	// Hammer token refreshes while the submission is blocked in flight.
	for i := 1; i <= 100; i++ {
		m.Get("user-1", fmt.Sprintf("tok-%d", i))
	}

	close(gw.submitGate)
	if err := <-done; err != nil {
		t.Fatalf("Finish: %v", err)
	}

	gw.mu.Lock()
	token := gw.tokens[0]
	gw.mu.Unlock()
	if token != "tok-0" {
		t.Fatalf("submitted with token %s, want the snapshot tok-0", token)
	}
}
