package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bloktest/session-backend/internal/gateway"
	"github.com/bloktest/session-backend/internal/model"
	"github.com/bloktest/session-backend/internal/store"
)

// ─── Fakes ──────────────────────────────────────────────────────────

type fakeGateway struct {
	mu         sync.Mutex
	paper      *model.QuizPaper
	fetchErr   error
	submitErr  error
	submitGate chan struct{} // When set, SubmitResult blocks until closed.
	submits    []model.ResultPayload
	tokens     []string
	summary    model.ResultSummary
}

func (g *fakeGateway) FetchQuiz(_ context.Context, _, _ string) (*model.QuizPaper, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	// The controller shuffles in place, so hand out a deep copy.
	raw, _ := json.Marshal(g.paper)
	var clone model.QuizPaper
	_ = json.Unmarshal(raw, &clone)
	return &clone, nil
}

func (g *fakeGateway) Autosave(_ context.Context, _ string, _ model.ProgressSnapshot) error {
	return nil
}

func (g *fakeGateway) SubmitResult(_ context.Context, token string, payload model.ResultPayload) (*model.ResultSummary, error) {
	g.mu.Lock()
	gate := g.submitGate
	g.mu.Unlock()
	if gate != nil {
		<-gate
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.submitErr != nil {
		return nil, g.submitErr
	}
	g.submits = append(g.submits, payload)
	g.tokens = append(g.tokens, token)
	summary := g.summary
	return &summary, nil
}

func (g *fakeGateway) submitCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.submits)
}

type fakeQueue struct {
	mu    sync.Mutex
	snaps []model.ProgressSnapshot
}

func (q *fakeQueue) Enqueue(_ context.Context, _, _ string, snap model.ProgressSnapshot) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.snaps = append(q.snaps, snap)
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.snaps)
}

type fakeOutbox struct {
	mu       sync.Mutex
	parked   []model.ResultPayload
	resolved int
}

func (o *fakeOutbox) Park(_ context.Context, _ string, payload model.ResultPayload, _ string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.parked = append(o.parked, payload)
	return nil
}

func (o *fakeOutbox) Resolve(_ context.Context, _, _ string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resolved++
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────

func question(id, subjectID string, optionCount int) model.Question {
	opts := make([]model.Option, 0, optionCount)
	for i := 0; i < optionCount; i++ {
		opts = append(opts, model.Option{
			ID:    fmt.Sprintf("%s-opt%d", id, i),
			Kind:  "text",
			Value: fmt.Sprintf("choice %d", i),
		})
	}
	return model.Question{
		ID:      id,
		Subject: model.Subject{ID: subjectID},
		Prompt:  "prompt " + id,
		Kind:    "text",
		Options: opts,
	}
}

// testPaper has 2 main, 1 addition and 2 mandatory questions. Group and
// question subject ids deliberately differ so the payload tests pin which
// one each group uses.
func testPaper() *model.QuizPaper {
	return &model.QuizPaper{
		Block: model.Block{ID: "block-1", Name: "Biology Block"},
		Main: model.SubjectGroup{
			Subject:   model.Subject{ID: "subj-main-group"},
			Questions: []model.Question{question("q1", "subj-main", 4), question("q2", "subj-main", 4)},
		},
		Addition: model.SubjectGroup{
			Subject:   model.Subject{ID: "subj-add-group"},
			Questions: []model.Question{question("q3", "subj-add", 4)},
		},
		Mandatory: []model.SubjectGroup{
			{
				Subject:   model.Subject{ID: "subj-mand"},
				Questions: []model.Question{question("q4", "subj-mand-q", 3), question("q5", "subj-mand-q", 3)},
			},
		},
	}
}

func newTestController(t *testing.T, gw *fakeGateway, opts Options) *Controller {
	t.Helper()
	if opts.UserID == "" {
		opts.UserID = "user-1"
	}
	opts.Token = "upstream-token"
	opts.Gateway = gw
	if opts.Store == nil {
		opts.Store = store.NewMemorySnapshotStore()
	}
	opts.Log = zerolog.Nop()
	if opts.Duration == 0 {
		opts.Duration = 100
	}
	// Keep the real ticker idle; tests drive tick() directly.
	opts.TickInterval = time.Hour

	c := NewController(opts)
	t.Cleanup(c.Stop)
	return c
}

func waitForStatus(t *testing.T, c *Controller, want model.SessionStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Status() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("status = %s, want %s", c.Status(), want)
}

// ─── Start / load ───────────────────────────────────────────────────

func TestStartActivatesAndResetsSlot(t *testing.T) {
	gw := &fakeGateway{paper: testPaper()}
	st := store.NewMemorySnapshotStore()
	c := newTestController(t, gw, Options{Store: st, Duration: 10800})

	if err := c.Start(context.Background(), "block-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if got := c.Status(); got != model.SessionStatusActive {
		t.Fatalf("status = %s, want ACTIVE", got)
	}

	snap, err := st.Load(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.BlockID != "block-1" || snap.Remaining != 10800 || len(snap.Answers) != 0 {
		t.Fatalf("snapshot = %+v, want fresh slot for block-1 at 10800", snap)
	}
}

func TestStartDiscardsPriorProgressEvenForAnotherBlock(t *testing.T) {
	gw := &fakeGateway{paper: testPaper()}
	st := store.NewMemorySnapshotStore()
	c := newTestController(t, gw, Options{Store: st, Duration: 500})

	if err := c.Start(context.Background(), "block-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.SelectAnswer(context.Background(), "q1", "q1-opt0"); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}
	c.tick()

	if err := c.Start(context.Background(), "block-2"); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	snap, err := st.Load(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.BlockID != "block-2" || snap.Remaining != 500 || len(snap.Answers) != 0 {
		t.Fatalf("snapshot = %+v, want reset slot for block-2", snap)
	}
	if got := len(c.State().Answers); got != 0 {
		t.Fatalf("answers after restart = %d, want 0", got)
	}
}

func TestStartFetchFailureStaysLoading(t *testing.T) {
	gw := &fakeGateway{paper: testPaper(), fetchErr: gateway.ErrUnavailable}
	c := newTestController(t, gw, Options{})

	err := c.Start(context.Background(), "block-1")
	if !errors.Is(err, gateway.ErrUnavailable) {
		t.Fatalf("Start err = %v, want ErrUnavailable", err)
	}
	if got := c.Status(); got != model.SessionStatusLoading {
		t.Fatalf("status = %s, want LOADING", got)
	}
}

// ─── Shuffle ────────────────────────────────────────────────────────

func TestShufflePreservesOptionSets(t *testing.T) {
	gw := &fakeGateway{paper: testPaper()}
	c := newTestController(t, gw, Options{})

	if err := c.Start(context.Background(), "block-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	byID := make(map[string]model.Question)
	for _, g := range []model.SubjectGroup{c.Paper().Main, c.Paper().Addition, c.Paper().Mandatory[0]} {
		for _, q := range g.Questions {
			byID[q.ID] = q
		}
	}

	for _, orig := range flatten(testPaper()) {
		got, ok := byID[orig.ID]
		if !ok {
			t.Fatalf("question %s missing after shuffle", orig.ID)
		}
		if len(got.Options) != len(orig.Options) {
			t.Fatalf("question %s option count = %d, want %d", orig.ID, len(got.Options), len(orig.Options))
		}
		var gotIDs, wantIDs []string
		for _, o := range got.Options {
			gotIDs = append(gotIDs, o.ID)
		}
		for _, o := range orig.Options {
			wantIDs = append(wantIDs, o.ID)
		}
		sort.Strings(gotIDs)
		sort.Strings(wantIDs)
		for i := range wantIDs {
			if gotIDs[i] != wantIDs[i] {
				t.Fatalf("question %s options changed identity: %v vs %v", orig.ID, gotIDs, wantIDs)
			}
		}
	}
}

// ─── Countdown ──────────────────────────────────────────────────────

func TestTickDecrementsOncePerTickAndPersists(t *testing.T) {
	gw := &fakeGateway{paper: testPaper()}
	st := store.NewMemorySnapshotStore()
	c := newTestController(t, gw, Options{Store: st, Duration: 100})

	if err := c.Start(context.Background(), "block-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 3; i++ {
		c.tick()
	}

	if got := c.State().Remaining; got != 97 {
		t.Fatalf("remaining = %d, want 97", got)
	}
	snap, _ := st.Load(context.Background(), "user-1")
	if snap.Remaining != 97 {
		t.Fatalf("persisted remaining = %d, want 97", snap.Remaining)
	}
}

func TestTimerNeverGoesNegativeAndForcesSubmission(t *testing.T) {
	gw := &fakeGateway{paper: testPaper()}
	c := newTestController(t, gw, Options{Duration: 2})

	if err := c.Start(context.Background(), "block-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.SelectAnswer(context.Background(), "q1", "q1-opt1"); err != nil {
		t.Fatalf("SelectAnswer: %v", err)
	}

	c.tick()
	if stop := c.tick(); !stop {
		t.Fatal("tick at zero should stop the loop")
	}

	waitForStatus(t, c, model.SessionStatusCompleted)

	if got := c.State().Remaining; got != 0 {
		t.Fatalf("remaining = %d, want 0", got)
	}
	if got := gw.submitCount(); got != 1 {
		t.Fatalf("submissions = %d, want 1", got)
	}
	// Whatever was answered by the deadline went out.
	if got := len(gw.submits[0].Main.Answers); got != 1 {
		t.Fatalf("main answers = %d, want 1", got)
	}
}

func TestAutosaveCadence(t *testing.T) {
	gw := &fakeGateway{paper: testPaper()}
	queue := &fakeQueue{}
	c := newTestController(t, gw, Options{Queue: queue, Duration: 1000, AutosaveEvery: 3})

	if err := c.Start(context.Background(), "block-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 7; i++ {
		c.tick()
	}

	// Ticks 3 and 6 fire the cadence.
	if got := queue.count(); got != 2 {
		t.Fatalf("autosaves = %d, want 2", got)
	}
}

func TestStopFlushesProgressOnce(t *testing.T) {
	gw := &fakeGateway{paper: testPaper()}
	queue := &fakeQueue{}
	c := newTestController(t, gw, Options{Queue: queue, Duration: 1000, AutosaveEvery: 9999})

	if err := c.Start(context.Background(), "block-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_ = c.SelectAnswer(context.Background(), "q2", "q2-opt2")

	c.Stop()

	if got := queue.count(); got != 1 {
		t.Fatalf("teardown flushes = %d, want 1", got)
	}
	queue.mu.Lock()
	snap := queue.snaps[0]
	queue.mu.Unlock()
	if snap.Answers["q2"] != "q2-opt2" {
		t.Fatalf("flushed snapshot answers = %v", snap.Answers)
	}
}

// ─── Answers ────────────────────────────────────────────────────────

func TestSelectAnswerLastWriteWins(t *testing.T) {
	gw := &fakeGateway{paper: testPaper()}
	st := store.NewMemorySnapshotStore()
	c := newTestController(t, gw, Options{Store: st})

	if err := c.Start(context.Background(), "block-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	_ = c.SelectAnswer(context.Background(), "q1", "q1-opt0")
	_ = c.SelectAnswer(context.Background(), "q1", "q1-opt3")

	if got := c.State().Answers["q1"]; got != "q1-opt3" {
		t.Fatalf("answer = %s, want q1-opt3", got)
	}
	if got := c.State().AnsweredCount; got != 1 {
		t.Fatalf("answered = %d, want 1", got)
	}
	snap, _ := st.Load(context.Background(), "user-1")
	if snap.Answers["q1"] != "q1-opt3" {
		t.Fatalf("persisted answer = %s, want q1-opt3", snap.Answers["q1"])
	}
}

func TestSelectAnswerRejectsUnknownQuestionAndInactiveSession(t *testing.T) {
	gw := &fakeGateway{paper: testPaper()}
	c := newTestController(t, gw, Options{})

	if err := c.SelectAnswer(context.Background(), "q1", "q1-opt0"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("err = %v, want ErrNotActive", err)
	}

	if err := c.Start(context.Background(), "block-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.SelectAnswer(context.Background(), "ghost", "x"); !errors.Is(err, ErrUnknownQuestion) {
		t.Fatalf("err = %v, want ErrUnknownQuestion", err)
	}
}

// ─── Navigation ─────────────────────────────────────────────────────

func TestNavigationFlattensGroupsAndClamps(t *testing.T) {
	gw := &fakeGateway{paper: testPaper()}
	c := newTestController(t, gw, Options{})

	if err := c.Start(context.Background(), "block-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// main(q1,q2) ++ addition(q3) ++ mandatory(q4,q5)
	want := []string{"q1", "q2", "q3", "q4", "q5"}
	for i, id := range want {
		c.GoTo(i)
		if got := c.State().CurrentQuestion.ID; got != id {
			t.Fatalf("index %d question = %s, want %s", i, got, id)
		}
	}

	c.GoTo(99)
	if got := c.State().CurrentIndex; got != 4 {
		t.Fatalf("clamped index = %d, want 4", got)
	}
	c.GoTo(-7)
	if got := c.State().CurrentIndex; got != 0 {
		t.Fatalf("clamped index = %d, want 0", got)
	}

	c.Prev() // Already at 0, stays.
	if got := c.State().CurrentIndex; got != 0 {
		t.Fatalf("prev at start = %d, want 0", got)
	}
	c.GoTo(4)
	c.Next() // Already at the end, stays.
	if got := c.State().CurrentIndex; got != 4 {
		t.Fatalf("next at end = %d, want 4", got)
	}
}

// ─── Submission ─────────────────────────────────────────────────────

func TestFinishBuildsFilteredPayload(t *testing.T) {
	gw := &fakeGateway{paper: testPaper(), summary: model.ResultSummary{TotalScore: 42}}
	c := newTestController(t, gw, Options{})

	if err := c.Start(context.Background(), "block-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Answer q1 (main) and q5 (mandatory); q2, q3, q4 stay unanswered.
	_ = c.SelectAnswer(context.Background(), "q1", "q1-opt2")
	_ = c.SelectAnswer(context.Background(), "q5", "q5-opt0")

	summary, err := c.Finish(context.Background())
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if summary.TotalScore != 42 {
		t.Fatalf("score = %v, want 42", summary.TotalScore)
	}

	payload := gw.submits[0]
	if payload.Block != "block-1" {
		t.Fatalf("block = %s", payload.Block)
	}
	// Main and addition take the subject of their first question.
	if payload.Main.Subject != "subj-main" || len(payload.Main.Answers) != 1 || payload.Main.Answers[0] != "q1-opt2" {
		t.Fatalf("main group = %+v", payload.Main)
	}
	if payload.Addition.Subject != "subj-add" || len(payload.Addition.Answers) != 0 {
		t.Fatalf("addition group = %+v", payload.Addition)
	}
	if len(payload.Mandatory) != 1 {
		t.Fatalf("mandatory groups = %d, want 1", len(payload.Mandatory))
	}
	// Mandatory entries carry the group's own subject id, not the question's.
	if m := payload.Mandatory[0]; m.Subject != "subj-mand" || len(m.Answers) != 1 || m.Answers[0] != "q5-opt0" {
		t.Fatalf("mandatory group = %+v", m)
	}
}

func TestFinishWithoutMandatorySubmitsEmptyList(t *testing.T) {
	paper := testPaper()
	paper.Mandatory = nil
	gw := &fakeGateway{paper: paper}
	c := newTestController(t, gw, Options{})

	if err := c.Start(context.Background(), "block-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_ = c.SelectAnswer(context.Background(), "q3", "q3-opt2")

	if _, err := c.Finish(context.Background()); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	payload := gw.submits[0]
	if payload.Mandatory == nil || len(payload.Mandatory) != 0 {
		t.Fatalf("mandatory = %#v, want empty non-nil list", payload.Mandatory)
	}
	if payload.Addition.Answers[0] != "q3-opt2" {
		t.Fatalf("addition answers = %v", payload.Addition.Answers)
	}

	// The scoring server expects "mandatory":[] on the wire, never null.
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"mandatory":[]`) {
		t.Fatalf(`payload = %s, want "mandatory":[]`, raw)
	}
}

func TestFinishIsSingleFlight(t *testing.T) {
	gw := &fakeGateway{paper: testPaper(), submitGate: make(chan struct{})}
	c := newTestController(t, gw, Options{})

	if err := c.Start(context.Background(), "block-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	firstDone := make(chan error, 1)
	go func() {
		_, err := c.Finish(context.Background())
		firstDone <- err
	}()

	waitForStatus(t, c, model.SessionStatusSubmitting)

	if _, err := c.Finish(context.Background()); !errors.Is(err, ErrSubmitInProgress) {
		t.Fatalf("racing Finish err = %v, want ErrSubmitInProgress", err)
	}

	close(gw.submitGate)
	if err := <-firstDone; err != nil {
		t.Fatalf("first Finish: %v", err)
	}

	// A later Finish returns the cached summary without resubmitting.
	if _, err := c.Finish(context.Background()); err != nil {
		t.Fatalf("post-completion Finish: %v", err)
	}
	if got := gw.submitCount(); got != 1 {
		t.Fatalf("submissions = %d, want 1", got)
	}
}

func TestFinishBeforeLoadReturnsNotReady(t *testing.T) {
	gw := &fakeGateway{paper: testPaper()}
	c := newTestController(t, gw, Options{})

	if _, err := c.Finish(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want ErrNotReady", err)
	}
}

func TestFailedSubmitParksPayloadAndRetryResubmits(t *testing.T) {
	gw := &fakeGateway{paper: testPaper(), submitErr: gateway.ErrUnavailable}
	outbox := &fakeOutbox{}
	c := newTestController(t, gw, Options{Outbox: outbox})

	if err := c.Start(context.Background(), "block-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_ = c.SelectAnswer(context.Background(), "q3", "q3-opt1")

	if _, err := c.Finish(context.Background()); !errors.Is(err, gateway.ErrUnavailable) {
		t.Fatalf("Finish err = %v, want ErrUnavailable", err)
	}

	// The attempt is not lost: status returns to ACTIVE, payload parked.
	if got := c.Status(); got != model.SessionStatusActive {
		t.Fatalf("status = %s, want ACTIVE", got)
	}
	outbox.mu.Lock()
	parked := len(outbox.parked)
	outbox.mu.Unlock()
	if parked != 1 {
		t.Fatalf("parked payloads = %d, want 1", parked)
	}

	gw.mu.Lock()
	gw.submitErr = nil
	gw.mu.Unlock()

	summary, err := c.Retry(context.Background())
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if summary == nil {
		t.Fatal("Retry returned nil summary")
	}
	if got := gw.submits[0].Addition.Answers[0]; got != "q3-opt1" {
		t.Fatalf("retried payload answer = %s, want q3-opt1", got)
	}
	outbox.mu.Lock()
	resolved := outbox.resolved
	outbox.mu.Unlock()
	if resolved != 1 {
		t.Fatalf("resolved = %d, want 1", resolved)
	}
}

func TestRetryWithoutFailureReturnsNothingToRetry(t *testing.T) {
	gw := &fakeGateway{paper: testPaper()}
	c := newTestController(t, gw, Options{})

	if err := c.Start(context.Background(), "block-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := c.Retry(context.Background()); !errors.Is(err, ErrNothingToRetry) {
		t.Fatalf("err = %v, want ErrNothingToRetry", err)
	}
}

// ─── Resume ─────────────────────────────────────────────────────────

func TestResumeRestoresSnapshot(t *testing.T) {
	gw := &fakeGateway{paper: testPaper()}
	st := store.NewMemorySnapshotStore()

	first := newTestController(t, gw, Options{Store: st, Duration: 100})
	if err := first.Start(context.Background(), "block-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	_ = first.SelectAnswer(context.Background(), "q1", "q1-opt1")
	_ = first.SelectAnswer(context.Background(), "q4", "q4-opt2")
	first.tick()
	first.tick()
	first.Stop()

	second := newTestController(t, gw, Options{Store: st, Duration: 100})
	if err := second.Resume(context.Background()); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	state := second.State()
	if state.Status != model.SessionStatusActive {
		t.Fatalf("status = %s, want ACTIVE", state.Status)
	}
	if state.Remaining != 98 {
		t.Fatalf("remaining = %d, want 98", state.Remaining)
	}
	if state.Answers["q1"] != "q1-opt1" || state.Answers["q4"] != "q4-opt2" {
		t.Fatalf("answers = %v", state.Answers)
	}
	if state.BlockID != "block-1" {
		t.Fatalf("block = %s", state.BlockID)
	}
}

func TestResumeWithoutSnapshotFails(t *testing.T) {
	gw := &fakeGateway{paper: testPaper()}
	c := newTestController(t, gw, Options{})

	if err := c.Resume(context.Background()); !errors.Is(err, store.ErrNoSnapshot) {
		t.Fatalf("err = %v, want ErrNoSnapshot", err)
	}
}

// ─── Formatting ─────────────────────────────────────────────────────

func TestFormatRemaining(t *testing.T) {
	cases := []struct {
		in   int
		want string
	}{
		{10800, "03:00:00"},
		{3671, "01:01:11"},
		{59, "00:00:59"},
		{0, "00:00:00"},
		{-5, "00:00:00"},
	}
	for _, tc := range cases {
		if got := FormatRemaining(tc.in); got != tc.want {
			t.Errorf("FormatRemaining(%d) = %s, want %s", tc.in, got, tc.want)
		}
	}
}
