package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bloktest/session-backend/internal/gateway"
	"github.com/bloktest/session-backend/internal/model"
	"github.com/bloktest/session-backend/internal/store"
)

// Domain errors.
var (
	ErrNotActive        = errors.New("no active quiz session")
	ErrNotReady         = errors.New("quiz session is not ready to submit")
	ErrSubmitInProgress = errors.New("submission already in progress")
	ErrNothingToRetry   = errors.New("no failed submission to retry")
	ErrUnknownQuestion  = errors.New("question is not part of this quiz")
)

// ProgressQueue enqueues partial-progress snapshots for fire-and-forget
// delivery to the gateway. Implementations log failures and never block.
type ProgressQueue interface {
	Enqueue(ctx context.Context, userID, token string, snap model.ProgressSnapshot)
}

// SubmissionOutbox durably parks a submission payload that failed to reach
// the gateway, so the retry affordance never discards a computed attempt.
// Resolve marks the parked rows once a later submission succeeds.
type SubmissionOutbox interface {
	Park(ctx context.Context, userID string, payload model.ResultPayload, cause string) error
	Resolve(ctx context.Context, userID, blockID string) error
}

// AttemptRecorder records a completed, scored attempt. Implementations are
// asynchronous and best-effort.
type AttemptRecorder interface {
	Record(ctx context.Context, userID, blockID string, summary *model.ResultSummary)
}

// Options configures a Controller.
type Options struct {
	UserID   string
	Token    string // upstream gateway token
	Gateway  gateway.Client
	Store    store.SnapshotStore
	Queue    ProgressQueue
	Outbox   SubmissionOutbox
	Recorder AttemptRecorder
	Log      zerolog.Logger

	// Duration is the attempt length in seconds (default 10800).
	Duration int
	// TickInterval is the countdown granularity (default 1s; shortened in tests).
	TickInterval time.Duration
	// AutosaveEvery is the number of ticks between autosave pushes (default 60).
	AutosaveEvery int
}

// Controller owns one quiz attempt from load to submission: the question
// set, the answer map, the countdown, the autosave cadence and the final
// submission. All exported methods are safe for concurrent use.
type Controller struct {
	mu sync.Mutex

	userID  string
	token   string
	blockID string

	status    model.SessionStatus
	paper     *model.QuizPaper
	flat      []model.Question
	answers   map[string]string
	remaining int
	current   int
	ticks     int

	result  *model.ResultSummary
	pending *model.ResultPayload // parked after a failed submit

	cancel context.CancelFunc
	done   chan struct{}
	subs   map[chan Event]struct{}

	gw       gateway.Client
	store    store.SnapshotStore
	queue    ProgressQueue
	outbox   SubmissionOutbox
	recorder AttemptRecorder
	log      zerolog.Logger

	duration      int
	tickInterval  time.Duration
	autosaveEvery int
}

// NewController creates a Controller for one user. It does not load
// anything; call Start or Resume.
func NewController(opts Options) *Controller {
	if opts.Duration <= 0 {
		opts.Duration = 10800
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.AutosaveEvery <= 0 {
		opts.AutosaveEvery = 60
	}

	return &Controller{
		userID:        opts.UserID,
		token:         opts.Token,
		status:        model.SessionStatusLoading,
		answers:       make(map[string]string),
		subs:          make(map[chan Event]struct{}),
		gw:            opts.Gateway,
		store:         opts.Store,
		queue:         opts.Queue,
		outbox:        opts.Outbox,
		recorder:      opts.Recorder,
		log:           opts.Log.With().Str("component", "quiz_session").Str("user_id", opts.UserID).Logger(),
		duration:      opts.Duration,
		tickInterval:  opts.TickInterval,
		autosaveEvery: opts.AutosaveEvery,
	}
}

// Start begins a fresh attempt for blockID. The persisted slot is reset to
// defaults before the fetch regardless of any prior attempt; option order is
// shuffled once per fetch. A prior countdown for this controller is always
// cancelled first so intervals never leak across blocks.
func (c *Controller) Start(ctx context.Context, blockID string) error {
	c.stopRun()

	c.mu.Lock()
	c.status = model.SessionStatusLoading
	c.blockID = blockID
	c.paper = nil
	c.flat = nil
	c.answers = make(map[string]string)
	c.result = nil
	c.pending = nil
	c.current = 0
	c.ticks = 0
	c.remaining = c.duration
	c.mu.Unlock()

	if err := c.store.Reset(ctx, c.userID, blockID, c.duration); err != nil {
		c.log.Warn().Err(err).Msg("Snapshot reset failed")
	}

	paper, err := c.gw.FetchQuiz(ctx, c.token, blockID)
	if err != nil {
		// Session stays in LOADING; the caller surfaces the error and the
		// user retries by re-navigating. No automatic retry.
		return fmt.Errorf("fetch quiz: %w", err)
	}

	shufflePaper(paper)
	flat := flatten(paper)

	c.mu.Lock()
	c.paper = paper
	c.flat = flat
	c.status = model.SessionStatusActive
	c.mu.Unlock()

	c.log.Info().
		Str("block_id", blockID).
		Int("questions", len(flat)).
		Msg("Quiz session started")
	c.publish(Event{Type: EventStatus, Status: model.SessionStatusActive})

	c.startRun()
	return nil
}

// Resume rebuilds an attempt from the persisted snapshot, e.g. after a
// process restart. Unlike Start it keeps the stored answers and remaining
// time. Option order is re-randomized by the fresh fetch; answers are keyed
// by question id so selections survive.
func (c *Controller) Resume(ctx context.Context) error {
	snap, err := c.store.Load(ctx, c.userID)
	if err != nil {
		return err
	}

	paper, err := c.gw.FetchQuiz(ctx, c.token, snap.BlockID)
	if err != nil {
		return fmt.Errorf("fetch quiz: %w", err)
	}

	shufflePaper(paper)
	flat := flatten(paper)

	// Persisted answer keys must stay a subset of the loaded question set.
	known := make(map[string]struct{}, len(flat))
	for _, q := range flat {
		known[q.ID] = struct{}{}
	}
	answers := make(map[string]string, len(snap.Answers))
	for qid, oid := range snap.Answers {
		if _, ok := known[qid]; ok {
			answers[qid] = oid
		}
	}

	remaining := snap.Remaining
	if remaining < 0 {
		remaining = 0
	}
	if remaining > c.duration {
		remaining = c.duration
	}

	c.stopRun()

	c.mu.Lock()
	c.blockID = snap.BlockID
	c.paper = paper
	c.flat = flat
	c.answers = answers
	c.remaining = remaining
	c.current = 0
	c.ticks = 0
	c.result = nil
	c.pending = nil
	c.status = model.SessionStatusActive
	c.mu.Unlock()

	c.log.Info().
		Str("block_id", snap.BlockID).
		Int("answered", len(answers)).
		Int("remaining", remaining).
		Msg("Quiz session resumed")
	c.publish(Event{Type: EventStatus, Status: model.SessionStatusActive})

	c.startRun()
	return nil
}

// Stop tears the session down without submitting: the countdown and
// autosave cadence are cancelled and one final best-effort progress flush is
// sent (the navigation-away analog). Persisted state is kept for Resume.
func (c *Controller) Stop() {
	c.stopRun()
}

// ─── Countdown / autosave loop ──────────────────────────────────────

func (c *Controller) startRun() {
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.run(runCtx, done)
}

// stopRun cancels the running loop and waits for it to exit, so a new
// attempt never races a stale ticker.
func (c *Controller) stopRun() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (c *Controller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Teardown flush: one last fire-and-forget autosave so a
			// navigation-away loses at most the current second.
			c.flushProgress()
			return
		case <-ticker.C:
			if stop := c.tick(); stop {
				return
			}
		}
	}
}

// tick advances the countdown by one second, write-through persists the new
// value and triggers the autosave cadence. Returns true when the loop must
// stop (time expired, forced submission).
func (c *Controller) tick() bool {
	c.mu.Lock()
	if c.status != model.SessionStatusActive {
		c.mu.Unlock()
		return false
	}

	if c.remaining > 0 {
		c.remaining--
	}
	remaining := c.remaining
	answered := len(c.answers)
	c.ticks++
	needAutosave := c.ticks%c.autosaveEvery == 0
	c.mu.Unlock()

	ctx := context.Background()
	if err := c.store.SaveRemaining(ctx, c.userID, remaining); err != nil {
		c.log.Warn().Err(err).Msg("Persist remaining failed")
	}

	c.publish(Event{
		Type:      EventTick,
		Remaining: remaining,
		Formatted: FormatRemaining(remaining),
		Answered:  answered,
	})

	if needAutosave {
		c.enqueueProgress()
	}

	if remaining <= 0 {
		c.log.Info().Str("block_id", c.BlockID()).Msg("Time expired, forcing submission")
		go func() {
			if _, err := c.Finish(context.Background()); err != nil &&
				!errors.Is(err, ErrSubmitInProgress) && !errors.Is(err, ErrNotReady) {
				c.log.Error().Err(err).Msg("Forced submission failed")
			}
		}()
		return true
	}
	return false
}

// flushProgress enqueues one snapshot if the session is still active.
func (c *Controller) flushProgress() {
	c.mu.Lock()
	active := c.status == model.SessionStatusActive
	c.mu.Unlock()
	if active {
		c.enqueueProgress()
	}
}

func (c *Controller) enqueueProgress() {
	if c.queue == nil {
		return
	}

	c.mu.Lock()
	token := c.token
	snap := model.ProgressSnapshot{
		BlockID:   c.blockID,
		Answers:   copyAnswers(c.answers),
		Remaining: c.remaining,
	}
	c.mu.Unlock()

	c.queue.Enqueue(context.Background(), c.userID, token, snap)
}

// ─── User intents ───────────────────────────────────────────────────

// SelectAnswer records a single-select answer: any prior selection for the
// question is overwritten, and the full answers map is persisted to the
// local slot. No network call happens here; propagation to the server is
// autosave's or the final submission's job.
func (c *Controller) SelectAnswer(ctx context.Context, questionID, optionID string) error {
	c.mu.Lock()
	if c.status != model.SessionStatusActive {
		c.mu.Unlock()
		return ErrNotActive
	}

	if !c.hasQuestionLocked(questionID) {
		c.mu.Unlock()
		return ErrUnknownQuestion
	}

	c.answers[questionID] = optionID
	answers := copyAnswers(c.answers)
	answered := len(answers)
	c.mu.Unlock()

	if err := c.store.SaveAnswers(ctx, c.userID, answers); err != nil {
		c.log.Warn().Err(err).Msg("Persist answers failed")
	}

	c.publish(Event{Type: EventAnswerSaved, Answered: answered})
	return nil
}

// GoTo moves the navigation pointer. Out-of-range indexes are clamped;
// navigation never fails and never touches answers or the countdown.
func (c *Controller) GoTo(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.flat) == 0 {
		c.current = 0
		return
	}
	if index < 0 {
		index = 0
	}
	if index > len(c.flat)-1 {
		index = len(c.flat) - 1
	}
	c.current = index
}

// Next advances to the following question, clamped at the end.
func (c *Controller) Next() {
	c.mu.Lock()
	index := c.current + 1
	c.mu.Unlock()
	c.GoTo(index)
}

// Prev moves to the preceding question, clamped at the start.
func (c *Controller) Prev() {
	c.mu.Lock()
	index := c.current - 1
	c.mu.Unlock()
	c.GoTo(index)
}

// ─── Submission ─────────────────────────────────────────────────────

// Finish submits the attempt (manual action, timer expiry and the forced
// path all land here). It is safe to call concurrently: only the first
// caller submits, racing callers get ErrSubmitInProgress, and calls after a
// successful submission return the cached summary without a second
// submit-result call.
func (c *Controller) Finish(ctx context.Context) (*model.ResultSummary, error) {
	c.mu.Lock()
	switch c.status {
	case model.SessionStatusCompleted:
		res := c.result
		c.mu.Unlock()
		return res, nil
	case model.SessionStatusSubmitting:
		c.mu.Unlock()
		return nil, ErrSubmitInProgress
	}
	if c.paper == nil || c.userID == "" {
		// Not-yet-ready rather than an error.
		c.mu.Unlock()
		return nil, ErrNotReady
	}

	payload := c.buildPayloadLocked()
	token := c.token
	c.status = model.SessionStatusSubmitting
	c.mu.Unlock()

	c.stopRun()
	c.publish(Event{Type: EventStatus, Status: model.SessionStatusSubmitting})

	return c.submit(ctx, token, payload)
}

// Retry resubmits a payload parked by a failed Finish.
func (c *Controller) Retry(ctx context.Context) (*model.ResultSummary, error) {
	c.mu.Lock()
	switch c.status {
	case model.SessionStatusCompleted:
		res := c.result
		c.mu.Unlock()
		return res, nil
	case model.SessionStatusSubmitting:
		c.mu.Unlock()
		return nil, ErrSubmitInProgress
	}
	if c.pending == nil {
		c.mu.Unlock()
		return nil, ErrNothingToRetry
	}

	payload := *c.pending
	token := c.token
	c.status = model.SessionStatusSubmitting
	c.mu.Unlock()

	c.publish(Event{Type: EventStatus, Status: model.SessionStatusSubmitting})
	return c.submit(ctx, token, payload)
}

// submit takes the upstream token as an argument because the manager may
// refresh c.token concurrently on a re-login.
func (c *Controller) submit(ctx context.Context, token string, payload model.ResultPayload) (*model.ResultSummary, error) {
	summary, err := c.gw.SubmitResult(ctx, token, payload)
	if err != nil {
		// Park the computed payload durably so the retry affordance never
		// loses a completed attempt. The countdown is not restarted.
		c.mu.Lock()
		c.status = model.SessionStatusActive
		c.pending = &payload
		c.mu.Unlock()

		if c.outbox != nil {
			if parkErr := c.outbox.Park(context.Background(), c.userID, payload, err.Error()); parkErr != nil {
				c.log.Error().Err(parkErr).Msg("Parking failed submission failed")
			}
		}

		c.log.Error().Err(err).Str("block_id", payload.Block).Msg("Result submission failed")
		return nil, fmt.Errorf("submit result: %w", err)
	}

	c.mu.Lock()
	c.status = model.SessionStatusCompleted
	c.result = summary
	hadParked := c.pending != nil
	c.pending = nil
	blockID := c.blockID
	c.mu.Unlock()

	if err := c.store.Clear(context.Background(), c.userID); err != nil {
		c.log.Warn().Err(err).Msg("Snapshot clear failed")
	}
	if hadParked && c.outbox != nil {
		if err := c.outbox.Resolve(context.Background(), c.userID, blockID); err != nil {
			c.log.Warn().Err(err).Msg("Resolving parked submissions failed")
		}
	}
	if c.recorder != nil {
		c.recorder.Record(context.Background(), c.userID, blockID, summary)
	}

	c.log.Info().
		Str("block_id", blockID).
		Float64("total_score", summary.TotalScore).
		Msg("Quiz submitted")
	c.publish(Event{Type: EventFinished, Status: model.SessionStatusCompleted, Summary: summary})

	return summary, nil
}

// buildPayloadLocked assembles the submission payload: per group, a subject
// id and a filtered list of chosen option ids for answered questions only.
// The list is not positionally aligned to questions, which is exactly what
// the scoring server expects. Main and addition derive the subject id from
// their first loaded question (falling back to the group's own subject);
// mandatory entries always carry the group's subject id.
func (c *Controller) buildPayloadLocked() model.ResultPayload {
	mandatory := make([]model.GroupAnswers, 0, len(c.paper.Mandatory))
	for _, g := range c.paper.Mandatory {
		mandatory = append(mandatory, model.GroupAnswers{
			Subject: g.Subject.ID,
			Answers: c.chosenOptionsLocked(g),
		})
	}

	return model.ResultPayload{
		Block:     c.blockID,
		Main:      c.groupAnswersLocked(c.paper.Main),
		Addition:  c.groupAnswersLocked(c.paper.Addition),
		Mandatory: mandatory,
	}
}

func (c *Controller) groupAnswersLocked(g model.SubjectGroup) model.GroupAnswers {
	subjectID := g.Subject.ID
	if len(g.Questions) > 0 && g.Questions[0].Subject.ID != "" {
		subjectID = g.Questions[0].Subject.ID
	}
	return model.GroupAnswers{Subject: subjectID, Answers: c.chosenOptionsLocked(g)}
}

func (c *Controller) chosenOptionsLocked(g model.SubjectGroup) []string {
	answers := make([]string, 0, len(g.Questions))
	for _, q := range g.Questions {
		if oid, ok := c.answers[q.ID]; ok && oid != "" {
			answers = append(answers, oid)
		}
	}
	return answers
}

// ─── Presentation-facing state ──────────────────────────────────────

// State is the snapshot exposed to the presentation layer.
type State struct {
	Status             model.SessionStatus  `json:"status"`
	BlockID            string               `json:"block_id"`
	BlockName          string               `json:"block_name,omitempty"`
	CurrentIndex       int                  `json:"current_index"`
	TotalQuestions     int                  `json:"total_questions"`
	AnsweredCount      int                  `json:"answered_count"`
	Remaining          int                  `json:"remaining_seconds"`
	FormattedRemaining string               `json:"formatted_remaining"`
	CurrentQuestion    *model.Question      `json:"current_question,omitempty"`
	Answers            map[string]string    `json:"answers"`
	Result             *model.ResultSummary `json:"result,omitempty"`
}

// State returns the current presentation snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		Status:             c.status,
		BlockID:            c.blockID,
		CurrentIndex:       c.current,
		TotalQuestions:     len(c.flat),
		AnsweredCount:      len(c.answers),
		Remaining:          c.remaining,
		FormattedRemaining: FormatRemaining(c.remaining),
		Answers:            copyAnswers(c.answers),
		Result:             c.result,
	}
	if c.paper != nil {
		st.BlockName = c.paper.Block.Name
	}
	if c.current >= 0 && c.current < len(c.flat) {
		q := c.flat[c.current]
		st.CurrentQuestion = &q
	}
	return st
}

// Paper returns the shuffled question set, or nil while loading.
func (c *Controller) Paper() *model.QuizPaper {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paper
}

// BlockID returns the block of the current attempt.
func (c *Controller) BlockID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blockID
}

// Status returns the current state-machine position.
func (c *Controller) Status() model.SessionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Controller) hasQuestionLocked(questionID string) bool {
	for _, q := range c.flat {
		if q.ID == questionID {
			return true
		}
	}
	return false
}

func copyAnswers(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// FormatRemaining renders seconds as HH:MM:SS for the presentation layer.
func FormatRemaining(sec int) string {
	if sec < 0 {
		sec = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, (sec%3600)/60, sec%60)
}
