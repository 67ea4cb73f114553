package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kuitang/inkpad/internal/conversation"
	"github.com/kuitang/inkpad/internal/errs"
	"github.com/kuitang/inkpad/internal/logutil"
	"github.com/kuitang/inkpad/internal/obs"
)

// ErrClosed is returned for turns submitted after Close.
var ErrClosed = errors.New("assistant closed")

// ErrEmptyInput is returned when the user submits only whitespace.
var ErrEmptyInput = errors.New("message is empty")

// Threads is the conversation state a turn reads and writes.
type Threads interface {
	// Begin appends the user message and the placeholder to the note's thread
	// and returns the thread as it was before them.
	Begin(ctx context.Context, noteID string, user, placeholder conversation.Message) ([]conversation.Message, error)
	// Settle writes the finished reply over its placeholder. It reports false
	// when the note no longer exists and the reply was dropped.
	Settle(ctx context.Context, noteID string, reply conversation.Message) (bool, error)
}

// TurnState tracks one submit from placeholder to reply.
type TurnState int

const (
	Idle TurnState = iota
	AwaitingResponse
	Resolved
	Failed
)

func (s TurnState) String() string {
	switch s {
	case AwaitingResponse:
		return "awaiting_response"
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// Turn is the outcome of one submit.
type Turn struct {
	ID          string
	NoteID      string
	UserMessage conversation.Message
	Reply       conversation.Message
	State       TurnState
	// Dropped is set when the note was deleted before the reply arrived.
	Dropped bool
}

// Config tunes the orchestrator.
type Config struct {
	// Window is the number of prior messages sent as context. Zero sends all.
	Window int
	// RPS and Burst bound calls to the generator. RPS <= 0 disables limiting.
	RPS   float64
	Burst int
	// Timeout bounds a single generation call. Zero means no timeout.
	Timeout time.Duration
}

// DefaultConfig mirrors the defaults in config.
var DefaultConfig = Config{
	Window:  conversation.DefaultWindow,
	RPS:     1,
	Burst:   3,
	Timeout: 60 * time.Second,
}

// Orchestrator drives chat turns: it records the user message and a
// placeholder, asks the generator for a reply, and settles the placeholder.
type Orchestrator struct {
	threads Threads
	gen     Generator
	prompts conversation.PromptBuilder
	limiter *rate.Limiter
	timeout time.Duration

	mu       sync.Mutex
	idle     *sync.Cond
	inflight int
	closed   bool
}

// New creates an Orchestrator.
func New(threads Threads, gen Generator, cfg Config) *Orchestrator {
	limit := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	o := &Orchestrator{
		threads: threads,
		gen:     gen,
		prompts: conversation.PromptBuilder{Window: cfg.Window},
		limiter: rate.NewLimiter(limit, burst),
		timeout: cfg.Timeout,
	}
	o.idle = sync.NewCond(&o.mu)
	return o
}

// Send runs a turn to completion. Generation failures settle the placeholder
// with the failure text and are not returned; only invalid input and state
// errors are.
func (o *Orchestrator) Send(ctx context.Context, noteID, text string) (Turn, error) {
	turn, prompt, err := o.begin(ctx, noteID, text)
	if err != nil {
		return Turn{}, err
	}
	defer o.release()
	return o.complete(ctx, turn, prompt), nil
}

// SendAsync records the turn and returns it in AwaitingResponse. The settled
// turn is delivered on the returned channel. Use Wait to drain in-flight turns.
func (o *Orchestrator) SendAsync(ctx context.Context, noteID, text string) (Turn, <-chan Turn, error) {
	turn, prompt, err := o.begin(ctx, noteID, text)
	if err != nil {
		return Turn{}, nil, err
	}
	done := make(chan Turn, 1)
	bg := context.WithoutCancel(ctx)
	go func() {
		defer o.release()
		done <- o.complete(bg, turn, prompt)
		close(done)
	}()
	return turn, done, nil
}

// Wait blocks until every turn started so far, sync or async, has settled.
func (o *Orchestrator) Wait() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for o.inflight > 0 {
		o.idle.Wait()
	}
}

// Close rejects new turns with ErrClosed and waits for in-flight ones.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.Wait()
}

// acquire counts a turn in flight before any thread is touched.
func (o *Orchestrator) acquire() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errs.Wrap(errs.FailedPrecondition, "assistant is shutting down", ErrClosed)
	}
	o.inflight++
	return nil
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inflight--
	if o.inflight == 0 {
		o.idle.Broadcast()
	}
}

// begin records the user message and placeholder. On success the turn is
// counted in flight and the caller must release it.
func (o *Orchestrator) begin(ctx context.Context, noteID, text string) (Turn, string, error) {
	if strings.TrimSpace(text) == "" {
		return Turn{}, "", errs.Wrap(errs.InvalidArgument, "message is empty", ErrEmptyInput)
	}
	if err := o.acquire(); err != nil {
		return Turn{}, "", err
	}

	user := conversation.UserMessage(text)
	placeholder := conversation.Placeholder()
	history, err := o.threads.Begin(ctx, noteID, user, placeholder)
	if err != nil {
		o.release()
		return Turn{}, "", err
	}

	turn := Turn{
		ID:          placeholder.ID,
		NoteID:      noteID,
		UserMessage: user,
		Reply:       placeholder,
		State:       AwaitingResponse,
	}
	obs.From(obs.WithTurnID(obs.WithNoteID(ctx, noteID), turn.ID)).Info("assistant_turn_started",
		"history_messages", len(history),
	)
	return turn, o.prompts.Build(history, text), nil
}

func (o *Orchestrator) complete(ctx context.Context, turn Turn, prompt string) Turn {
	ctx = obs.WithTurnID(obs.WithNoteID(ctx, turn.NoteID), turn.ID)
	logger := obs.From(ctx)
	start := time.Now()

	text, err := o.generate(ctx, prompt)
	if err != nil {
		logger.Warn("assistant_turn_failed",
			"error", err.Error(),
			"prompt_preview", logutil.TruncateForLog(prompt, 200),
		)
		turn.Reply = turn.Reply.Fail()
		turn.State = Failed
	} else {
		turn.Reply = turn.Reply.Resolve(text)
		turn.State = Resolved
	}

	applied, err := o.threads.Settle(ctx, turn.NoteID, turn.Reply)
	switch {
	case err != nil:
		logger.Error("assistant_settle_failed", "error", err.Error())
	case !applied:
		turn.Dropped = true
		logger.Info("assistant_turn_dropped", "reason", "note deleted")
	default:
		logger.Info("assistant_turn_settled",
			"state", turn.State.String(),
			"dur_ms", time.Since(start).Milliseconds(),
		)
	}
	return turn
}

func (o *Orchestrator) generate(ctx context.Context, prompt string) (string, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	text, err := o.gen.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
