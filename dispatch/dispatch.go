// Package dispatch routes classified intents to capability providers and
// drives the resulting task through its lifecycle.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/GoCodeAlone/aura/capability"
	"github.com/GoCodeAlone/aura/intent"
	"github.com/GoCodeAlone/aura/metrics"
	"github.com/GoCodeAlone/aura/task"
)

var (
	// ErrUnroutable is matched by every *UnroutableError.
	ErrUnroutable = errors.New("unroutable intent")

	// ErrIncompleteRequest is matched by every *IncompleteRequestError.
	ErrIncompleteRequest = errors.New("incomplete request")
)

// UnroutableError is returned when no route is bound to an intent's tag.
type UnroutableError struct {
	Tag intent.Tag
}

func (e *UnroutableError) Error() string {
	return fmt.Sprintf("%s: no route for %q", ErrUnroutable, e.Tag)
}

// Is makes errors.Is(err, ErrUnroutable) succeed.
func (e *UnroutableError) Is(target error) bool { return target == ErrUnroutable }

// IncompleteRequestError is returned when the request text lacks a required field.
type IncompleteRequestError struct {
	Tag   intent.Tag
	Field string
}

func (e *IncompleteRequestError) Error() string {
	return fmt.Sprintf("%s: %s requires %q", ErrIncompleteRequest, e.Tag, e.Field)
}

// Is makes errors.Is(err, ErrIncompleteRequest) succeed.
func (e *IncompleteRequestError) Is(target error) bool { return target == ErrIncompleteRequest }

// RequestBuilder turns raw request text into a capability request. A missing
// required field is reported as *IncompleteRequestError.
type RequestBuilder func(text string) (capability.Request, error)

// Route binds one intent tag to a capability.
type Route struct {
	Tag        intent.Tag
	TaskType   task.Type
	Capability capability.Provider
	Build      RequestBuilder

	// Title names the task created for req. Defaults to the tag.
	Title func(req capability.Request) string
}

// Result is the outcome of a dispatch that reached the provider call.
type Result struct {
	Kind      intent.Tag      `json:"kind"`
	TaskID    string          `json:"task_id"`
	Task      task.Task       `json:"task"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Succeeded bool            `json:"succeeded"`
	Failure   string          `json:"failure,omitempty"`
}

const defaultProviderTimeout = 30 * time.Second

// Dispatcher holds the routing table. Safe for concurrent use.
type Dispatcher struct {
	reg     *task.Registry
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	routes map[intent.Tag]Route
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithProviderTimeout bounds each capability call. Zero disables the bound.
func WithProviderTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New creates a Dispatcher that records tasks in reg.
func New(reg *task.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		reg:     reg,
		timeout: defaultProviderTimeout,
		logger:  slog.Default(),
		routes:  make(map[intent.Tag]Route),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds r to the routing table. A tag may be bound once.
func (d *Dispatcher) Register(r Route) error {
	if r.Tag == "" {
		return errors.New("route: empty tag")
	}
	if r.Capability == nil {
		return fmt.Errorf("route %q: nil capability", r.Tag)
	}
	if r.Build == nil {
		return fmt.Errorf("route %q: nil request builder", r.Tag)
	}
	if r.TaskType == "" {
		r.TaskType = task.TypeGeneric
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.routes[r.Tag]; exists {
		return fmt.Errorf("route %q already registered", r.Tag)
	}
	d.routes[r.Tag] = r
	return nil
}

// Routes returns the routing table ordered by tag.
func (d *Dispatcher) Routes() []Route {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Route, 0, len(d.routes))
	for _, r := range d.routes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

func (d *Dispatcher) route(tag intent.Tag) (Route, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.routes[tag]
	return r, ok
}

type dispatchConfig struct {
	conversationID string
}

// DispatchOption configures a single Dispatch call.
type DispatchOption func(*dispatchConfig)

// WithConversation links the created task to a conversation.
func WithConversation(id string) DispatchOption {
	return func(c *dispatchConfig) { c.conversationID = id }
}

// Dispatch routes in to its capability.
//
// Routing and extraction failures return an error before any task exists.
// Once a task is created it always reaches a terminal state: provider
// failures are recorded with Fail and reported in the Result, not as an error.
// The provider call is detached from ctx cancellation so an abandoned turn
// still resolves its task.
func (d *Dispatcher) Dispatch(ctx context.Context, in intent.Intent, opts ...DispatchOption) (Result, error) {
	var cfg dispatchConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	label := tagLabel(in.Tag)
	logger := d.logger.With("intent", string(in.Tag))

	r, ok := d.route(in.Tag)
	if !ok {
		metrics.ObserveDispatch(label, metrics.OutcomeUnroutable)
		logger.Error("no route for intent")
		return Result{}, &UnroutableError{Tag: in.Tag}
	}

	req, err := r.Build(in.RawText)
	if err != nil {
		metrics.ObserveDispatch(label, metrics.OutcomeIncomplete)
		var ie *IncompleteRequestError
		if !errors.As(err, &ie) {
			ie = &IncompleteRequestError{Tag: in.Tag, Field: err.Error()}
		}
		if ie.Tag == "" {
			ie.Tag = in.Tag
		}
		logger.Warn("incomplete request", "field", ie.Field)
		return Result{}, ie
	}

	title := string(in.Tag)
	if r.Title != nil {
		if t := r.Title(req); t != "" {
			title = t
		}
	}

	t, err := d.reg.Create(r.TaskType, title, in.RawText,
		task.WithAction(string(in.Tag)), task.WithConversation(cfg.conversationID))
	if err != nil {
		return Result{}, fmt.Errorf("dispatch %s: %w", in.Tag, err)
	}
	logger = logger.With("task_id", t.ID)

	if _, err := d.reg.MarkProcessing(t.ID); err != nil {
		if _, ferr := d.reg.Fail(t.ID, "dispatch: "+err.Error()); ferr != nil {
			logger.Error("could not fail task", "error", ferr)
		}
		return Result{}, fmt.Errorf("dispatch %s: %w", in.Tag, err)
	}

	callCtx := context.WithoutCancel(ctx)
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	payload, callErr := invoke(callCtx, r.Capability, req)
	metrics.ObserveProviderCall(label, time.Since(start))

	res := Result{Kind: in.Tag, TaskID: t.ID}
	if callErr != nil {
		msg := capability.Describe(callErr)
		final, err := d.reg.Fail(t.ID, msg)
		if err != nil {
			return Result{}, fmt.Errorf("dispatch %s: %w", in.Tag, err)
		}
		metrics.ObserveDispatch(label, metrics.OutcomeFailed)
		logger.Warn("capability call failed", "provider", r.Capability.Name(), "error", msg)
		res.Task, res.Failure = final, msg
		return res, nil
	}

	final, err := d.reg.Complete(t.ID, payload)
	if err != nil {
		return Result{}, fmt.Errorf("dispatch %s: %w", in.Tag, err)
	}
	metrics.ObserveDispatch(label, metrics.OutcomeCompleted)
	logger.Info("capability call completed", "provider", r.Capability.Name(), "elapsed", time.Since(start))
	res.Task, res.Payload, res.Succeeded = final, final.APIResponse, true
	return res, nil
}

// invoke calls p, folding panics, deadline expiry and unusable payloads into
// provider errors.
func invoke(ctx context.Context, p capability.Provider, req capability.Request) (payload json.RawMessage, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			payload, err = nil, capability.Unavailable(fmt.Sprintf("provider panic: %v", rec))
		}
	}()

	payload, err = p.Invoke(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, capability.ErrUnavailable) {
			return nil, capability.Unavailable("timeout")
		}
		return nil, err
	}
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || !json.Valid(payload) || string(payload) == "null" {
		return nil, capability.Unavailable("malformed response")
	}
	return payload, nil
}

func tagLabel(t intent.Tag) string {
	if t.Valid() {
		return string(t)
	}
	return "unknown"
}
