package task

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/aura/metrics"
)

var (
	// ErrInvalidTransition is matched by every *TransitionError.
	ErrInvalidTransition = errors.New("invalid task transition")

	// ErrEmptyPayload is returned by Complete when the payload is missing or not JSON.
	ErrEmptyPayload = errors.New("task payload must be a non-empty JSON value")
)

const unknownFailure = "unknown error"

// TransitionError reports a refused lifecycle transition.
type TransitionError struct {
	ID   string
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("task %s: cannot transition %s -> %s", e.ID, e.From, e.To)
}

// Is makes errors.Is(err, ErrInvalidTransition) succeed.
func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// Registry is the lifecycle state machine for tasks. All task mutation goes
// through Create, MarkProcessing, Complete and Fail; transitions are serialized
// so notifications reach subscribers in the order they happened.
type Registry struct {
	mu      sync.Mutex
	store   Store
	now     func() time.Time
	newID   func() (string, error)
	logger  *slog.Logger
	subs    map[uint64]*Subscription
	nextSub uint64
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator overrides task ID allocation.
func WithIDGenerator(fn func() (string, error)) RegistryOption {
	return func(r *Registry) { r.newID = fn }
}

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates a Registry backed by store. A nil store selects a MemoryStore.
func NewRegistry(store Store, opts ...RegistryOption) *Registry {
	if store == nil {
		store = NewMemoryStore()
	}
	r := &Registry{
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  newID,
		logger: slog.Default(),
		subs:   make(map[uint64]*Subscription),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// newID returns a time-ordered UUIDv7.
func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// CreateOption sets optional fields on a task being created.
type CreateOption func(*Task)

// WithConversation links the task to a conversation.
func WithConversation(id string) CreateOption {
	return func(t *Task) { t.ConversationID = id }
}

// WithAction records the intent tag that produced the task.
func WithAction(tag string) CreateOption {
	return func(t *Task) { t.Action = tag }
}

// WithOrigin marks what produced the task. Defaults to OriginAction.
func WithOrigin(o Origin) CreateOption {
	return func(t *Task) { t.Origin = o }
}

// Create inserts a new pending task and returns a snapshot of it.
func (r *Registry) Create(typ Type, title, description string, opts ...CreateOption) (Task, error) {
	if strings.TrimSpace(title) == "" {
		return Task{}, errors.New("create task: title is required")
	}
	if typ == "" {
		typ = TypeGeneric
	}
	t := &Task{
		Type:        typ,
		Status:      StatusPending,
		Title:       title,
		Description: description,
		Origin:      OriginAction,
	}
	for _, opt := range opts {
		opt(t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := r.newID()
	if err != nil {
		return Task{}, fmt.Errorf("generate id: %w", err)
	}
	t.ID = id
	now := r.now()
	t.CreatedAt = now
	t.UpdatedAt = now

	if err := r.store.Insert(t); err != nil {
		return Task{}, err
	}
	metrics.ObserveTransition(string(t.Type), string(t.Status))
	r.logger.Debug("task created", slog.String("id", t.ID), slog.String("task_type", string(t.Type)))
	r.publishLocked(t)
	return t.Clone(), nil
}

// MarkProcessing moves a pending task to processing.
func (r *Registry) MarkProcessing(id string) (Task, error) {
	return r.transition(id, StatusProcessing, func(t *Task, now time.Time) {
		t.StartedAt = &now
	})
}

// Complete moves a pending or processing task to completed and attaches payload.
func (r *Registry) Complete(id string, payload json.RawMessage) (Task, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || !json.Valid(trimmed) {
		return Task{}, fmt.Errorf("complete task %s: %w", id, ErrEmptyPayload)
	}
	body := append(json.RawMessage(nil), trimmed...)
	return r.transition(id, StatusCompleted, func(t *Task, now time.Time) {
		t.APIResponse = body
		t.CompletedAt = &now
	})
}

// Fail moves a pending or processing task to failed and attaches message.
func (r *Registry) Fail(id, message string) (Task, error) {
	if strings.TrimSpace(message) == "" {
		message = unknownFailure
	}
	return r.transition(id, StatusFailed, func(t *Task, now time.Time) {
		t.ErrorMessage = &message
		t.CompletedAt = &now
	})
}

// Get returns a snapshot of the task with the given ID.
func (r *Registry) Get(id string) (Task, error) {
	t, err := r.store.Get(id)
	if err != nil {
		return Task{}, err
	}
	return *t, nil
}

// List returns tasks matching filter, newest first.
func (r *Registry) List(filter Filter) ([]Task, error) {
	tasks, err := r.store.List(filter)
	if err != nil {
		return nil, err
	}
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, *t)
	}
	return out, nil
}

// Close detaches every subscriber.
func (r *Registry) Close() {
	r.mu.Lock()
	subs := make([]*Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		subs = append(subs, s)
	}
	r.mu.Unlock()
	for _, s := range subs {
		s.Unsubscribe()
	}
}

func allowed(from, to Status) bool {
	switch to {
	case StatusProcessing:
		return from == StatusPending
	case StatusCompleted, StatusFailed:
		return from == StatusPending || from == StatusProcessing
	}
	return false
}

func (r *Registry) transition(id string, to Status, apply func(t *Task, now time.Time)) (Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.store.Get(id)
	if err != nil {
		return Task{}, err
	}
	if !allowed(t.Status, to) {
		metrics.RejectedTransitions.Inc()
		r.logger.Warn("task transition rejected",
			slog.String("id", id),
			slog.String("from", string(t.Status)),
			slog.String("to", string(to)),
		)
		return Task{}, &TransitionError{ID: id, From: t.Status, To: to}
	}

	now := r.now()
	t.Status = to
	t.UpdatedAt = now
	apply(t, now)

	if err := r.store.Update(t); err != nil {
		return Task{}, err
	}
	metrics.ObserveTransition(string(t.Type), string(t.Status))
	r.logger.Debug("task transition", slog.String("id", id), slog.String("status", string(to)))
	r.publishLocked(t)
	return t.Clone(), nil
}

// publishLocked queues a snapshot for every subscriber. Caller holds r.mu.
func (r *Registry) publishLocked(t *Task) {
	for _, s := range r.subs {
		s.enqueue(t.Clone())
	}
}

// Subscribe registers fn to receive a snapshot after every creation and
// transition. Each subscriber has its own delivery goroutine and unbounded
// queue, so a slow listener never blocks the registry.
func (r *Registry) Subscribe(fn func(Task)) *Subscription {
	s := &Subscription{
		reg:    r,
		fn:     fn,
		done:   make(chan struct{}),
		logger: r.logger,
	}
	s.cond = sync.NewCond(&s.mu)

	r.mu.Lock()
	r.nextSub++
	s.id = r.nextSub
	r.subs[s.id] = s
	r.mu.Unlock()

	go s.run()
	return s
}

// Subscription is a live registration returned by Registry.Subscribe.
type Subscription struct {
	id     uint64
	reg    *Registry
	fn     func(Task)
	logger *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Task
	closed bool

	once sync.Once
	done chan struct{}
}

// Unsubscribe detaches the listener. When it returns the listener is not
// running and will not be invoked again. It must not be called from inside
// the listener itself.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.reg.mu.Lock()
		delete(s.reg.subs, s.id)
		s.reg.mu.Unlock()

		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	<-s.done
}

func (s *Subscription) enqueue(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, t)
	s.cond.Signal()
}

func (s *Subscription) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		t := s.queue[0]
		s.queue[0] = Task{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.deliver(t)
	}
}

func (s *Subscription) deliver(t Task) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("task subscriber panicked", slog.String("id", t.ID), slog.Any("panic", p))
		}
	}()
	s.fn(t)
}
