// Package agent runs one conversational turn: classify the utterance, answer
// it or dispatch it, persist the reply, then propose follow-up tasks.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GoCodeAlone/aura/comms"
	"github.com/GoCodeAlone/aura/conversation"
	"github.com/GoCodeAlone/aura/dispatch"
	"github.com/GoCodeAlone/aura/intent"
	"github.com/GoCodeAlone/aura/task"
)

// ErrEmptyInput is returned when the user text is blank.
var ErrEmptyInput = errors.New("empty input")

// Status represents the current state of an agent.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusWorking Status = "working"
)

// TurnKind names how a turn was answered.
type TurnKind string

const (
	KindReply  TurnKind = "reply"
	KindImage  TurnKind = "image"
	KindAction TurnKind = "action"
	KindError  TurnKind = "error"
)

// Info provides read-only metadata about an agent.
type Info struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	ActiveTurns int64     `json:"active_turns"`
	Turns       int64     `json:"turns"`
	StartedAt   time.Time `json:"started_at"`
}

// Classifier maps an utterance to a Classification.
type Classifier interface {
	Classify(ctx context.Context, text string, history []conversation.Message) (intent.Classification, error)
}

// Dispatcher routes an intent to its capability.
type Dispatcher interface {
	Dispatch(ctx context.Context, in intent.Intent, opts ...dispatch.DispatchOption) (dispatch.Result, error)
}

// Suggester proposes follow-up tasks for an exchange.
type Suggester interface {
	Propose(ctx context.Context, conversationID, userText, reply string) []task.Task
}

// Config wires an Agent's collaborators. Suggest and Bus may be nil.
type Config struct {
	Name          string
	Classifier    Classifier
	Dispatcher    Dispatcher
	Suggest       Suggester
	Conversations conversation.Store
	Bus           comms.Bus
	Logger        *slog.Logger

	// SuggestAfterFailure keeps suggestions on for turns whose action failed.
	// Turns that could not be classified never get suggestions.
	SuggestAfterFailure bool
}

// Turn is the outcome of HandleTurn.
type Turn struct {
	Kind        TurnKind              `json:"kind"`
	Intent      intent.Tag            `json:"intent,omitempty"`
	UserMessage *conversation.Message `json:"user_message"`
	Reply       *conversation.Message `json:"reply"`
	Task        *task.Task            `json:"task,omitempty"`
	Payload     json.RawMessage       `json:"payload,omitempty"`
	Suggestions []task.Task           `json:"suggestions"`
}

// Agent handles conversational turns. Safe for concurrent use.
type Agent struct {
	cfg       Config
	logger    *slog.Logger
	startedAt time.Time

	active atomic.Int64
	turns  atomic.Int64
	mu     sync.Mutex // serializes turns within a conversation
	convMu map[string]*sync.Mutex
}

// New creates an Agent from cfg.
func New(cfg Config) (*Agent, error) {
	if cfg.Classifier == nil {
		return nil, errors.New("agent: classifier is required")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("agent: dispatcher is required")
	}
	if cfg.Conversations == nil {
		return nil, errors.New("agent: conversation store is required")
	}
	if cfg.Name == "" {
		cfg.Name = "A.U.R.A"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		cfg:       cfg,
		logger:    logger.With("component", "agent"),
		startedAt: time.Now(),
		convMu:    make(map[string]*sync.Mutex),
	}, nil
}

// Info returns the agent's current metadata.
func (a *Agent) Info() Info {
	active := a.active.Load()
	st := StatusIdle
	if active > 0 {
		st = StatusWorking
	}
	return Info{
		Name:        a.cfg.Name,
		Status:      st,
		ActiveTurns: active,
		Turns:       a.turns.Load(),
		StartedAt:   a.startedAt,
	}
}

func (a *Agent) lock(conversationID string) func() {
	a.mu.Lock()
	m, ok := a.convMu[conversationID]
	if !ok {
		m = &sync.Mutex{}
		a.convMu[conversationID] = m
	}
	a.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// HandleTurn processes one user utterance in a conversation. Turns within a
// conversation are handled one at a time.
//
// Errors are returned only for input and persistence problems. Classifier,
// routing and capability failures produce an apology reply instead.
func (a *Agent) HandleTurn(ctx context.Context, conversationID, text string) (*Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}
	unlock := a.lock(conversationID)
	defer unlock()

	a.active.Add(1)
	defer a.active.Add(-1)
	a.turns.Add(1)

	logger := a.logger.With("conversation_id", conversationID)
	store := a.cfg.Conversations

	history, err := store.GetMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	userMsg, err := store.AddMessage(ctx, conversationID, conversation.AuthorUser, text, nil)
	if err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}
	a.publish(ctx, userMsg)

	turn := &Turn{UserMessage: userMsg, Suggestions: []task.Task{}}
	out := a.answer(ctx, logger, conversationID, text, history, turn)

	reply, err := store.AddMessage(ctx, conversationID, conversation.AuthorAssistant, out.content, out.attachment, out.opts...)
	if err != nil {
		return nil, fmt.Errorf("persist reply: %w", err)
	}
	turn.Reply = reply
	a.publish(ctx, reply)

	if a.cfg.Suggest != nil && turn.Kind != KindError && (!out.failed || a.cfg.SuggestAfterFailure) {
		turn.Suggestions = a.cfg.Suggest.Propose(ctx, conversationID, text, reply.Content)
	}
	logger.Info("turn handled", "kind", turn.Kind, "intent", turn.Intent, "suggestions", len(turn.Suggestions))
	return turn, nil
}

type answer struct {
	content    string
	attachment *conversation.Attachment
	opts       []conversation.MessageOption
	failed     bool
}

func (a *Agent) answer(ctx context.Context, logger *slog.Logger, conversationID, text string, history []conversation.Message, turn *Turn) answer {
	c, err := a.cfg.Classifier.Classify(ctx, text, history)
	if err != nil {
		logger.Error("classification failed", "error", err)
		turn.Kind = KindError
		return answer{content: connectionApology, failed: true}
	}

	switch v := c.(type) {
	case intent.PlainReply:
		turn.Kind = KindReply
		return answer{content: v.Text}

	case intent.ImageRequest:
		turn.Kind, turn.Intent = KindImage, intent.ImageGeneration
		return a.action(ctx, logger, conversationID, intent.Intent{Tag: intent.ImageGeneration, RawText: v.Prompt}, turn)

	case intent.ActionRequest:
		turn.Kind, turn.Intent = KindAction, v.Intent.Tag
		if v.Intent.RawText == "" {
			v.Intent.RawText = text
		}
		return a.action(ctx, logger, conversationID, v.Intent, turn)
	}

	logger.Error("unknown classification", "type", fmt.Sprintf("%T", c))
	turn.Kind = KindError
	return answer{content: connectionApology, failed: true}
}

func (a *Agent) action(ctx context.Context, logger *slog.Logger, conversationID string, in intent.Intent, turn *Turn) answer {
	res, err := a.cfg.Dispatcher.Dispatch(ctx, in, dispatch.WithConversation(conversationID))
	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrUnroutable), errors.Is(err, dispatch.ErrIncompleteRequest):
			logger.Warn("intent not dispatched", "intent", in.Tag, "error", err)
		default:
			logger.Error("dispatch failed", "intent", in.Tag, "error", err)
		}
		return answer{content: retryReply, failed: true, opts: []conversation.MessageOption{conversation.WithAction(string(in.Tag))}}
	}

	t := res.Task
	turn.Task = &t
	opts := []conversation.MessageOption{
		conversation.WithAction(string(in.Tag)),
		conversation.WithTask(res.TaskID),
	}
	if !res.Succeeded {
		return answer{content: failureReply(in.Tag), opts: opts, failed: true}
	}
	turn.Payload = res.Payload

	if in.Tag == intent.ImageGeneration {
		att := imageAttachment(res.Payload, in.RawText)
		return answer{content: imageReply(att.ImagePrompt), attachment: att, opts: opts}
	}
	return answer{content: successReply(in.Tag), opts: opts}
}

func (a *Agent) publish(ctx context.Context, m *conversation.Message) {
	if a.cfg.Bus == nil {
		return
	}
	data, err := json.Marshal(m)
	if err != nil {
		a.logger.Error("encode message event", "error", err)
		return
	}
	err = a.cfg.Bus.Publish(ctx, &comms.Message{
		Type:     comms.TypeMessage,
		Topic:    comms.TopicMessages,
		From:     string(m.Author),
		Subject:  m.ID,
		Payload:  data,
		Metadata: map[string]string{"conversation_id": m.ConversationID},
	})
	if err != nil {
		a.logger.Warn("publish message event", "message_id", m.ID, "error", err)
	}
}
