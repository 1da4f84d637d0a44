package agent

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/aura/capability"
	capmock "github.com/GoCodeAlone/aura/capability/mock"
	"github.com/GoCodeAlone/aura/comms"
	"github.com/GoCodeAlone/aura/conversation"
	"github.com/GoCodeAlone/aura/dispatch"
	"github.com/GoCodeAlone/aura/intent"
	provmock "github.com/GoCodeAlone/aura/provider/mock"
	"github.com/GoCodeAlone/aura/suggest"
	"github.com/GoCodeAlone/aura/task"
)

type harness struct {
	agent *Agent
	reg   *task.Registry
	store *conversation.SQLiteStore
	bus   *comms.InMemoryBus
	convo string
}

type harnessOpts struct {
	classifier  *provmock.MockProvider
	suggestions *provmock.MockProvider
	capOpts     []capmock.Option
	image       *provmock.MockProvider
	afterFail   bool
}

func newHarness(t *testing.T, o harnessOpts) *harness {
	t.Helper()
	reg := task.NewRegistry(nil)
	t.Cleanup(reg.Close)

	store, err := conversation.NewSQLiteStore(filepath.Join(t.TempDir(), "aura.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	conv, err := store.CreateConversation(context.Background(), "test")
	require.NoError(t, err)

	caps := capability.NewRegistry()
	_, err = capmock.Register(caps, o.capOpts...)
	require.NoError(t, err)
	if o.image != nil {
		require.NoError(t, caps.Register(capability.DomainImage, capability.NewImageProvider(o.image)))
	}
	d := dispatch.New(reg, dispatch.WithProviderTimeout(time.Second))
	require.NoError(t, d.RegisterStandard(caps))

	bus := comms.NewInMemoryBus()
	cfg := Config{
		Classifier:          intent.NewClassifier(o.classifier),
		Dispatcher:          d,
		Conversations:       store,
		Bus:                 bus,
		SuggestAfterFailure: o.afterFail,
	}
	if o.suggestions != nil {
		cfg.Suggest = suggest.New(o.suggestions, reg)
	}
	a, err := New(cfg)
	require.NoError(t, err)
	return &harness{agent: a, reg: reg, store: store, bus: bus, convo: conv.ID}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestHandleTurn_EmptyInput(t *testing.T) {
	h := newHarness(t, harnessOpts{classifier: provmock.New()})
	_, err := h.agent.HandleTurn(context.Background(), h.convo, "   ")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestHandleTurn_PlainReply(t *testing.T) {
	h := newHarness(t, harnessOpts{
		classifier:  provmock.New(`{"kind":"reply","text":"Hello! How can I help?"}`),
		suggestions: provmock.New(`["Plan the week"]`),
	})

	turn, err := h.agent.HandleTurn(context.Background(), h.convo, "hi there")
	require.NoError(t, err)
	assert.Equal(t, KindReply, turn.Kind)
	assert.Equal(t, "Hello! How can I help?", turn.Reply.Content)
	assert.Nil(t, turn.Task)
	require.Len(t, turn.Suggestions, 1)
	assert.Equal(t, "Plan the week", turn.Suggestions[0].Title)

	msgs, err := h.store.GetMessages(context.Background(), h.convo)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, conversation.AuthorUser, msgs[0].Author)
	assert.Equal(t, "hi there", msgs[0].Content)
	assert.Equal(t, conversation.AuthorAssistant, msgs[1].Author)

	events, _ := h.bus.History(comms.TopicMessages, 0)
	require.Len(t, events, 2)
	assert.Equal(t, h.convo, events[1].Metadata["conversation_id"])
}

func TestHandleTurn_HotelBooking(t *testing.T) {
	h := newHarness(t, harnessOpts{
		classifier: provmock.New(`{"kind":"action","action":"hotel_booking"}`),
	})

	turn, err := h.agent.HandleTurn(context.Background(), h.convo, "book a hotel in paris for 2 nights")
	require.NoError(t, err)
	assert.Equal(t, KindAction, turn.Kind)
	assert.Equal(t, intent.HotelBooking, turn.Intent)
	assert.Equal(t, "I've booked your hotel! Here are the details:", turn.Reply.Content)
	require.NotNil(t, turn.Task)
	assert.Equal(t, task.StatusCompleted, turn.Task.Status)
	assert.Equal(t, turn.Task.ID, turn.Reply.TaskID)
	assert.Equal(t, string(intent.HotelBooking), turn.Reply.Action)

	var hb capability.HotelBooking
	require.NoError(t, json.Unmarshal(turn.Payload, &hb))
	assert.Equal(t, "Paris", hb.City)
}

func TestHandleTurn_ActionFailure(t *testing.T) {
	h := newHarness(t, harnessOpts{
		classifier:  provmock.New(`{"kind":"action","action":"flight_booking"}`),
		suggestions: provmock.New(`["Check other airlines"]`),
		capOpts:     []capmock.Option{capmock.WithFailure(capability.Unavailable("timeout"))},
	})

	turn, err := h.agent.HandleTurn(context.Background(), h.convo, "fly from berlin to rome")
	require.NoError(t, err)
	assert.Equal(t, "I apologize, but I encountered an issue booking your flight. Please try again.", turn.Reply.Content)
	require.NotNil(t, turn.Task)
	assert.Equal(t, task.StatusFailed, turn.Task.Status)
	require.NotNil(t, turn.Task.ErrorMessage)
	assert.Contains(t, *turn.Task.ErrorMessage, "timeout")
	assert.Empty(t, turn.Suggestions, "suggestions suppressed after failure")
}

func TestHandleTurn_SuggestAfterFailure(t *testing.T) {
	h := newHarness(t, harnessOpts{
		classifier:  provmock.New(`{"kind":"action","action":"ride_booking"}`),
		suggestions: provmock.New(`["Call a taxi"]`),
		capOpts:     []capmock.Option{capmock.WithFailure(capability.Rejected("no drivers"))},
		afterFail:   true,
	})

	turn, err := h.agent.HandleTurn(context.Background(), h.convo, "I need a ride to the airport")
	require.NoError(t, err)
	assert.Equal(t, "I apologize, but I encountered an issue booking your ride. Please try again.", turn.Reply.Content)
	require.Len(t, turn.Suggestions, 1)
}

func TestHandleTurn_ClassifierError(t *testing.T) {
	h := newHarness(t, harnessOpts{
		classifier:  provmock.NewScripted(provmock.Reply{Err: errors.New("connection reset")}),
		suggestions: provmock.New(`["Retry later"]`),
		afterFail:   true,
	})

	turn, err := h.agent.HandleTurn(context.Background(), h.convo, "book a hotel in paris")
	require.NoError(t, err)
	assert.Equal(t, KindError, turn.Kind)
	assert.Equal(t, connectionApology, turn.Reply.Content)
	assert.Nil(t, turn.Task)
	assert.Empty(t, turn.Suggestions)

	tasks, err := h.reg.List(task.Filter{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestHandleTurn_UnroutableAndIncomplete(t *testing.T) {
	for name, cls := range map[string]string{
		"unknown tag":  `{"kind":"action","action":"spaceship_booking"}`,
		"missing city": `{"kind":"action","action":"hotel_booking"}`,
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, harnessOpts{classifier: provmock.New(cls)})
			turn, err := h.agent.HandleTurn(context.Background(), h.convo, "book me one")
			require.NoError(t, err)
			assert.Equal(t, retryReply, turn.Reply.Content)
			assert.Nil(t, turn.Task)

			tasks, err := h.reg.List(task.Filter{})
			require.NoError(t, err)
			assert.Empty(t, tasks)
		})
	}
}

func TestHandleTurn_Image(t *testing.T) {
	h := newHarness(t, harnessOpts{
		classifier: provmock.New(`{"kind":"image","prompt":"a red fox in the snow"}`),
		image:      provmock.New(),
	})

	turn, err := h.agent.HandleTurn(context.Background(), h.convo, "draw me a fox")
	require.NoError(t, err)
	assert.Equal(t, KindImage, turn.Kind)
	assert.Equal(t, `I've generated an image based on your request: "a red fox in the snow"`, turn.Reply.Content)
	require.NotNil(t, turn.Reply.Attachment)
	assert.Contains(t, turn.Reply.Attachment.ImageURL, "https://images.invalid/mock")
	assert.Equal(t, "a red fox in the snow", turn.Reply.Attachment.ImagePrompt)

	msgs, err := h.store.GetMessages(context.Background(), h.convo)
	require.NoError(t, err)
	require.NotNil(t, msgs[1].Attachment)
	assert.Equal(t, turn.Reply.Attachment.ImageURL, msgs[1].Attachment.ImageURL)
}

func TestHandleTurn_ImageFailure(t *testing.T) {
	img := provmock.New()
	img.ImageErr = errors.New("quota exceeded")
	h := newHarness(t, harnessOpts{
		classifier: provmock.New(`{"kind":"image","prompt":"a castle"}`),
		image:      img,
	})

	turn, err := h.agent.HandleTurn(context.Background(), h.convo, "draw a castle")
	require.NoError(t, err)
	assert.Equal(t, imageFailure, turn.Reply.Content)
	require.NotNil(t, turn.Task)
	assert.Equal(t, task.StatusFailed, turn.Task.Status)
}

func TestHandleTurn_UnknownConversation(t *testing.T) {
	h := newHarness(t, harnessOpts{classifier: provmock.New(`{"kind":"reply","text":"hi"}`)})
	_, err := h.agent.HandleTurn(context.Background(), "missing", "hello")
	assert.ErrorIs(t, err, conversation.ErrNotFound)
}

func TestHandleTurn_HistoryPassedToClassifier(t *testing.T) {
	cls := provmock.New(`{"kind":"reply","text":"first"}`, `{"kind":"reply","text":"second"}`)
	h := newHarness(t, harnessOpts{classifier: cls})

	_, err := h.agent.HandleTurn(context.Background(), h.convo, "one")
	require.NoError(t, err)
	_, err = h.agent.HandleTurn(context.Background(), h.convo, "two")
	require.NoError(t, err)

	calls := cls.Calls()
	require.Len(t, calls, 2)
	var contents []string
	for _, m := range calls[1] {
		contents = append(contents, m.Content)
	}
	assert.Contains(t, contents, "one")
	assert.Contains(t, contents, "first")
	assert.Equal(t, int64(2), h.agent.Info().Turns)
	assert.Equal(t, StatusIdle, h.agent.Info().Status)
}

func TestHandleTurn_ConcurrentConversations(t *testing.T) {
	h := newHarness(t, harnessOpts{classifier: provmock.New(`{"kind":"action","action":"fasterbook_menu"}`)})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.agent.HandleTurn(context.Background(), h.convo, "show the FasterBook menu")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	msgs, err := h.store.GetMessages(context.Background(), h.convo)
	require.NoError(t, err)
	require.Len(t, msgs, 10)
	for i := 0; i < len(msgs); i += 2 {
		assert.Equal(t, conversation.AuthorUser, msgs[i].Author)
		assert.Equal(t, conversation.AuthorAssistant, msgs[i+1].Author)
	}
}

func TestReplies(t *testing.T) {
	for _, tag := range intent.ActionTags() {
		if tag == intent.ImageGeneration {
			continue
		}
		assert.NotEqual(t, "Done! Here are the details:", successReply(tag), tag)
		assert.Contains(t, failureReply(tag), "Please try again.", tag)
	}
	assert.Equal(t, "I apologize, but I encountered an issue booking your hotel. Please try again.",
		failureReply(intent.HotelBooking))
	assert.Equal(t, imageFailure, failureReply(intent.ImageGeneration))
}
