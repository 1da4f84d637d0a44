package suggest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/aura/provider/mock"
	"github.com/GoCodeAlone/aura/task"
)

func TestSuggest_JSONArray(t *testing.T) {
	e := New(mock.New(`["Pack passport", "Book airport transfer"]`), task.NewRegistry(nil))
	assert.Equal(t, []string{"Pack passport", "Book airport transfer"},
		e.Suggest(context.Background(), "book a flight", "done"))
}

func TestSuggest_FencedAndCapped(t *testing.T) {
	content := "Here you go:\n```json\n[\"a\", \"b\", \"A\", \"c\", \"d\"]\n```"
	e := New(mock.New(content), task.NewRegistry(nil))
	assert.Equal(t, []string{"a", "b", "c"}, e.Suggest(context.Background(), "u", "r"))

	e = New(mock.New(content), task.NewRegistry(nil), WithMax(5))
	assert.Equal(t, []string{"a", "b", "c", "d"}, e.Suggest(context.Background(), "u", "r"))
}

func TestSuggest_BulletFallback(t *testing.T) {
	e := New(mock.New("- Call the hotel\n* Check weather\n1. Print tickets\n\n"), task.NewRegistry(nil))
	assert.Equal(t, []string{"Call the hotel", "Check weather", "Print tickets"},
		e.Suggest(context.Background(), "u", "r"))
}

func TestSuggest_ProseIsIgnored(t *testing.T) {
	e := New(mock.New("There is nothing worth tracking from this exchange."), task.NewRegistry(nil))
	assert.Empty(t, e.Suggest(context.Background(), "thanks", "You're welcome"))

	e = New(mock.New("Sure, here are some ideas:\n- Check in online\nHope that helps!"), task.NewRegistry(nil))
	assert.Equal(t, []string{"Check in online"}, e.Suggest(context.Background(), "u", "r"))
}

func TestSuggest_TruncatesLongTitles(t *testing.T) {
	long := strings.Repeat("x", 200)
	e := New(mock.New(`["`+long+`"]`), task.NewRegistry(nil), WithMaxLength(10))
	got := e.Suggest(context.Background(), "u", "r")
	require.Len(t, got, 1)
	assert.Equal(t, strings.Repeat("x", 10), got[0])
}

func TestSuggest_EmptyOnFailure(t *testing.T) {
	e := New(mock.NewScripted(mock.Reply{Err: errors.New("unreachable")}), task.NewRegistry(nil))
	got := e.Suggest(context.Background(), "u", "r")
	assert.NotNil(t, got)
	assert.Empty(t, got)

	e = New(mock.New(`[]`), task.NewRegistry(nil))
	assert.Empty(t, e.Suggest(context.Background(), "u", "r"))
}

func TestSuggest_SendsExchange(t *testing.T) {
	p := mock.New(`[]`)
	New(p, task.NewRegistry(nil)).Suggest(context.Background(), "book a hotel", "Booked!")
	calls := p.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0][1].Content, "User: book a hotel")
	assert.Contains(t, calls[0][1].Content, "Assistant: Booked!")
}

func TestPropose_CreatesPendingSuggestionTasks(t *testing.T) {
	reg := task.NewRegistry(nil)
	defer reg.Close()
	e := New(mock.New(`["Pack passport", "Book airport transfer"]`), reg)

	tasks := e.Propose(context.Background(), "conv-1", "book a flight", "done")
	require.Len(t, tasks, 2)
	for _, tk := range tasks {
		assert.Equal(t, task.StatusPending, tk.Status)
		assert.Equal(t, task.TypeGeneric, tk.Type)
		assert.Equal(t, task.OriginSuggestion, tk.Origin)
		assert.Equal(t, Description, tk.Description)
		assert.Equal(t, "conv-1", tk.ConversationID)
	}

	origin := task.OriginSuggestion
	stored, err := reg.List(task.Filter{Origin: origin})
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestPropose_NothingOnFailure(t *testing.T) {
	reg := task.NewRegistry(nil)
	defer reg.Close()
	e := New(mock.NewScripted(mock.Reply{Err: errors.New("down")}), reg)

	assert.Empty(t, e.Propose(context.Background(), "c", "u", "r"))
	all, err := reg.List(task.Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}
