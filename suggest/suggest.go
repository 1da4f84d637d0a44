// Package suggest derives advisory follow-up tasks from a conversational
// exchange.
package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/GoCodeAlone/aura/metrics"
	"github.com/GoCodeAlone/aura/provider"
	"github.com/GoCodeAlone/aura/task"
)

// Description is attached to every suggested task.
const Description = "Generated from your conversation with A.U.R.A"

const (
	defaultMax       = 3
	defaultMaxLength = 80
)

const systemPrompt = `You turn a chat exchange into short follow-up tasks for the user's task list.
Reply with a JSON array of at most %d strings, each a task title of a few words.
Reply with [] when nothing is worth tracking.`

var reBullet = regexp.MustCompile(`^\s*(?:[-*\x{2022}]|\d+[.)])\s*`)

// Engine generates suggestions. Safe for concurrent use.
type Engine struct {
	provider  provider.Provider
	reg       *task.Registry
	max       int
	maxLength int
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMax caps the number of suggestions per exchange.
func WithMax(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.max = n
		}
	}
}

// WithMaxLength caps each suggestion's length in runes.
func WithMaxLength(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxLength = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine that asks p for suggestions and records them in reg.
func New(p provider.Provider, reg *task.Registry, opts ...Option) *Engine {
	e := &Engine{
		provider:  p,
		reg:       reg,
		max:       defaultMax,
		maxLength: defaultMaxLength,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Suggest returns up to the configured number of task titles for the
// exchange. Any failure yields an empty slice.
func (e *Engine) Suggest(ctx context.Context, userText, reply string) []string {
	exchange := fmt.Sprintf("User: %s\nAssistant: %s", strings.TrimSpace(userText), strings.TrimSpace(reply))
	resp, err := e.provider.Chat(ctx, []provider.Message{
		provider.System(fmt.Sprintf(systemPrompt, e.max)),
		provider.User(exchange),
	})
	if err != nil {
		e.logger.Warn("suggestion generation failed", "error", err)
		return []string{}
	}
	if resp == nil {
		return []string{}
	}
	return e.normalize(parse(resp.Content))
}

// Propose creates one pending suggestion task per title from Suggest.
// The tasks are never transitioned.
func (e *Engine) Propose(ctx context.Context, conversationID, userText, reply string) []task.Task {
	titles := e.Suggest(ctx, userText, reply)
	out := make([]task.Task, 0, len(titles))
	for _, title := range titles {
		t, err := e.reg.Create(task.TypeGeneric, title, Description,
			task.WithOrigin(task.OriginSuggestion), task.WithConversation(conversationID))
		if err != nil {
			e.logger.Warn("could not record suggestion", "title", title, "error", err)
			continue
		}
		metrics.Suggestions.Inc()
		out = append(out, t)
	}
	return out
}

// parse accepts a JSON array of strings, optionally fenced or surrounded by
// prose, and falls back to one suggestion per bulleted or numbered line.
// Unprefixed prose yields nothing.
func parse(content string) []string {
	content = strings.TrimSpace(content)
	if start, end := strings.Index(content, "["), strings.LastIndex(content, "]"); start != -1 && end > start {
		var items []string
		if err := json.Unmarshal([]byte(content[start:end+1]), &items); err == nil {
			return items
		}
	}
	var items []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !reBullet.MatchString(line) {
			continue
		}
		items = append(items, reBullet.ReplaceAllString(line, ""))
	}
	return items
}

func (e *Engine) normalize(items []string) []string {
	out := make([]string, 0, e.max)
	seen := make(map[string]bool)
	for _, s := range items {
		s = strings.Trim(strings.TrimSpace(s), `"'`)
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if r := []rune(s); len(r) > e.maxLength {
			s = strings.TrimSpace(string(r[:e.maxLength]))
		}
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
		if len(out) == e.max {
			break
		}
	}
	return out
}
