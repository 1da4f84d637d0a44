package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/GoCodeAlone/aura/conversation"
	"github.com/GoCodeAlone/aura/metrics"
	"github.com/GoCodeAlone/aura/provider"
)

// ErrClassifier is matched by every *ClassifierError.
var ErrClassifier = errors.New("classifier error")

// ClassifierError reports that the remote classifier was unreachable or
// returned something unusable.
type ClassifierError struct {
	Reason string
	Err    error
}

func (e *ClassifierError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classifier: %s: %v", e.Reason, e.Err)
	}
	return "classifier: " + e.Reason
}

func (e *ClassifierError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrClassifier) succeed.
func (e *ClassifierError) Is(target error) bool { return target == ErrClassifier }

const defaultHistoryLimit = 10

// DefaultSystemPrompt instructs the model to answer with one JSON object.
const DefaultSystemPrompt = `You are A.U.R.A, a Universal Reasoning Agent. You chat with the user and can
perform actions on their behalf.

For every user message respond with exactly one JSON object and nothing else:
  {"kind":"reply","text":"<your answer>"}                  for ordinary conversation
  {"kind":"image","prompt":"<image description>"}          when the user wants a picture drawn or generated
  {"kind":"action","action":"<tag>"}                       when the user wants one of these actions:

  food_booking         order food for delivery
  ticket_booking       book event or movie tickets
  fasterbook_food      order food through FasterBook
  fasterbook_movie     book a movie through FasterBook
  fasterbook_bookings  list the user's FasterBook bookings
  fasterbook_menu      show the FasterBook menu
  restaurant_order     place an order with a specific restaurant
  hotel_booking        book a hotel room
  flight_booking       book a flight
  ride_booking         book a ride or taxi

Be warm and concise in replies.`

// Classifier maps user text to a Classification using an LLM backend.
type Classifier struct {
	provider     provider.Provider
	systemPrompt string
	historyLimit int
	logger       *slog.Logger
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithHistoryLimit bounds how many prior messages are sent as context.
func WithHistoryLimit(n int) ClassifierOption {
	return func(c *Classifier) { c.historyLimit = n }
}

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(s string) ClassifierOption {
	return func(c *Classifier) {
		if s != "" {
			c.systemPrompt = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClassifierOption {
	return func(c *Classifier) { c.logger = l }
}

// NewClassifier creates a Classifier backed by p.
func NewClassifier(p provider.Provider, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		provider:     p,
		systemPrompt: DefaultSystemPrompt,
		historyLimit: defaultHistoryLimit,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type verdict struct {
	Kind   string `json:"kind"`
	Text   string `json:"text"`
	Prompt string `json:"prompt"`
	Action string `json:"action"`
}

// Classify sends text, with recent history as context, to the backend and
// decodes its verdict. All failures are *ClassifierError.
func (c *Classifier) Classify(ctx context.Context, text string, history []conversation.Message) (Classification, error) {
	msgs := c.buildMessages(text, history)

	resp, err := c.provider.Chat(ctx, msgs)
	if err != nil {
		return nil, c.fail(&ClassifierError{Reason: "provider call failed", Err: err})
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return nil, c.fail(&ClassifierError{Reason: "empty response"})
	}

	var v verdict
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &v); err != nil {
		return nil, c.fail(&ClassifierError{Reason: "malformed response", Err: err})
	}

	result, err := c.interpret(v, text)
	if err != nil {
		return nil, c.fail(err)
	}
	metrics.Classifications.WithLabelValues(kindLabel(result)).Inc()
	return result, nil
}

func (c *Classifier) interpret(v verdict, text string) (Classification, error) {
	switch strings.ToLower(strings.TrimSpace(v.Kind)) {
	case "reply":
		if strings.TrimSpace(v.Text) == "" {
			return nil, &ClassifierError{Reason: "reply without text"}
		}
		return PlainReply{Text: v.Text}, nil
	case "image":
		return ImageRequest{Prompt: firstNonEmpty(v.Prompt, text)}, nil
	case "action":
		tag := Tag(strings.ToLower(strings.TrimSpace(v.Action)))
		switch tag {
		case "":
			return nil, &ClassifierError{Reason: "action without tag"}
		case PlainReplyTag:
			if strings.TrimSpace(v.Text) == "" {
				return nil, &ClassifierError{Reason: "reply without text"}
			}
			return PlainReply{Text: v.Text}, nil
		case ImageGeneration:
			return ImageRequest{Prompt: firstNonEmpty(v.Prompt, text)}, nil
		}
		if !tag.Valid() {
			// Passed through so the dispatcher reports the contract mismatch.
			c.logger.Warn("classifier returned unknown action tag", "tag", string(tag))
		}
		return ActionRequest{Intent: Intent{Tag: tag, RawText: text}}, nil
	default:
		return nil, &ClassifierError{Reason: fmt.Sprintf("unknown kind %q", v.Kind)}
	}
}

func (c *Classifier) buildMessages(text string, history []conversation.Message) []provider.Message {
	if c.historyLimit >= 0 && len(history) > c.historyLimit {
		history = history[len(history)-c.historyLimit:]
	}
	msgs := make([]provider.Message, 0, len(history)+2)
	msgs = append(msgs, provider.System(c.systemPrompt))
	for _, m := range history {
		if m.Author == conversation.AuthorAssistant {
			msgs = append(msgs, provider.Assistant(m.Content))
		} else {
			msgs = append(msgs, provider.User(m.Content))
		}
	}
	return append(msgs, provider.User(text))
}

func (c *Classifier) fail(err error) error {
	metrics.Classifications.WithLabelValues("error").Inc()
	c.logger.Warn("classification failed", "error", err)
	return err
}

func kindLabel(c Classification) string {
	switch c.(type) {
	case PlainReply:
		return "reply"
	case ImageRequest:
		return "image"
	default:
		return "action"
	}
}

// extractJSON strips a markdown code fence or surrounding prose from s.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		lines := strings.Split(s, "\n")
		var body []string
		for _, line := range lines[1:] {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				break
			}
			body = append(body, line)
		}
		if len(body) > 0 {
			s = strings.TrimSpace(strings.Join(body, "\n"))
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start != -1 && end > start {
		return s[start : end+1]
	}
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
