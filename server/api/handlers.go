package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/GoCodeAlone/aura/agent"
	"github.com/GoCodeAlone/aura/comms"
	"github.com/GoCodeAlone/aura/conversation"
	"github.com/GoCodeAlone/aura/task"
)

const maxBodyBytes = 1 << 20

// Handlers bundles all REST API handler dependencies.
type Handlers struct {
	Agent         TurnHandler
	Conversations conversation.Store
	Tasks         TaskReader
	Bus           comms.Bus
	Logger        *slog.Logger
	Version       string
	StartAt       time.Time
}

// RegisterRoutes registers the protected API routes on r.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Get("/api/agent", h.agentInfo)

	r.Route("/api/conversations", func(r chi.Router) {
		r.Get("/", h.listConversations)
		r.Post("/", h.createConversation)
		r.Get("/{id}", h.getConversation)
		r.Patch("/{id}", h.renameConversation)
		r.Delete("/{id}", h.deleteConversation)
		r.Get("/{id}/messages", h.listConversationMessages)
		r.Post("/{id}/messages", h.postMessage)
	})

	r.Get("/api/tasks", h.listTasks)
	r.Get("/api/tasks/{id}", h.getTask)

	r.Get("/api/messages", h.listMessages)
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *Handlers) internal(w http.ResponseWriter, op string, err error) {
	if h.Logger != nil {
		h.Logger.Error(op, slog.Any("err", err))
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// --- Agent ---

func (h *Handlers) agentInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Agent.Info())
}

// --- Conversation handlers ---

type conversationRequest struct {
	Title string `json:"title"`
}

func (h *Handlers) listConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.Conversations.ListConversations(r.Context())
	if err != nil {
		h.internal(w, "list conversations", err)
		return
	}
	if convs == nil {
		convs = []conversation.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

func (h *Handlers) createConversation(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "New conversation"
	}
	c, err := h.Conversations.CreateConversation(r.Context(), title)
	if err != nil {
		h.internal(w, "create conversation", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handlers) getConversation(w http.ResponseWriter, r *http.Request) {
	c, err := h.Conversations.GetConversation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.conversationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handlers) renameConversation(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.Conversations.RenameConversation(r.Context(), id, strings.TrimSpace(req.Title)); err != nil {
		h.conversationError(w, err)
		return
	}
	c, err := h.Conversations.GetConversation(r.Context(), id)
	if err != nil {
		h.conversationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handlers) deleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.Conversations.DeleteConversation(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.conversationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) listConversationMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Conversations.GetConversation(r.Context(), id); err != nil {
		h.conversationError(w, err)
		return
	}
	msgs, err := h.Conversations.GetMessages(r.Context(), id)
	if err != nil {
		h.internal(w, "get messages", err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

type messageRequest struct {
	Content string `json:"content"`
}

func (h *Handlers) postMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !decode(w, r, &req) {
		return
	}
	turn, err := h.Agent.HandleTurn(r.Context(), chi.URLParam(r, "id"), req.Content)
	switch {
	case errors.Is(err, agent.ErrEmptyInput):
		writeError(w, http.StatusBadRequest, "content is required")
		return
	case err != nil:
		h.conversationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

func (h *Handlers) conversationError(w http.ResponseWriter, err error) {
	if errors.Is(err, conversation.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	h.internal(w, "conversation", err)
}

// --- Task handlers ---

func (h *Handlers) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := task.Filter{
		Type:           task.Type(q.Get("task_type")),
		Origin:         task.Origin(q.Get("origin")),
		ConversationID: q.Get("conversation"),
	}

	if s := q.Get("status"); s != "" {
		st := task.Status(s)
		switch st {
		case task.StatusPending, task.StatusProcessing, task.StatusCompleted, task.StatusFailed:
		default:
			writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(s))
			return
		}
		filter.Status = &st
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			filter.Limit = n
		}
	}
	if o := q.Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil {
			filter.Offset = n
		}
	}

	tasks, err := h.Tasks.List(filter)
	if err != nil {
		h.internal(w, "list tasks", err)
		return
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *Handlers) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tasks.Get(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		h.internal(w, "get task", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// --- Message handlers ---

func (h *Handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("topic")
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			limit = n
		}
	}

	msgs, err := h.Bus.History(topic, limit)
	if err != nil {
		h.internal(w, "bus history", err)
		return
	}
	if msgs == nil {
		msgs = []*comms.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// --- Status / version ---

func (h *Handlers) status(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": h.Version,
	}
	if !h.StartAt.IsZero() {
		resp["uptime_seconds"] = int64(time.Since(h.StartAt).Seconds())
	}
	writeJSON(w, http.StatusOK, resp)
}

// StatusHandler returns the status handler function for external registration.
func (h *Handlers) StatusHandler() http.HandlerFunc {
	return h.status
}

func (h *Handlers) version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": h.Version,
	})
}

// VersionHandler returns the version handler function for external registration.
func (h *Handlers) VersionHandler() http.HandlerFunc {
	return h.version
}
