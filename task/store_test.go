package task

import (
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	f, err := os.CreateTemp("", "aura-task-*.db")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	f.Close()
	path := f.Name()
	t.Cleanup(func() { os.Remove(path) })

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleTask(id, title string, created time.Time) *Task {
	return &Task{
		ID:          id,
		Type:        TypeHotel,
		Status:      StatusPending,
		Title:       title,
		Description: "desc",
		Action:      "hotel_booking",
		Origin:      OriginAction,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestSQLiteStore_InsertAndGet(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	task := sampleTask("t-1", "Book hotel", now)
	task.ConversationID = "conv-1"
	if err := store.Insert(task); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := store.Get("t-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Book hotel" {
		t.Errorf("Title = %q, want %q", got.Title, "Book hotel")
	}
	if got.Type != TypeHotel {
		t.Errorf("Type = %q, want %q", got.Type, TypeHotel)
	}
	if got.ConversationID != "conv-1" {
		t.Errorf("ConversationID = %q, want conv-1", got.ConversationID)
	}
	if got.APIResponse != nil {
		t.Errorf("APIResponse = %s, want nil", got.APIResponse)
	}
	if got.ErrorMessage != nil {
		t.Errorf("ErrorMessage = %q, want nil", *got.ErrorMessage)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, now)
	}
}

func TestSQLiteStore_Update(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()

	task := sampleTask("t-1", "orig", now)
	if err := store.Insert(task); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	task.Status = StatusCompleted
	task.APIResponse = json.RawMessage(`{"bookingId":"H123"}`)
	task.CompletedAt = &now
	if err := store.Update(task); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := store.Get("t-1")
	if err != nil {
		t.Fatalf("Get after update: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if string(got.APIResponse) != `{"bookingId":"H123"}` {
		t.Errorf("APIResponse = %s", got.APIResponse)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not persisted")
	}
}

func TestSQLiteStore_Update_NotFound(t *testing.T) {
	store := newTestStore(t)
	task := sampleTask("nonexistent", "x", time.Now().UTC())
	err := store.Update(task)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_Get_NotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteStore_List(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().UTC()

	tasks := []*Task{
		sampleTask("t1", "first", base),
		sampleTask("t2", "second", base.Add(time.Second)),
		sampleTask("t3", "third", base.Add(2*time.Second)),
	}
	tasks[1].Status = StatusCompleted
	tasks[2].Type = TypeFlight
	tasks[2].ConversationID = "conv-a"
	for _, task := range tasks {
		if err := store.Insert(task); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	// Newest first
	all, err := store.List(Filter{})
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List all: got %d, want 3", len(all))
	}
	if all[0].ID != "t3" || all[2].ID != "t1" {
		t.Errorf("order = %s,%s,%s, want t3,t2,t1", all[0].ID, all[1].ID, all[2].ID)
	}

	pending := StatusPending
	pendingList, err := store.List(Filter{Status: &pending})
	if err != nil {
		t.Fatalf("List pending: %v", err)
	}
	if len(pendingList) != 2 {
		t.Errorf("List pending: got %d, want 2", len(pendingList))
	}

	flights, err := store.List(Filter{Type: TypeFlight})
	if err != nil {
		t.Fatalf("List flights: %v", err)
	}
	if len(flights) != 1 || flights[0].ID != "t3" {
		t.Errorf("List flights = %v", flights)
	}

	conv, err := store.List(Filter{ConversationID: "conv-a"})
	if err != nil {
		t.Fatalf("List conversation: %v", err)
	}
	if len(conv) != 1 {
		t.Errorf("List conversation: got %d, want 1", len(conv))
	}

	limited, err := store.List(Filter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("List limit: %v", err)
	}
	if len(limited) != 2 || limited[0].ID != "t2" {
		t.Errorf("List limit 2 offset 1 = %d tasks", len(limited))
	}
}

func TestMemoryStore_ListOrderAndCopy(t *testing.T) {
	store := NewMemoryStore()
	same := time.Now().UTC()

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Insert(sampleTask(id, id, same)); err != nil {
			t.Fatalf("Insert %s: %v", id, err)
		}
	}
	if err := store.Insert(sampleTask("a", "dup", same)); err == nil {
		t.Fatal("expected duplicate insert to fail")
	}

	list, err := store.List(Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	// Equal timestamps fall back to insertion order, newest first.
	if list[0].ID != "c" || list[1].ID != "b" || list[2].ID != "a" {
		t.Errorf("order = %s,%s,%s, want c,b,a", list[0].ID, list[1].ID, list[2].ID)
	}

	list[0].Title = "mutated"
	got, _ := store.Get("c")
	if got.Title != "c" {
		t.Errorf("store leaked internal state: Title = %q", got.Title)
	}
}
