package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestRegistry_CreateStartsPending(t *testing.T) {
	reg := NewRegistry(nil)

	tk, err := reg.Create(TypeHotel, "Book hotel", "Grand, 2 nights", WithAction("hotel_booking"), WithConversation("c1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if tk.ID == "" {
		t.Fatal("Create returned empty ID")
	}
	if tk.Status != StatusPending {
		t.Errorf("Status = %q, want pending", tk.Status)
	}
	if tk.Origin != OriginAction {
		t.Errorf("Origin = %q, want action", tk.Origin)
	}
	if tk.Action != "hotel_booking" || tk.ConversationID != "c1" {
		t.Errorf("options not applied: %+v", tk)
	}
	if tk.APIResponse != nil || tk.ErrorMessage != nil {
		t.Error("new task must carry neither payload nor error")
	}
}

func TestRegistry_CreateRequiresTitle(t *testing.T) {
	reg := NewRegistry(nil)
	if _, err := reg.Create(TypeGeneric, "  ", ""); err == nil {
		t.Fatal("expected error for blank title")
	}
}

func TestRegistry_CreateDefaultsGenericType(t *testing.T) {
	reg := NewRegistry(nil)
	tk, err := reg.Create("", "something", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if tk.Type != TypeGeneric {
		t.Errorf("Type = %q, want generic", tk.Type)
	}
}

func TestRegistry_ConcurrentCreateUniqueIDs(t *testing.T) {
	reg := NewRegistry(nil)
	const n = 200

	var wg sync.WaitGroup
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tk, err := reg.Create(TypeGeneric, fmt.Sprintf("task %d", i), "")
			if err != nil {
				t.Errorf("Create: %v", err)
				return
			}
			ids <- tk.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Errorf("got %d ids, want %d", len(seen), n)
	}
	all, _ := reg.List(Filter{})
	if len(all) != n {
		t.Errorf("List = %d tasks, want %d", len(all), n)
	}
}

func TestRegistry_CompleteLifecycle(t *testing.T) {
	reg := NewRegistry(nil)
	tk, _ := reg.Create(TypeHotel, "Book hotel", "")

	proc, err := reg.MarkProcessing(tk.ID)
	if err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if proc.Status != StatusProcessing || proc.StartedAt == nil {
		t.Errorf("after MarkProcessing: status=%q started=%v", proc.Status, proc.StartedAt)
	}

	done, err := reg.Complete(tk.ID, json.RawMessage(`{"bookingId":"H123"}`))
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Errorf("Status = %q, want completed", done.Status)
	}
	if string(done.APIResponse) != `{"bookingId":"H123"}` {
		t.Errorf("APIResponse = %s", done.APIResponse)
	}
	if done.ErrorMessage != nil {
		t.Error("completed task must not carry an error message")
	}
}

func TestRegistry_FailFromPending(t *testing.T) {
	reg := NewRegistry(nil)
	tk, _ := reg.Create(TypeFlight, "Book flight", "")

	failed, err := reg.Fail(tk.ID, "provider unavailable: timeout")
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if failed.Status != StatusFailed {
		t.Errorf("Status = %q, want failed", failed.Status)
	}
	if failed.ErrorMessage == nil || *failed.ErrorMessage != "provider unavailable: timeout" {
		t.Errorf("ErrorMessage = %v", failed.ErrorMessage)
	}
	if failed.APIResponse != nil {
		t.Error("failed task must not carry a payload")
	}
}

func TestRegistry_FailBlankMessage(t *testing.T) {
	reg := NewRegistry(nil)
	tk, _ := reg.Create(TypeRide, "Book ride", "")
	failed, err := reg.Fail(tk.ID, "")
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if failed.ErrorMessage == nil || *failed.ErrorMessage == "" {
		t.Error("blank failure message must be replaced")
	}
}

func TestRegistry_TerminalIsFinal(t *testing.T) {
	reg := NewRegistry(nil)

	completed, _ := reg.Create(TypeHotel, "completed", "")
	if _, err := reg.Complete(completed.ID, json.RawMessage(`{"ok":true}`)); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	failed, _ := reg.Create(TypeHotel, "failed", "")
	if _, err := reg.Fail(failed.ID, "boom"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	for _, id := range []string{completed.ID, failed.ID} {
		before, _ := reg.Get(id)

		if _, err := reg.MarkProcessing(id); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("MarkProcessing on terminal: err = %v", err)
		}
		if _, err := reg.Complete(id, json.RawMessage(`{"x":1}`)); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Complete on terminal: err = %v", err)
		}
		if _, err := reg.Fail(id, "again"); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Fail on terminal: err = %v", err)
		}

		after, _ := reg.Get(id)
		if after.Status != before.Status || string(after.APIResponse) != string(before.APIResponse) {
			t.Errorf("terminal task %s mutated: %+v -> %+v", id, before, after)
		}
		if (before.ErrorMessage == nil) != (after.ErrorMessage == nil) {
			t.Errorf("terminal task %s error message changed", id)
		}
	}

	var te *TransitionError
	_, err := reg.Fail(completed.ID, "x")
	if !errors.As(err, &te) || te.From != StatusCompleted || te.To != StatusFailed {
		t.Errorf("TransitionError = %+v", te)
	}
}

func TestRegistry_ProcessingTwiceRejected(t *testing.T) {
	reg := NewRegistry(nil)
	tk, _ := reg.Create(TypeGeneric, "x", "")
	if _, err := reg.MarkProcessing(tk.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if _, err := reg.MarkProcessing(tk.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second MarkProcessing err = %v", err)
	}
}

func TestRegistry_CompleteRejectsEmptyPayload(t *testing.T) {
	reg := NewRegistry(nil)
	tk, _ := reg.Create(TypeGeneric, "x", "")

	for _, p := range []string{"", "   ", "null", "{not json"} {
		if _, err := reg.Complete(tk.ID, json.RawMessage(p)); !errors.Is(err, ErrEmptyPayload) {
			t.Errorf("Complete(%q) err = %v, want ErrEmptyPayload", p, err)
		}
	}
	got, _ := reg.Get(tk.ID)
	if got.Status != StatusPending {
		t.Errorf("Status = %q, want pending", got.Status)
	}
}

func TestRegistry_UnknownID(t *testing.T) {
	reg := NewRegistry(nil)
	if _, err := reg.MarkProcessing("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("MarkProcessing err = %v, want ErrNotFound", err)
	}
	if _, err := reg.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get err = %v, want ErrNotFound", err)
	}
}

func TestRegistry_ListNewestFirst(t *testing.T) {
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	reg := NewRegistry(nil, WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))

	first, _ := reg.Create(TypeGeneric, "first", "")
	second, _ := reg.Create(TypeGeneric, "second", "")
	third, _ := reg.Create(TypeGeneric, "third", "")

	list, err := reg.List(Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 || list[0].ID != third.ID || list[1].ID != second.ID || list[2].ID != first.ID {
		t.Errorf("List order wrong: %v", list)
	}
}

func waitEvents(t *testing.T, ch <-chan Task, n int) []Task {
	t.Helper()
	var got []Task
	timeout := time.After(2 * time.Second)
	for len(got) < n {
		select {
		case tk := <-ch:
			got = append(got, tk)
		case <-timeout:
			t.Fatalf("timeout: got %d of %d notifications", len(got), n)
		}
	}
	return got
}

func TestRegistry_SubscribeOrderAndUnsubscribe(t *testing.T) {
	reg := NewRegistry(nil)
	ch := make(chan Task, 16)
	sub := reg.Subscribe(func(tk Task) { ch <- tk })

	tk, _ := reg.Create(TypeHotel, "Book hotel", "")
	if _, err := reg.Complete(tk.ID, json.RawMessage(`{"bookingId":"H123"}`)); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	got := waitEvents(t, ch, 2)
	if got[0].ID != tk.ID || got[0].Status != StatusPending {
		t.Errorf("first notification = %s/%s, want %s/pending", got[0].ID, got[0].Status, tk.ID)
	}
	if got[1].ID != tk.ID || got[1].Status != StatusCompleted {
		t.Errorf("second notification = %s/%s, want completed", got[1].ID, got[1].Status)
	}

	sub.Unsubscribe()

	other, _ := reg.Create(TypeHotel, "after", "")
	_, _ = reg.Fail(other.ID, "x")
	select {
	case extra := <-ch:
		t.Fatalf("notification after Unsubscribe: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRegistry_SlowSubscriberDoesNotBlock(t *testing.T) {
	reg := NewRegistry(nil)
	release := make(chan struct{})
	sub := reg.Subscribe(func(Task) { <-release })
	defer sub.Unsubscribe()
	defer close(release)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			tk, err := reg.Create(TypeGeneric, "t", "")
			if err != nil {
				t.Errorf("Create: %v", err)
				break
			}
			_, _ = reg.Complete(tk.ID, json.RawMessage(`{}`))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("registry blocked on a slow subscriber")
	}
}

func TestRegistry_SubscriberPanicIsContained(t *testing.T) {
	reg := NewRegistry(nil)
	ch := make(chan Task, 4)
	calls := 0
	sub := reg.Subscribe(func(tk Task) {
		calls++
		if calls == 1 {
			panic("listener bug")
		}
		ch <- tk
	})
	defer sub.Unsubscribe()

	tk, _ := reg.Create(TypeGeneric, "t", "")
	_, _ = reg.MarkProcessing(tk.ID)

	got := waitEvents(t, ch, 1)
	if got[0].Status != StatusProcessing {
		t.Errorf("Status = %q, want processing", got[0].Status)
	}
}

func TestRegistry_WithSQLiteStore(t *testing.T) {
	reg := NewRegistry(newTestStore(t))

	tk, err := reg.Create(TypeRestaurant, "Order pizza", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := reg.MarkProcessing(tk.ID); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if _, err := reg.Complete(tk.ID, json.RawMessage(`{"orderId":"R1"}`)); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, err := reg.Get(tk.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusCompleted || string(got.APIResponse) != `{"orderId":"R1"}` {
		t.Errorf("got %+v", got)
	}
	if _, err := reg.Fail(tk.ID, "late"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Fail after complete err = %v", err)
	}
}
