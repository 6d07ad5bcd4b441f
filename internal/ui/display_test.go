package ui

import (
	"strings"
	"testing"

	"github.com/kaelvex/fabricd/internal/types"
)

// componentLabel prefixes the known emoji for a component.
func TestComponentLabel_KnownComponent(t *testing.T) {
	got := componentLabel(types.ComponentWorkerPool)
	if !strings.Contains(got, "workerpool") || !strings.Contains(got, "⚙️") {
		t.Errorf("got %q, want emoji + workerpool", got)
	}
}

// componentLabel falls back to a bullet for an unrecognized component.
func TestComponentLabel_UnknownComponent(t *testing.T) {
	got := componentLabel(types.Component("mystery"))
	if !strings.HasPrefix(got, "• ") {
		t.Errorf("got %q, want bullet fallback prefix", got)
	}
}

// eventDetail extracts "reason" from a TaskFailed payload.
func TestEventDetail_TaskFailedExtractsReason(t *testing.T) {
	ev := types.Event{
		Type:    types.EventTaskFailed,
		Payload: map[string]string{"reason": "exit status 1"},
	}
	got := eventDetail(ev)
	if got != "exit status 1" {
		t.Errorf("got %q, want reason string", got)
	}
}

// eventDetail extracts "reason" from a TaskDeadLettered payload.
func TestEventDetail_TaskDeadLetteredExtractsReason(t *testing.T) {
	ev := types.Event{
		Type:    types.EventTaskDeadLettered,
		Payload: map[string]string{"reason": "max retries exceeded"},
	}
	got := eventDetail(ev)
	if got != "max retries exceeded" {
		t.Errorf("got %q, want reason string", got)
	}
}

// eventDetail extracts "worker_id" from a WorkerRestarted payload.
func TestEventDetail_WorkerRestartedExtractsWorkerID(t *testing.T) {
	ev := types.Event{
		Type:    types.EventWorkerRestarted,
		Payload: map[string]string{"worker_id": "w-7"},
	}
	got := eventDetail(ev)
	if got != "w-7" {
		t.Errorf("got %q, want worker_id string", got)
	}
}

// eventDetail extracts "worker_id" from a WorkerEvicted payload.
func TestEventDetail_WorkerEvictedExtractsWorkerID(t *testing.T) {
	ev := types.Event{
		Type:    types.EventWorkerEvicted,
		Payload: map[string]string{"worker_id": "w-3"},
	}
	got := eventDetail(ev)
	if got != "w-3" {
		t.Errorf("got %q, want worker_id string", got)
	}
}

// eventDetail returns "" for an event type it doesn't special-case.
func TestEventDetail_UnhandledTypeReturnsEmpty(t *testing.T) {
	ev := types.Event{Type: types.EventTaskStarted, Payload: map[string]string{"reason": "n/a"}}
	if got := eventDetail(ev); got != "" {
		t.Errorf("got %q, want empty string", got)
	}
}

// eventDetail returns "" when the payload has no reason field at all.
func TestEventDetail_MissingReasonReturnsEmpty(t *testing.T) {
	ev := types.Event{Type: types.EventTaskFailed, Payload: map[string]string{"other": "x"}}
	if got := eventDetail(ev); got != "" {
		t.Errorf("got %q, want empty string", got)
	}
}

// eventDetail clips an overly long reason to 48 display columns plus an ellipsis.
func TestEventDetail_ClipsLongReason(t *testing.T) {
	reason := strings.Repeat("x", 100)
	ev := types.Event{Type: types.EventTaskFailed, Payload: map[string]string{"reason": reason}}
	got := eventDetail(ev)
	runes := []rune(got)
	if len(runes) != 48 || runes[47] != '…' {
		t.Errorf("got len %d %q, want 47 chars + ellipsis", len(runes), got)
	}
}

// clip leaves strings within the column budget untouched.
func TestClip_ShortStringUnchanged(t *testing.T) {
	if got := clip("hello", 10); got != "hello" {
		t.Errorf("got %q, want unchanged", got)
	}
}

// clip truncates ASCII at n-1 columns, reserving one column for the ellipsis.
func TestClip_TruncatesAtColumnBoundary(t *testing.T) {
	got := clip("abcdefghij", 5)
	want := "abcd…"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// clip accounts for CJK characters occupying two display columns each.
func TestClip_CJKCharsCountAsTwoColumns(t *testing.T) {
	s := "你好世界测试" // 6 runes, 2 columns each = 12 columns
	got := clip(s, 7) // budget of 6 columns before the ellipsis fits 3 chars
	want := "你好世…"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// New wires the tap channel and leaves the display idle.
func TestNew_StartsNotInTask(t *testing.T) {
	tap := make(chan types.Event)
	d := New(tap)
	if d.inTask {
		t.Error("new Display should not be inTask")
	}
}

// Abort is safe to call before Run starts (buffered channel, non-blocking).
func TestAbort_NonBlockingBeforeRun(t *testing.T) {
	d := New(make(chan types.Event))
	d.Abort()
	d.Abort() // second call must not block even though nothing drained the first
}

// Resume is safe to call before Run starts.
func TestResume_NonBlockingBeforeRun(t *testing.T) {
	d := New(make(chan types.Event))
	d.Resume()
	d.Resume()
}

// WaitTaskClose returns immediately when no task is open.
func TestWaitTaskClose_NoOpWhenIdle(t *testing.T) {
	d := New(make(chan types.Event))
	d.WaitTaskClose(0) // must not block or panic
}
