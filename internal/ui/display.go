// Package ui renders a live terminal visualization of the fabric's event
// bus: one flow line per task/worker lifecycle event, animated with a
// spinner between events, bracketed by a pipeline box per task.
package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/kaelvex/fabricd/internal/types"
)

// ANSI codes
const (
	ansiReset  = "\033[0m"
	ansiDim    = "\033[2m"
	ansiCyan   = "\033[36m"
	ansiYellow = "\033[33m"
	ansiGreen  = "\033[32m"
	ansiRed    = "\033[31m"
	ansiBlue   = "\033[34m"
)

var componentEmoji = map[types.Component]string{
	types.ComponentCoordinator: "🧭",
	types.ComponentWorkerPool:  "⚙️ ",
	types.ComponentVault:       "🔐",
	types.ComponentSandbox:     "📦",
	types.ComponentSkills:      "🧩",
	types.ComponentBridge:      "📡",
	types.ComponentPreflight:   "✅",
	types.ComponentRecovery:    "🔁",
}

var eventColor = map[types.EventType]string{
	types.EventTaskSubmitted:    ansiCyan,
	types.EventTaskAssigned:     ansiBlue,
	types.EventTaskStarted:      ansiBlue,
	types.EventTaskCompleted:    ansiGreen,
	types.EventTaskFailed:       ansiRed,
	types.EventTaskDeadLettered: ansiRed,
	types.EventCircuitOpened:    ansiRed,
	types.EventCircuitClosed:    ansiGreen,
	types.EventWorkerEvicted:    ansiDim,
	types.EventWorkerRestarted:  ansiYellow,
}

var eventStatus = map[types.EventType]string{
	types.EventTaskSubmitted:    "🧭 queuing task...",
	types.EventTaskAssigned:     "⚙️  assigning worker...",
	types.EventTaskStarted:      "⚙️  running...",
	types.EventTaskCompleted:    "✅ completed",
	types.EventTaskFailed:       "❌ failed, evaluating retry...",
	types.EventTaskDeadLettered: "💀 dead-lettered",
	types.EventCircuitOpened:    "🔁 circuit opened, shedding load...",
	types.EventCircuitClosed:    "🔁 circuit closed",
}

var spinRunes = []rune("⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏")

// Display renders a live pipeline visualization to stdout, reading from a
// bus tap channel (see internal/bus.Bus.NewTap).
type Display struct {
	tap        <-chan types.Event
	abortCh    chan struct{}
	resumeCh   chan struct{}
	mu         sync.Mutex
	status     string
	started    time.Time
	inTask     bool
	spinIdx    int
	suppressed bool
	taskDone   chan struct{}
}

// New creates a Display reading from tap.
func New(tap <-chan types.Event) *Display {
	return &Display{tap: tap, abortCh: make(chan struct{}, 1), resumeCh: make(chan struct{}, 1)}
}

// Abort closes the current pipeline box immediately and suppresses any
// further stale events until Resume is called. Safe from any goroutine.
func (d *Display) Abort() {
	select {
	case d.abortCh <- struct{}{}:
	default:
	}
}

// Resume lifts the post-Abort suppression. Safe from any goroutine.
func (d *Display) Resume() {
	select {
	case d.resumeCh <- struct{}{}:
	default:
	}
}

// Run is the main render loop; all terminal writes happen on this single
// goroutine so no extra I/O locking is needed.
func (d *Display) Run(ctx context.Context) {
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Print("\r\033[K")
			return

		case <-d.abortCh:
			if d.inTask {
				fmt.Print("\r\033[K")
				d.endTask(false)
			}
			d.mu.Lock()
			d.suppressed = true
			d.mu.Unlock()

		case <-d.resumeCh:
			d.mu.Lock()
			d.suppressed = false
			d.mu.Unlock()

		case ev, ok := <-d.tap:
			if !ok {
				return
			}
			if !d.inTask {
				d.mu.Lock()
				sup := d.suppressed
				d.mu.Unlock()
				if sup {
					continue
				}
				d.startTask()
			}
			fmt.Print("\r\033[K")
			d.printFlow(ev)
			d.setStatus(eventStatus[ev.Type])
			if ev.Type == types.EventTaskCompleted || ev.Type == types.EventTaskFailed || ev.Type == types.EventTaskDeadLettered {
				d.endTask(ev.Type == types.EventTaskCompleted)
			}

		case <-ticker.C:
			if !d.inTask {
				continue
			}
			frame := spinRunes[d.spinIdx%len(spinRunes)]
			d.spinIdx++
			d.mu.Lock()
			status := d.status
			d.mu.Unlock()
			fmt.Printf("\r\033[K%s%s%s %s", ansiCyan, string(frame), ansiReset, status)
		}
	}
}

// WaitTaskClose blocks until the current pipeline box closes, or timeout
// elapses. Call after receiving a terminal event but before printing
// further output, so the pipeline footer prints first.
func (d *Display) WaitTaskClose(timeout time.Duration) {
	d.mu.Lock()
	ch := d.taskDone
	d.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case <-ch:
	case <-time.After(timeout):
	}
}

func (d *Display) startTask() {
	d.mu.Lock()
	d.taskDone = make(chan struct{})
	d.mu.Unlock()
	d.started = time.Now()
	d.inTask = true
	d.setStatus("initializing...")
	fmt.Printf("\n%s┌─── ⚡ fabricd task %s%s\n", ansiDim, strings.Repeat("─", 40), ansiReset)
}

func (d *Display) endTask(success bool) {
	d.inTask = false
	elapsed := time.Since(d.started).Round(time.Millisecond)
	icon := "✅"
	if !success {
		icon = "❌"
	}
	fmt.Printf("\r\033[K%s└─── %s  %v %s%s\n", ansiDim, icon, elapsed, strings.Repeat("─", 35), ansiReset)
	d.mu.Lock()
	ch := d.taskDone
	d.taskDone = nil
	d.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

func (d *Display) setStatus(s string) {
	d.mu.Lock()
	d.status = s
	d.mu.Unlock()
}

func (d *Display) printFlow(ev types.Event) {
	label := string(ev.Type)
	if det := eventDetail(ev); det != "" {
		label += ": " + det
	}

	color := eventColor[ev.Type]
	if color == "" {
		color = ansiDim
	}

	from := componentLabel(ev.Component)
	fmt.Printf("  %s ──[%s%s%s]\n", from, color, label, ansiReset)
}

func componentLabel(c types.Component) string {
	emoji, ok := componentEmoji[c]
	if !ok {
		emoji = "•"
	}
	return emoji + " " + string(c)
}

// eventDetail extracts a short inline detail string from an event's
// payload, when it carries one worth surfacing.
func eventDetail(ev types.Event) string {
	switch ev.Type {
	case types.EventTaskFailed, types.EventTaskDeadLettered:
		var p struct {
			Reason string `json:"reason"`
		}
		if remarshal(ev.Payload, &p) == nil && p.Reason != "" {
			return clip(p.Reason, 48)
		}
	case types.EventWorkerRestarted, types.EventWorkerEvicted:
		var p struct {
			WorkerID string `json:"worker_id"`
		}
		if remarshal(ev.Payload, &p) == nil && p.WorkerID != "" {
			return p.WorkerID
		}
	}
	return ""
}

// clip truncates s to at most n display columns, appending "…" (itself one
// column) if trimmed. Uses display width rather than rune count so a task
// reason or worker ID mixing CJK and ASCII text doesn't overrun the fixed
// flow-line layout.
func clip(s string, n int) string {
	if runewidth.StringWidth(s) <= n {
		return s
	}
	var b strings.Builder
	width := 0
	for _, r := range s {
		rw := runewidth.RuneWidth(r)
		if width+rw > n-1 {
			break
		}
		b.WriteRune(r)
		width += rw
	}
	return b.String() + "…"
}

func remarshal(src, dst any) error {
	b, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}
