// Package progress fans run events out to websocket subscribers. Every run
// keeps a bounded history so a client that connects late still sees how far
// the run got.
package progress

import (
	"sync"

	"storyboard-ai/internal/appcore"
	"storyboard-ai/log"

	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 256
	defaultKeepFinished = 64
	subscriberBuffer    = 64
)

type runLog struct {
	history  []appcore.RunEvent
	subs     map[chan appcore.RunEvent]struct{}
	finished bool
}

// Broker is safe for concurrent use. Publish never blocks: a subscriber
// that falls behind loses events instead of stalling the run.
type Broker struct {
	mu           sync.Mutex
	runs         map[string]*runLog
	finished     []string
	historyLimit int
	keepFinished int
}

func NewBroker(historyLimit, keepFinished int) *Broker {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	if keepFinished <= 0 {
		keepFinished = defaultKeepFinished
	}
	return &Broker{
		runs:         make(map[string]*runLog),
		historyLimit: historyLimit,
		keepFinished: keepFinished,
	}
}

func (b *Broker) run(id string) *runLog {
	rl, ok := b.runs[id]
	if !ok {
		rl = &runLog{subs: make(map[chan appcore.RunEvent]struct{})}
		b.runs[id] = rl
	}
	return rl
}

// Publish records ev and hands it to every subscriber of its run. A
// terminal event closes the subscriptions.
func (b *Broker) Publish(ev appcore.RunEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rl := b.run(ev.RunID)
	if rl.finished {
		return
	}
	rl.history = append(rl.history, ev)
	if over := len(rl.history) - b.historyLimit; over > 0 {
		// keep the first event so subscribers know when the run was queued
		rl.history = append(rl.history[:1], rl.history[1+over:]...)
	}
	for ch := range rl.subs {
		select {
		case ch <- ev:
		default:
			log.GetLogger().Warn("进度订阅者过慢，丢弃事件 Progress subscriber lagging, event dropped",
				zap.String("run_id", ev.RunID))
		}
	}
	if !ev.Stage.IsTerminal() {
		return
	}
	rl.finished = true
	for ch := range rl.subs {
		close(ch)
		delete(rl.subs, ch)
	}
	b.finished = append(b.finished, ev.RunID)
	for len(b.finished) > b.keepFinished {
		delete(b.runs, b.finished[0])
		b.finished = b.finished[1:]
	}
}

// Sink adapts the broker to a pipeline event sink.
func (b *Broker) Sink() appcore.EventSink {
	return b.Publish
}

// Subscribe returns the history of run followed by live events. The channel
// is closed after the terminal event or when cancel is called; for a run
// that already finished it carries the history and is closed at once. A run
// the broker has never seen gets a closed, empty channel.
func (b *Broker) Subscribe(runID string) (<-chan appcore.RunEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rl, ok := b.runs[runID]
	if !ok {
		ch := make(chan appcore.RunEvent)
		close(ch)
		return ch, func() {}
	}
	ch := make(chan appcore.RunEvent, len(rl.history)+subscriberBuffer)
	for _, ev := range rl.history {
		ch <- ev
	}
	if rl.finished {
		close(ch)
		return ch, func() {}
	}
	rl.subs[ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := rl.subs[ch]; ok {
				delete(rl.subs, ch)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// History returns a copy of the recorded events of run.
func (b *Broker) History(runID string) []appcore.RunEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	rl, ok := b.runs[runID]
	if !ok {
		return nil
	}
	return append([]appcore.RunEvent(nil), rl.history...)
}

// Last returns the most recent event of run.
func (b *Broker) Last(runID string) (appcore.RunEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rl, ok := b.runs[runID]
	if !ok || len(rl.history) == 0 {
		return appcore.RunEvent{}, false
	}
	return rl.history[len(rl.history)-1], true
}
