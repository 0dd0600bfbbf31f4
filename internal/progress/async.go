package progress

import (
	"sync"
	"sync/atomic"
)

type eventKind int

const (
	kindStage eventKind = iota
	kindStart
	kindProgress
	kindDone
)

type event struct {
	kind  eventKind
	stage Stage
	task  string
	n     int64
}

// Async forwards events to a wrapped Observer from a single goroutine so
// slow rendering never stalls network workers. Progress events are dropped
// when the buffer is full; stage, start and done events always get through.
// No lock is held while sending, so a sender waiting to queue a lifecycle
// event never holds up OnProgress.
type Async struct {
	next   Observer
	events chan event
	done   chan struct{}
	wg     sync.WaitGroup

	closeOnce sync.Once
	dropped   atomic.Int64
}

// NewAsync starts forwarding to next with a buffer of size events.
func NewAsync(next Observer, size int) *Async {
	if size <= 0 {
		size = 256
	}
	a := &Async{
		next:   OrNop(next),
		events: make(chan event, size),
		done:   make(chan struct{}),
	}
	a.wg.Add(1)
	go a.loop()
	return a
}

func (a *Async) loop() {
	defer a.wg.Done()
	for {
		select {
		case ev := <-a.events:
			a.dispatch(ev)
		case <-a.done:
			for {
				select {
				case ev := <-a.events:
					a.dispatch(ev)
				default:
					return
				}
			}
		}
	}
}

func (a *Async) dispatch(ev event) {
	switch ev.kind {
	case kindStage:
		a.next.OnStage(ev.stage)
	case kindStart:
		a.next.OnStart(ev.task, ev.n)
	case kindProgress:
		a.next.OnProgress(ev.task, ev.n)
	case kindDone:
		a.next.OnDone(ev.task)
	}
}

func (a *Async) OnStage(s Stage) {
	a.send(event{kind: kindStage, stage: s}, true)
}

func (a *Async) OnStart(task string, total int64) {
	a.send(event{kind: kindStart, task: task, n: total}, true)
}

func (a *Async) OnProgress(task string, delta int64) {
	a.send(event{kind: kindProgress, task: task, n: delta}, false)
}

func (a *Async) OnDone(task string) {
	a.send(event{kind: kindDone, task: task}, true)
}

func (a *Async) send(ev event, block bool) {
	select {
	case <-a.done:
		return
	default:
	}
	if block {
		select {
		case a.events <- ev:
		case <-a.done:
		}
		return
	}
	select {
	case a.events <- ev:
	default:
		a.dropped.Add(1)
	}
}

// Dropped returns how many progress events were discarded.
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

// Close flushes pending events and stops the forwarding goroutine. Events
// sent after Close are ignored, and senders still waiting are released.
func (a *Async) Close() {
	a.closeOnce.Do(func() { close(a.done) })
	a.wg.Wait()
}
