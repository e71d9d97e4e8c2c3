package session

import (
	"context"
	"fmt"
	"time"

	"github.com/mindroom/matty/internal/domain"
)

// pollDelay returns the time to sleep before the next tick: the base
// interval, or an exponential backoff once consecutive failures reach
// the threshold, capped at MaxBackoff.
func (e *Engine) pollDelay() time.Duration {
	e.mu.Lock()
	failures := e.failures
	e.mu.Unlock()

	k := e.cfg.FailureThreshold
	if failures < k {
		return e.cfg.PollInterval
	}
	delay := e.cfg.PollInterval
	for i := 0; i <= failures-k; i++ {
		delay *= 2
		if delay >= e.cfg.MaxBackoff {
			return e.cfg.MaxBackoff
		}
	}
	return delay
}

// poll runs one fetch/reconcile cycle. It snapshots the selection
// before fetching and discards the result if the user navigated away
// while the fetch was in flight.
func (e *Engine) poll(ctx context.Context) {
	e.mu.Lock()
	t := e.transport
	roomBefore := e.state.RoomID
	threadBefore := e.state.ThreadID
	authenticated := e.state.Authenticated
	e.mu.Unlock()

	if !authenticated || roomBefore == "" {
		return
	}

	var fetched []domain.Message
	var err error
	if threadBefore != "" {
		fetched, err = t.ThreadMessages(ctx, roomBefore, threadBefore, e.cfg.HistorySize)
	} else {
		fetched, err = t.Messages(ctx, roomBefore, e.cfg.HistorySize)
	}
	if err != nil {
		e.recordFailure(err)
		return
	}
	roots, err := t.Threads(ctx, roomBefore, e.cfg.HistorySize)
	if err != nil {
		e.recordFailure(err)
		return
	}

	e.mu.Lock()
	if e.state.RoomID != roomBefore || e.state.ThreadID != threadBefore {
		// The user switched selection mid-fetch. The data belongs to
		// the old selection; drop it. A discard is not a failure.
		e.failures = 0
		e.mu.Unlock()
		return
	}
	e.failures = 0
	e.warned = false

	fetched = e.assignHandles(roomBefore, trim(fetched, e.cfg.HistorySize))
	roots = e.assignHandles(roomBefore, roots)

	changed := !equalMessages(e.messages, fetched)
	var newIDs []string
	if changed {
		// Repopulating an empty buffer (first poll after login or a
		// selection switch) is history, not new mail; no new IDs.
		if len(e.messages) > 0 {
			newIDs = newEventIDs(e.messages, fetched)
		}
		e.messages = fetched
	}
	threadsChanged := !equalMessages(e.threads, roots)
	if threadsChanged {
		e.threads = roots
	}
	e.mu.Unlock()

	if changed {
		e.publishMessages(fetched, newIDs)
	}
	if threadsChanged {
		e.publishThreads(roots)
	}
}

// recordFailure counts a transport error and surfaces a one-time
// connection warning when the failure streak first reaches the
// threshold.
func (e *Engine) recordFailure(err error) {
	e.mu.Lock()
	e.failures++
	warn := e.failures == e.cfg.FailureThreshold && !e.warned
	if warn {
		e.warned = true
	}
	failures := e.failures
	e.mu.Unlock()

	e.logf("session: poll failed (%d consecutive): %v", failures, err)
	if warn {
		e.notify(fmt.Sprintf("connection lost, retrying with backoff (ctrl+r to reconnect): %v", err), SeverityWarning)
	}
}

// assignHandles decorates messages with registry tokens. Called with
// the engine lock held.
func (e *Engine) assignHandles(roomID string, msgs []domain.Message) []domain.Message {
	if e.registry == nil {
		return msgs
	}
	for i := range msgs {
		msgs[i].Handle = e.registry.MessageHandle(roomID, msgs[i].EventID)
		if msgs[i].IsThreadRoot {
			msgs[i].ThreadHandle = e.registry.ThreadHandle(msgs[i].EventID)
		} else if msgs[i].ThreadRootID != "" {
			msgs[i].ThreadHandle = e.registry.ThreadHandle(msgs[i].ThreadRootID)
		}
	}
	return msgs
}

// trim keeps the newest max messages.
func trim(msgs []domain.Message, max int) []domain.Message {
	if len(msgs) <= max {
		return msgs
	}
	return msgs[len(msgs)-max:]
}
