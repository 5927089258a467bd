package organizer

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// queue collapses near-simultaneous change events into one batch: paths
// accumulate in a pending set and a single-shot timer, reset on every new
// event, signals the drain channel once the window has been quiet.
type queue struct {
	window time.Duration
	drain  chan struct{}

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
}

func newQueue(window time.Duration) *queue {
	return &queue{
		window:  window,
		drain:   make(chan struct{}, 1),
		pending: make(map[string]struct{}),
	}
}

func (q *queue) add(path string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[path] = struct{}{}
	if q.timer == nil {
		q.timer = time.AfterFunc(q.window, q.fire)
	} else {
		q.timer.Reset(q.window)
	}
}

func (q *queue) fire() {
	select {
	case q.drain <- struct{}{}:
	default:
	}
}

// take removes and returns the pending batch in submission-stable (path)
// order.
func (q *queue) take() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	out := make([]string, 0, len(q.pending))
	for p := range q.pending {
		out = append(out, p)
	}
	clear(q.pending)
	sort.Strings(out)
	return out
}

// Enqueue schedules a note for processing after the quiescence window.
func (s *Service) Enqueue(path string) {
	s.queue.add(path)
}

// QueueLen returns the number of pending paths.
func (s *Service) QueueLen() int {
	s.queue.mu.Lock()
	defer s.queue.mu.Unlock()
	return len(s.queue.pending)
}

// Run is the worker loop: it blocks until the context ends, draining the
// debounced queue whenever it goes quiet. Batch items are processed
// sequentially with a pacing delay; one item's failure never aborts the
// rest.
func (s *Service) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.queue.drain:
			s.processBatch(ctx, s.queue.take())
		}
	}
}

func (s *Service) processBatch(ctx context.Context, paths []string) {
	if len(paths) == 0 {
		return
	}
	s.logger.Info("organizer: draining batch", slog.Int("size", len(paths)))

	for i, p := range paths {
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.pacing):
			}
		}
		if !s.store.Exists(p) {
			s.index.Remove(p)
			continue
		}
		if _, err := s.ProcessNote(ctx, p); err != nil {
			s.logger.Warn("organizer: processing failed",
				slog.String("path", p),
				slog.String("error", err.Error()))
		}
	}
}

// ProcessInbox files every pending document in the inbox folder
// sequentially, returning per-path results for the ones that succeeded.
func (s *Service) ProcessInbox(ctx context.Context) ([]*Result, error) {
	metas, err := s.store.List(s.inboxFolder)
	if err != nil {
		return nil, err
	}

	var out []*Result
	for i, m := range metas {
		if i > 0 {
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(s.pacing):
			}
		}
		res, err := s.ProcessNote(ctx, m.Path)
		if err != nil {
			s.logger.Warn("organizer: inbox item failed",
				slog.String("path", m.Path),
				slog.String("error", err.Error()))
			continue
		}
		out = append(out, res)
	}
	return out, nil
}
