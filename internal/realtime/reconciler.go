// Package realtime applies a stream of change events to locally held
// copies of server collections. A reconciler owns an in-memory index
// keyed by document ID and mutates it from a single goroutine consuming
// its event channel, so views never scan or lock shared slices.
package realtime

import (
	"context"
	"sync"

	"log/slog"

	"github.com/okonek/teamspace/internal/domain"
)

// Resolver performs the point lookups used to attach denormalized
// display fields to reconciled documents.
type Resolver interface {
	UserRef(ctx context.Context, userID string) (name, avatarID string, err error)
	TeamRef(ctx context.Context, teamID string) (name, avatarID string, err error)
}

type listEntry struct {
	view domain.SampleView
	seq  uint64
}

// ListReconciler keeps a sample list consistent with server state.
// Events arriving on Events are applied in receipt order; an update whose
// sequence number is older than the last applied one for that document is
// discarded, so delayed deliveries cannot resurface stale data.
type ListReconciler struct {
	mu       sync.RWMutex
	resolver Resolver
	teamID   string
	index    map[string]*listEntry
	order    []string
	events   chan domain.ChangeEvent
	logger   *slog.Logger
}

// NewListReconciler seeds the reconciler with the initially fetched list.
// A non-empty teamID drops events belonging to other teams.
func NewListReconciler(resolver Resolver, teamID string, initial []domain.SampleView, logger *slog.Logger) *ListReconciler {
	r := &ListReconciler{
		resolver: resolver,
		teamID:   teamID,
		index:    make(map[string]*listEntry, len(initial)),
		events:   make(chan domain.ChangeEvent, 64),
		logger:   logger,
	}
	for _, view := range initial {
		r.index[view.ID] = &listEntry{view: view}
		r.order = append(r.order, view.ID)
	}
	return r
}

// Events is the inbound feed channel.
func (r *ListReconciler) Events() chan<- domain.ChangeEvent { return r.events }

// Run consumes events until the context is cancelled. The owning view
// starts it on mount and cancels on unmount.
func (r *ListReconciler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-r.events:
			r.Apply(ctx, event)
		}
	}
}

// Apply patches the index with one event.
func (r *ListReconciler) Apply(ctx context.Context, event domain.ChangeEvent) {
	if event.Collection != domain.CollectionSamples {
		return
	}
	if r.teamID != "" && event.TeamID != r.teamID {
		return
	}
	switch event.Type {
	case domain.ChangeCreate, domain.ChangeUpdate:
		if event.Sample == nil {
			return
		}
		view := r.resolve(ctx, *event.Sample)
		r.mu.Lock()
		defer r.mu.Unlock()
		if entry, ok := r.index[event.DocumentID]; ok {
			if event.Seq != 0 && event.Seq < entry.seq {
				return
			}
			entry.view = view
			entry.seq = event.Seq
			return
		}
		if event.Type == domain.ChangeUpdate {
			// update for a document outside the loaded window
			return
		}
		r.index[event.DocumentID] = &listEntry{view: view, seq: event.Seq}
		r.order = append([]string{event.DocumentID}, r.order...)
	case domain.ChangeDelete:
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.index[event.DocumentID]; !ok {
			return
		}
		delete(r.index, event.DocumentID)
		for i, id := range r.order {
			if id == event.DocumentID {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
}

// Snapshot returns the current list, newest first.
func (r *ListReconciler) Snapshot() []domain.SampleView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	views := make([]domain.SampleView, 0, len(r.order))
	for _, id := range r.order {
		if entry, ok := r.index[id]; ok {
			views = append(views, entry.view)
		}
	}
	return views
}

func (r *ListReconciler) resolve(ctx context.Context, sample domain.Sample) domain.SampleView {
	view := domain.SampleView{Sample: sample}
	if name, avatar, err := r.resolver.UserRef(ctx, sample.UserID); err == nil {
		view.UserName = name
		view.UserAvatarID = avatar
	} else {
		r.logger.Warn("could not resolve user ref", "user_id", sample.UserID, "error", err)
	}
	if sample.TeamID != "" {
		if name, avatar, err := r.resolver.TeamRef(ctx, sample.TeamID); err == nil {
			view.TeamName = name
			view.TeamAvatarID = avatar
		} else {
			r.logger.Warn("could not resolve team ref", "team_id", sample.TeamID, "error", err)
		}
	}
	return view
}

// DocumentWatcher keeps a single open document consistent. A delete of
// the watched document closes Gone so the view navigates away instead of
// rendering a record that no longer exists.
type DocumentWatcher struct {
	mu       sync.RWMutex
	resolver Resolver
	id       string
	view     domain.SampleView
	seq      uint64
	gone     chan struct{}
	goneOnce sync.Once
	events   chan domain.ChangeEvent
	logger   *slog.Logger
}

// NewDocumentWatcher seeds the watcher with the initially fetched view.
func NewDocumentWatcher(resolver Resolver, initial domain.SampleView, logger *slog.Logger) *DocumentWatcher {
	return &DocumentWatcher{
		resolver: resolver,
		id:       initial.ID,
		view:     initial,
		gone:     make(chan struct{}),
		events:   make(chan domain.ChangeEvent, 16),
		logger:   logger,
	}
}

// Events is the inbound feed channel.
func (w *DocumentWatcher) Events() chan<- domain.ChangeEvent { return w.events }

// Gone is closed when the watched document is deleted.
func (w *DocumentWatcher) Gone() <-chan struct{} { return w.gone }

// Run consumes events until the context is cancelled.
func (w *DocumentWatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-w.events:
			w.Apply(ctx, event)
		}
	}
}

// Apply patches the watched document with one event.
func (w *DocumentWatcher) Apply(ctx context.Context, event domain.ChangeEvent) {
	if event.Collection != domain.CollectionSamples || event.DocumentID != w.id {
		return
	}
	switch event.Type {
	case domain.ChangeUpdate:
		if event.Sample == nil {
			return
		}
		w.mu.Lock()
		defer w.mu.Unlock()
		if event.Seq != 0 && event.Seq < w.seq {
			return
		}
		view := domain.SampleView{Sample: *event.Sample}
		if name, avatar, err := w.resolver.UserRef(ctx, event.Sample.UserID); err == nil {
			view.UserName = name
			view.UserAvatarID = avatar
		}
		if event.Sample.TeamID != "" {
			if name, avatar, err := w.resolver.TeamRef(ctx, event.Sample.TeamID); err == nil {
				view.TeamName = name
				view.TeamAvatarID = avatar
			}
		}
		w.view = view
		w.seq = event.Seq
	case domain.ChangeDelete:
		w.goneOnce.Do(func() { close(w.gone) })
	}
}

// Current returns the latest reconciled view.
func (w *DocumentWatcher) Current() domain.SampleView {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.view
}
