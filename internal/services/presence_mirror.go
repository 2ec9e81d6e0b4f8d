package services

import (
	"context"
	"log/slog"
	"time"

	"chat-presence/internal/presence"
)

// StatusStore records presence transitions outside the process.
type StatusStore interface {
	SetUserOnline(ctx context.Context, username string, at time.Time) error
	SetUserOffline(ctx context.Context, username string, at time.Time) error
}

// PresenceMirror is a presence.Publisher that copies transitions into a
// StatusStore. Publish only queues the event; Run applies queued events in
// order. Events published while the queue is full are dropped.
type PresenceMirror struct {
	store   StatusStore
	events  chan presence.Event
	timeout time.Duration
	logger  *slog.Logger
}

func NewPresenceMirror(store StatusStore, buffer int, logger *slog.Logger) *PresenceMirror {
	if buffer <= 0 {
		buffer = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PresenceMirror{
		store:   store,
		events:  make(chan presence.Event, buffer),
		timeout: 3 * time.Second,
		logger:  logger,
	}
}

func (m *PresenceMirror) Publish(event presence.Event, _ []string) {
	select {
	case m.events <- event:
	default:
		m.logger.Warn("Presence mirror queue full, dropping event", "type", event.Type, "username", event.Username)
	}
}

// Run applies events until ctx is done, then flushes what is still queued.
func (m *PresenceMirror) Run(ctx context.Context) {
	for {
		select {
		case event := <-m.events:
			m.apply(ctx, event)
		case <-ctx.Done():
			m.flush()
			return
		}
	}
}

func (m *PresenceMirror) flush() {
	for {
		select {
		case event := <-m.events:
			m.apply(context.Background(), event)
		default:
			return
		}
	}
}

func (m *PresenceMirror) apply(ctx context.Context, event presence.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	var err error
	switch event.Type {
	case presence.UserOnline:
		err = m.store.SetUserOnline(ctx, event.Username, event.At)
	case presence.UserOffline:
		err = m.store.SetUserOffline(ctx, event.Username, event.At)
	}
	if err != nil {
		m.logger.Error("Failed to mirror presence", "type", event.Type, "username", event.Username, "error", err)
	}
}
