// Package notify delivers operator-facing notifications (server failures, update
// results, configuration problems) to whatever presentation layer is attached.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level classifies a notification for presentation.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a single operator-facing message.
type Notification struct {
	ID    string    `json:"id"`
	Level Level     `json:"level"`
	Title string    `json:"title"`
	Body  string    `json:"body"`
	Time  time.Time `json:"time"`
}

// New builds a notification stamped with a fresh ID and the current time.
func New(level Level, title, body string) Notification {
	return Notification{
		ID:    uuid.NewString(),
		Level: level,
		Title: title,
		Body:  body,
		Time:  time.Now(),
	}
}

// Notifier delivers notifications. Implementations must be safe for concurrent use
// and must not block for long; delivery failures are logged, not returned.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// LogNotifier writes notifications to a slog logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(ctx context.Context, n Notification) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	switch n.Level {
	case LevelWarning:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	}
	logger.Log(ctx, level, n.Title, slog.String("body", n.Body), slog.String("notification_id", n.ID))
}

// Multi fans a notification out to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(ctx, n)
		}
	}
}

// Buffer keeps the most recent notifications in memory for the control API.
type Buffer struct {
	mu    sync.Mutex
	size  int
	items []Notification
}

// NewBuffer returns a buffer holding at most size notifications.
func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = 50
	}
	return &Buffer{size: size}
}

func (b *Buffer) Notify(_ context.Context, n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, n)
	if over := len(b.items) - b.size; over > 0 {
		b.items = append(b.items[:0:0], b.items[over:]...)
	}
}

// Recent returns buffered notifications, newest last.
func (b *Buffer) Recent() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Notification, len(b.items))
	copy(out, b.items)
	return out
}
