package notify

import (
	"context"
	"io"
	"sync"
)

// Lazy connects to the notification server on the first Notify.
// A failed connection is returned by that Notify and retried on the next one.
type Lazy struct {
	connect func() (Notifier, error)

	mu       sync.Mutex
	notifier Notifier
}

// NewLazy returns a Notifier that calls connect when a notification is first due.
func NewLazy(connect func() (Notifier, error)) *Lazy {
	return &Lazy{connect: connect}
}

// Notify connects if needed and delivers n.
func (l *Lazy) Notify(ctx context.Context, n Notification) error {
	l.mu.Lock()
	if l.notifier == nil {
		notifier, err := l.connect()
		if err != nil {
			l.mu.Unlock()
			return err
		}
		l.notifier = notifier
	}
	notifier := l.notifier
	l.mu.Unlock()

	return notifier.Notify(ctx, n)
}

// Close closes the underlying notifier when one was connected.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if c, ok := l.notifier.(io.Closer); ok {
		l.notifier = nil
		return c.Close()
	}
	return nil
}

var _ Notifier = (*Lazy)(nil)
