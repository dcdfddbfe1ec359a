package testutils

import (
	"context"
	"time"

	"github.com/srg/devices-monitor/internal/notify"
	"github.com/stretchr/testify/mock"
)

// MockNotifier is a testify mock of notify.Notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, n notify.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// Row is one recorded log row.
type Row struct {
	Time    time.Time
	Message string
}

// MemoryRecorder keeps appended rows in memory.
type MemoryRecorder struct {
	Rows []Row
	Err  error
}

func (r *MemoryRecorder) Append(ts time.Time, msg string) error {
	if r.Err != nil {
		return r.Err
	}
	r.Rows = append(r.Rows, Row{Time: ts, Message: msg})
	return nil
}
