package hooks

import (
	"context"
	"errors"
	"strconv"
	"time"

	"finsight/internal/kv"
)

const NotificationsReadKey = "notifications-last-read"

// NotificationMarker remembers when the user last read their notifications.
type NotificationMarker struct {
	store kv.Store
	now   func() time.Time
}

func NewNotificationMarker(store kv.Store) *NotificationMarker {
	return &NotificationMarker{store: store, now: time.Now}
}

func (m *NotificationMarker) MarkRead(ctx context.Context) error {
	return m.store.Set(ctx, NotificationsReadKey, []byte(strconv.FormatInt(m.now().UnixMilli(), 10)))
}

// LastRead returns the zero time when nothing was ever marked.
func (m *NotificationMarker) LastRead(ctx context.Context) (time.Time, error) {
	raw, err := m.store.Get(ctx, NotificationsReadKey)
	if errors.Is(err, kv.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}

// Unread counts the timestamps after the last read mark.
func (m *NotificationMarker) Unread(ctx context.Context, times []time.Time) (int, error) {
	last, err := m.LastRead(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range times {
		if t.After(last) {
			n++
		}
	}
	return n, nil
}
