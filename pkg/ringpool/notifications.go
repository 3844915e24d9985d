package ringpool

import (
	"fmt"
	"time"
)

// NotificationKind identifies the pool event being reported.
type NotificationKind int

const (
	// InitFailure is sent when the initial fill of a new pool fails.
	InitFailure NotificationKind = iota
	// ConnectFailure is sent when a connection could not reach any host.
	ConnectFailure
	// Abandoned is sent when a busy connection is reclaimed.
	Abandoned
	// SuspectAbandoned is sent when a busy connection passes the suspect timeout.
	SuspectAbandoned
)

func (nk NotificationKind) String() string {
	switch nk {
	case InitFailure:
		return "INIT_FAILED"
	case ConnectFailure:
		return "CONNECTION_FAILED"
	case Abandoned:
		return "CONNECTION_ABANDONED"
	case SuspectAbandoned:
		return "SUSPECT_ABANDONED"
	default:
		return fmt.Sprintf("NotificationKind(%d)", int(nk))
	}
}

// Notification is a way to tell the pool owner something happened.
type Notification struct {
	Kind         NotificationKind
	Pool         string
	ConnectionID uint64 // 0 when not about a single connection
	Message      string // human readable detail, often a stack trace
	Time         time.Time
}

// ToString allows you to quickly log the Notification struct as a string.
func (not *Notification) ToString() string {
	if not.ConnectionID == 0 {
		return fmt.Sprintf("[%s] %s - %s\r\n%s\r\n", not.Time.Format(time.RFC3339), not.Pool, not.Kind, not.Message)
	}

	return fmt.Sprintf("[%s] %s - %s [ConnectionID: %d]\r\n%s\r\n", not.Time.Format(time.RFC3339), not.Pool, not.Kind, not.ConnectionID, not.Message)
}

// NotificationSink receives pool notifications. Notify must not block for long.
// It runs while the pool holds the reported connection's lock, so it may read pool
// state (Stats, Size, Active) but must not borrow, return or release connections.
type NotificationSink interface {
	Notify(notification *Notification)
}

// SinkFunc adapts a function to a NotificationSink.
type SinkFunc func(notification *Notification)

// Notify calls f.
func (f SinkFunc) Notify(notification *Notification) {
	f(notification)
}

// ChannelSink buffers notifications into a channel, dropping them when the buffer is full.
type ChannelSink struct {
	notifications chan *Notification
}

// NewChannelSink creates a ChannelSink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{notifications: make(chan *Notification, buffer)}
}

// Notify enqueues without blocking.
func (cs *ChannelSink) Notify(notification *Notification) {
	select {
	case cs.notifications <- notification:
	default:
	}
}

// Notifications yields buffered notifications.
func (cs *ChannelSink) Notifications() <-chan *Notification {
	return cs.notifications
}
