package notify

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
)

const (
	notificationsName      = "org.freedesktop.Notifications"
	notificationsPath      = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsNotify    = notificationsName + ".Notify"
	defaultExpireTimeoutMs = int32(-1)
)

// caller is the subset of dbus.BusObject used to send notifications.
type caller interface {
	Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// DesktopSink sends freedesktop notifications over the session bus.
type DesktopSink struct {
	conn    *dbus.Conn
	obj     caller
	appName string
	logger  zerolog.Logger
}

// DialDesktop connects to the session bus.
func DialDesktop(appName string, logger zerolog.Logger) (*DesktopSink, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}
	s := newDesktopSink(conn.Object(notificationsName, notificationsPath), appName, logger)
	s.conn = conn
	return s, nil
}

func newDesktopSink(obj caller, appName string, logger zerolog.Logger) *DesktopSink {
	return &DesktopSink{
		obj:     obj,
		appName: appName,
		logger:  logger.With().Str("component", "notify").Logger(),
	}
}

// Notify implements Sink.
func (s *DesktopSink) Notify(title, message string) error {
	call := s.obj.Call(notificationsNotify, 0,
		s.appName,
		uint32(0), // replaces_id
		"",        // app_icon
		title,
		message,
		[]string{},
		map[string]dbus.Variant{"urgency": dbus.MakeVariant(byte(1))},
		defaultExpireTimeoutMs,
	)
	if call == nil {
		return fmt.Errorf("send desktop notification: no reply")
	}
	if err := call.Err; err != nil {
		return fmt.Errorf("send desktop notification: %w", err)
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("decode notification id: %w", err)
	}
	s.logger.Debug().Uint32("notification_id", id).Str("title", title).Msg("Desktop notification sent")
	return nil
}

// Close closes the session bus connection, if this sink owns one.
func (s *DesktopSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
