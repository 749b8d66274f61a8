package notify

import (
	"bytes"
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeBusObject struct {
	method string
	args   []interface{}
	err    error
}

func (f *fakeBusObject) Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	f.method = method
	f.args = args
	if f.err != nil {
		return &dbus.Call{Err: f.err}
	}
	return &dbus.Call{Body: []interface{}{uint32(42)}}
}

func TestDesktopSinkNotify(t *testing.T) {
	obj := &fakeBusObject{}
	sink := newDesktopSink(obj, "Site Time Tracker", zerolog.Nop())

	err := sink.Notify("Daily Limit Exceeded", "Total browsing time today: 1m")
	require.NoError(t, err)

	require.Equal(t, "org.freedesktop.Notifications.Notify", obj.method)
	require.Len(t, obj.args, 8)
	require.Equal(t, "Site Time Tracker", obj.args[0])
	require.Equal(t, uint32(0), obj.args[1])
	require.Equal(t, "Daily Limit Exceeded", obj.args[3])
	require.Equal(t, "Total browsing time today: 1m", obj.args[4])
	require.Equal(t, int32(-1), obj.args[7])
}

func TestDesktopSinkError(t *testing.T) {
	obj := &fakeBusObject{err: errors.New("service unknown")}
	sink := newDesktopSink(obj, "Site Time Tracker", zerolog.Nop())

	err := sink.Notify("t", "m")
	require.ErrorContains(t, err, "service unknown")
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf))

	require.NoError(t, sink.Notify("Daily Limit Exceeded", "Total browsing time today: 2m"))
	require.Contains(t, buf.String(), `"title":"Daily Limit Exceeded"`)
	require.Contains(t, buf.String(), "Total browsing time today: 2m")
	require.Contains(t, buf.String(), `"component":"notify"`)
}

func TestNewDefaultsToLog(t *testing.T) {
	_, ok := New("log", "app", zerolog.Nop()).(*LogSink)
	require.True(t, ok)
}
