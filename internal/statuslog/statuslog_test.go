package statuslog

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2026, 5, 12, 14, 3, 9, 0, time.Local) }
}

func TestAppend_FormatsLine(t *testing.T) {
	b, err := NewBoard(10, 4, WithClock(fixedClock()))
	require.NoError(t, err)

	line := b.Append("10.0.0.5:5000", "Telemetry sent (200), 3 peers received")
	assert.Equal(t, "[14:03:09] Telemetry sent (200), 3 peers received", line)

	lines, err := b.Lines("10.0.0.5:5000")
	require.NoError(t, err)
	assert.Equal(t, []string{line}, lines)
}

func TestAppend_NewestFirstAndBounded(t *testing.T) {
	b, err := NewBoard(3, 2, WithClock(fixedClock()))
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		b.Append("srv", fmt.Sprintf("msg %d", i))
	}

	lines, err := b.Lines("srv")
	require.NoError(t, err)
	assert.Equal(t, []string{"[14:03:09] msg 5", "[14:03:09] msg 4", "[14:03:09] msg 3"}, lines)
}

func TestNewBoard_Defaults(t *testing.T) {
	b, err := NewBoard(0, 0)
	require.NoError(t, err)

	for i := 0; i < DefaultMaxLines+20; i++ {
		b.Append("srv", "x")
	}
	lines, err := b.Lines("srv")
	require.NoError(t, err)
	assert.Len(t, lines, DefaultMaxLines)

	b.Append("other", "y")
	assert.Len(t, b.Logs(), minServers)
}

func TestSlots_FirstSeenOrder(t *testing.T) {
	b, err := NewBoard(10, 4)
	require.NoError(t, err)

	b.Append("a:1", "x")
	b.Append("b:2", "x")
	b.Append("c:3", "x")

	logs := b.Logs()
	require.Len(t, logs, 3)
	for i, want := range []string{"a:1", "b:2", "c:3"} {
		assert.Equal(t, want, logs[i].Server)
		assert.Equal(t, i, logs[i].Slot)
	}
}

func TestSlots_EvictLeastRecentlyWritten(t *testing.T) {
	b, err := NewBoard(10, 2)
	require.NoError(t, err)

	b.Append("a", "1")
	b.Append("b", "1")
	b.Append("a", "2") // b is now least recently written
	b.Append("c", "1")

	_, err = b.Lines("b")
	assert.ErrorIs(t, err, ErrUnknownServer)

	logs := b.Logs()
	require.Len(t, logs, 2)
	assert.Equal(t, "a", logs[0].Server)
	assert.Equal(t, 0, logs[0].Slot)
	assert.Equal(t, "c", logs[1].Server)
	assert.Equal(t, 1, logs[1].Slot)

	lines, err := b.Lines("a")
	require.NoError(t, err)
	assert.Len(t, lines, 2)
}

func TestClear_KeepsSlot(t *testing.T) {
	b, err := NewBoard(10, 2)
	require.NoError(t, err)
	b.Append("a", "1")

	b.Clear("a")
	b.Clear("missing")

	lines, err := b.Lines("a")
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.Len(t, b.Logs(), 1)
}

func TestSink_AppendsStatusLines(t *testing.T) {
	b, err := NewBoard(10, 2, WithClock(fixedClock()))
	require.NoError(t, err)

	s := b.Sink()
	s.StatusLine("srv", "Server: 401 - unauthorized, login again")
	s.ReauthRequired("srv")
	s.PeersUpdated(nil)

	lines, err := b.Lines("srv")
	require.NoError(t, err)
	assert.Equal(t, []string{"[14:03:09] Server: 401 - unauthorized, login again"}, lines)
}
