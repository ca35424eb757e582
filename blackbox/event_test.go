package blackbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventSyncBeep(t *testing.T) {
	s := newStream([]byte{byte(EventSyncBeep), 0x05}, 0, 2)
	e, ok := parseEvent(s, 1_000_000)
	require.True(t, ok)
	assert.Equal(t, EventSyncBeep, e.Kind)
	assert.EqualValues(t, 1_000_005, e.SyncBeepTime)
}

func TestParseEventInflightAdjustmentInteger(t *testing.T) {
	s := newStream([]byte{byte(EventInflightAdjustment), 0x01, 0x01}, 0, 3)
	e, ok := parseEvent(s, 0)
	require.True(t, ok)
	assert.False(t, e.AdjustmentIsFloat)
	assert.Equal(t, 1, e.AdjustmentFunction)
	assert.EqualValues(t, -1, e.AdjustmentValue)
}

func TestParseEventInflightAdjustmentFloat(t *testing.T) {
	data := []byte{byte(EventInflightAdjustment), 200, 0x00, 0x00, 0x80, 0x3F}
	s := newStream(data, 0, len(data))
	e, ok := parseEvent(s, 0)
	require.True(t, ok)
	assert.True(t, e.AdjustmentIsFloat)
	assert.InDelta(t, 1.0, float64(e.AdjustmentFloat), 1e-9)
}

func TestParseEventLoggingResume(t *testing.T) {
	s := newStream([]byte{byte(EventLoggingResume), 0x0A, 0x05}, 0, 3)
	e, ok := parseEvent(s, 2_000_000)
	require.True(t, ok)
	assert.EqualValues(t, 10, e.LogIteration)
	assert.EqualValues(t, 2_000_005, e.ResumeTime)
}

func TestParseEventLogEndMatches(t *testing.T) {
	data := append([]byte{byte(EventLogEnd)}, []byte(logEndMessage)...)
	data = append(data, 0xAA) // trailing byte beyond the terminator
	s := newStream(data, 0, len(data))
	e, ok := parseEvent(s, 0)
	require.True(t, ok)
	assert.Equal(t, EventLogEnd, e.Kind)
	assert.Equal(t, len(data)-1, s.end)
}

func TestParseEventLogEndMismatchIsInvalid(t *testing.T) {
	data := append([]byte{byte(EventLogEnd)}, []byte("not the real tail")...)
	s := newStream(data, 0, len(data))
	_, ok := parseEvent(s, 0)
	assert.False(t, ok)
}

func TestParseEventUnknownIDIsInvalid(t *testing.T) {
	s := newStream([]byte{0x42}, 0, 1)
	_, ok := parseEvent(s, 0)
	assert.False(t, ok)
}
