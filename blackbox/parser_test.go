package blackbox

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mainHeader builds the session marker plus a two-field I/P definition
// (loopIteration, time; both NONE-predicted unsigned-VB) used by most of
// these scenarios.
func mainHeader() string {
	return logMarker +
		"H Field I name:loopIteration,time\n" +
		"H Field I signed:0,0\n" +
		"H Field I predictor:0,0\n" +
		"H Field I encoding:1,1\n" +
		"H Field P predictor:0,0\n" +
		"H Field P encoding:1,1\n" +
		"H I interval:1\n"
}

// vbEncode mirrors readUnsignedVB's wire format: 7 bits per byte, high bit
// set on every byte but the last.
func vbEncode(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		out = append(out, b)
		return out
	}
}

func iFrame(iteration, time uint32) []byte {
	return append(append([]byte{'I'}, vbEncode(iteration)...), vbEncode(time)...)
}

func pFrame(iteration, time uint32) []byte {
	return append(append([]byte{'P'}, vbEncode(iteration)...), vbEncode(time)...)
}

type recordedFrame struct {
	valid     bool
	frameType byte
	values    []int64
}

func collectFrames(t *testing.T, data []byte) (frames []recordedFrame, metadataCalls int, events []Event) {
	t.Helper()
	l, err := Open(data)
	require.NoError(t, err)
	return collectSessionFrames(t, l)
}

func collectSessionFrames(t *testing.T, l *Log) (frames []recordedFrame, metadataCalls int, events []Event) {
	t.Helper()
	ok, err := l.Parse(0, false,
		func(*Log) { metadataCalls++ },
		func(valid bool, frame []int64, frameType byte, fieldCount int, frameOffset, frameSize int) {
			var values []int64
			if frame != nil {
				values = append([]int64(nil), frame[:fieldCount]...)
			}
			frames = append(frames, recordedFrame{valid: valid, frameType: frameType, values: values})
		},
		func(e Event) { events = append(events, e) },
	)
	require.NoError(t, err)
	require.True(t, ok)
	return frames, metadataCalls, events
}

func TestParseMinimalIOnlyLog(t *testing.T) {
	data := []byte(mainHeader())
	data = append(data, iFrame(0, 100)...)

	frames, metadataCalls, _ := collectFrames(t, data)
	require.Equal(t, 1, metadataCalls)
	require.Len(t, frames, 1)
	assert.True(t, frames[0].valid)
	assert.Equal(t, byte('I'), frames[0].frameType)
	assert.Equal(t, []int64{0, 100}, frames[0].values)
}

func TestParseIThenP(t *testing.T) {
	data := []byte(mainHeader())
	data = append(data, iFrame(0, 100)...)
	data = append(data, pFrame(1, 110)...)

	frames, _, _ := collectFrames(t, data)
	require.Len(t, frames, 2)
	assert.True(t, frames[1].valid)
	assert.Equal(t, byte('P'), frames[1].frameType)
	assert.Equal(t, []int64{1, 110}, frames[1].values)
}

func TestParseValidationRejectsBackwardsIteration(t *testing.T) {
	data := []byte(mainHeader())
	data = append(data, iFrame(5, 100)...)
	data = append(data, pFrame(2, 110)...) // iteration moved backwards

	frames, _, _ := collectFrames(t, data)
	require.Len(t, frames, 2)
	assert.True(t, frames[0].valid)
	assert.False(t, frames[1].valid)
}

func TestParseCorruptMarkerRecovery(t *testing.T) {
	data := []byte(mainHeader())
	data = append(data, iFrame(0, 100)...)
	data = append(data, 0x7F) // garbage marker between two I-frames
	data = append(data, iFrame(1, 110)...)

	l, err := Open(data)
	require.NoError(t, err)
	l.Logger = log.New(io.Discard) // exercise the corruption trace path

	var frames []recordedFrame
	ok, err := l.Parse(0, false, nil, func(valid bool, frame []int64, frameType byte, fieldCount int, frameOffset, frameSize int) {
		frames = append(frames, recordedFrame{valid: valid, frameType: frameType})
	}, nil)
	require.NoError(t, err)
	require.True(t, ok)

	require.Len(t, frames, 2)
	assert.True(t, frames[0].valid)
	assert.True(t, frames[1].valid) // I-frame revalidates the stream
	assert.Equal(t, 1, l.Stats().TotalCorruptFrames)
}

func TestParseLogEndEventTerminatesCleanly(t *testing.T) {
	data := []byte(mainHeader())
	data = append(data, iFrame(0, 100)...)
	data = append(data, 'E', byte(EventLogEnd))
	data = append(data, []byte(logEndMessage)...)
	data = append(data, []byte("trailing garbage that must not be parsed")...)

	frames, _, events := collectFrames(t, data)
	require.Len(t, frames, 1)
	require.Len(t, events, 1)
	assert.Equal(t, EventLogEnd, events[0].Kind)
}

func TestParseTimestampRolloverAccumulates(t *testing.T) {
	data := []byte(mainHeader())
	data = append(data, iFrame(0, 0xFFFFFFFA)...) // 5 ticks before 32-bit wraparound
	data = append(data, pFrame(1, 5)...)          // wrapped back around to a small value

	frames, _, _ := collectFrames(t, data)
	require.Len(t, frames, 2)
	assert.True(t, frames[1].valid)
	assert.Greater(t, frames[1].values[1], frames[0].values[1])
}

func TestParseRolloverReportsExtendedTime(t *testing.T) {
	data := []byte(mainHeader())
	data = append(data, iFrame(0, 0xFFFFFF00)...)
	data = append(data, iFrame(1, 0x00000100)...)

	frames, _, _ := collectFrames(t, data)
	require.Len(t, frames, 2)
	assert.Equal(t, int64(0xFFFFFF00), frames[0].values[1])
	assert.Equal(t, int64(0x100000100), frames[1].values[1])
}

func TestParseInterframeIncPredictor(t *testing.T) {
	data := []byte(logMarker +
		"H Field I name:loopIteration,time\n" +
		"H Field I signed:0,0\n" +
		"H Field I predictor:0,0\n" +
		"H Field I encoding:1,1\n" +
		"H Field P predictor:6,1\n" + // INC iteration, PREVIOUS-predicted time
		"H Field P encoding:0,1\n" +
		"H I interval:1\n")
	data = append(data, iFrame(10, 1000)...)
	data = append(data, 'P')
	data = append(data, vbEncode(100)...) // time delta only; INC carries no bits

	frames, _, _ := collectFrames(t, data)
	require.Len(t, frames, 2)
	assert.True(t, frames[1].valid)
	assert.Equal(t, []int64{11, 1100}, frames[1].values)
}

func TestOpenRejectsDataWithoutMarker(t *testing.T) {
	_, err := Open([]byte("not a blackbox log at all"))
	assert.ErrorIs(t, err, ErrBadMagic)
}

// A serial capture may miss the arming marker entirely; OpenStream must
// still treat the whole buffer as one session and decode it.
func TestOpenStreamDecodesMarkerlessCapture(t *testing.T) {
	data := []byte("H Field I name:loopIteration,time\n" +
		"H Field I signed:0,0\n" +
		"H Field I predictor:0,0\n" +
		"H Field I encoding:1,1\n" +
		"H I interval:1\n")
	data = append(data, iFrame(0, 100)...)

	_, err := Open(data)
	require.ErrorIs(t, err, ErrBadMagic)

	l, err := OpenStream(data)
	require.NoError(t, err)
	assert.Equal(t, 1, l.Count())

	frames, _, _ := collectSessionFrames(t, l)
	require.Len(t, frames, 1)
	assert.True(t, frames[0].valid)
	assert.Equal(t, []int64{0, 100}, frames[0].values)
}

func TestOpenStreamRejectsEmptyCapture(t *testing.T) {
	_, err := OpenStream(nil)
	assert.ErrorIs(t, err, ErrEmptyMapping)
}

// Even when the capture does start on the arming marker, OpenStream keeps
// the whole window as a single session rather than re-scanning for markers.
func TestOpenStreamIgnoresEmbeddedMarkers(t *testing.T) {
	data := []byte(mainHeader())
	data = append(data, iFrame(0, 100)...)

	l, err := OpenStream(data)
	require.NoError(t, err)
	assert.Equal(t, 1, l.Count())

	frames, metadataCalls, _ := collectSessionFrames(t, l)
	require.Equal(t, 1, metadataCalls)
	require.Len(t, frames, 1)
	assert.Equal(t, []int64{0, 100}, frames[0].values)
}

func TestOpenRejectsEmptyData(t *testing.T) {
	_, err := Open(nil)
	assert.ErrorIs(t, err, ErrEmptyMapping)
}

func TestParseRejectsMissingIFrameDefinition(t *testing.T) {
	data := []byte(logMarker + "H minthrottle:1100\n")
	l, err := Open(data)
	require.NoError(t, err)

	ok, err := l.Parse(0, false, nil, nil, nil)
	assert.ErrorIs(t, err, ErrNoIFrames)
	assert.False(t, ok)
}

func TestParseRejectsOutOfRangeLogIndex(t *testing.T) {
	data := []byte(logMarker + "H Field I name:loopIteration,time\n")
	l, err := Open(data)
	require.NoError(t, err)

	ok, err := l.Parse(1, false, nil, nil, nil)
	assert.ErrorIs(t, err, ErrLogIndexRange)
	assert.False(t, ok)
}

func TestParseRejectsUnknownFieldEncoding(t *testing.T) {
	data := []byte(logMarker +
		"H Field I name:loopIteration\n" +
		"H Field I signed:0\n" +
		"H Field I predictor:0\n" +
		"H Field I encoding:99\n")
	data = append(data, 'I', 0x00)

	l, err := Open(data)
	require.NoError(t, err)

	_, err = l.Parse(0, false, nil, nil, nil)
	assert.ErrorIs(t, err, ErrUnknownEncoding)
}

func TestParseMissingMotor0PredictorIsAnError(t *testing.T) {
	data := []byte(logMarker +
		"H Field I name:loopIteration,time,throttle\n" +
		"H Field I signed:0,0,0\n" +
		"H Field I predictor:0,0,5\n" + // MOTOR_0, but no motor[0] field is named
		"H Field I encoding:1,1,1\n")
	data = append(data, iFrame(0, 100)...)
	data = append(data, 0x01)

	l, err := Open(data)
	require.NoError(t, err)

	_, err = l.Parse(0, false, nil, nil, nil)
	assert.ErrorIs(t, err, ErrMissingMotor0)
}
