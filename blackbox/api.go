package blackbox

import "github.com/google/uuid"

// Open maps data as the backing store for a blackbox log file and discovers
// the concatenated sessions within it. The returned Log is not yet parsed;
// call Parse once per session index of interest.
func Open(data []byte) (*Log, error) {
	if len(data) == 0 {
		return nil, ErrEmptyMapping
	}
	if len(discoverLogs(data)) == 0 {
		return nil, ErrBadMagic
	}
	return newLog(data, false), nil
}

// OpenStream wraps data captured from a non-seekable source such as a
// character device, where the start-of-log marker may be missing or lie
// mid-buffer. The whole window is treated as a single session; Parse still
// returns ErrNoIFrames if no usable header is present.
func OpenStream(data []byte) (*Log, error) {
	if len(data) == 0 {
		return nil, ErrEmptyMapping
	}
	return newLog(data, true), nil
}

func newLog(data []byte, wholeWindow bool) *Log {
	return &Log{
		ID:          uuid.New(),
		data:        data,
		wholeWindow: wholeWindow,
		FrameDefs:   make(map[byte]*FrameDef),
		Config:      defaultSysConfig(),
		Fields:      newFieldIndexes(),
		state:       stateHeader,
	}
}

// Count returns the number of log sessions in the backing data: one per
// start-of-log marker for file-backed handles, always 1 for OpenStream.
func (l *Log) Count() int {
	return len(l.sessionRanges())
}

// Stats returns the statistics gathered by the most recent Parse call, or
// nil if Parse has not yet run.
func (l *Log) Stats() *Stats {
	return l.lastStats
}

// Close releases the Log's reference to its backing data; everything tied
// to a handle is dropped together. It is safe to call more than once.
func (l *Log) Close() error {
	l.data = nil
	l.FrameDefs = nil
	l.lastStats = nil
	return nil
}
