package blackbox

// Event payload decoding. An unrecognised event id, or a LOG_END whose
// trailing bytes don't match the literal terminator, leaves ok=false so the
// caller drops the frame silently.

const logEndMessage = "End of log\x00"

// parseEvent reads one event payload from s, given the rollover accumulator
// already recovered for this log. It returns ok=false for any event id (or
// LOG_END terminator) that doesn't decode cleanly; event markers frequently
// turn up in garbage data, so those are dropped without ceremony.
func parseEvent(s *stream, rolloverAccumulator int64) (Event, bool) {
	kind := EventKind(s.readByte())

	switch kind {
	case EventSyncBeep:
		t := int64(s.readUnsignedVB()) + rolloverAccumulator
		return Event{Kind: kind, SyncBeepTime: t}, true

	case EventInflightAdjustment:
		fn := s.readByte()
		ev := Event{Kind: kind, AdjustmentFunction: fn}
		if fn > 127 {
			ev.AdjustmentIsFloat = true
			ev.AdjustmentFloat = s.readRawFloat()
		} else {
			ev.AdjustmentValue = int64(s.readSignedVB())
		}
		return ev, true

	case EventLoggingResume:
		iter := s.readUnsignedVB()
		t := int64(s.readUnsignedVB()) + rolloverAccumulator
		return Event{Kind: kind, LogIteration: iter, ResumeTime: t}, true

	case EventLogEnd:
		var buf [len(logEndMessage)]byte
		n := s.read(buf[:])
		if n == len(buf) && string(buf[:]) == logEndMessage {
			s.end = s.pos
			return Event{Kind: kind}, true
		}
		return Event{}, false

	default:
		return Event{}, false
	}
}
