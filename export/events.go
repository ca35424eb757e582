package export

import (
	"github.com/charmbracelet/log"

	"github.com/betaflight/blackbox-go/blackbox"
)

// EventJournal renders each decoded event as one structured log line,
// covering SYNC_BEEP, INFLIGHT_ADJUSTMENT, LOGGING_RESUME and LOG_END.
// It's a thin adaptor over an EventReadyFunc callback so callers wire it
// straight into Log.Parse.
type EventJournal struct {
	logger *log.Logger
}

// NewEventJournal wraps logger, or the charmbracelet/log default logger if
// nil.
func NewEventJournal(logger *log.Logger) *EventJournal {
	if logger == nil {
		logger = log.Default()
	}
	return &EventJournal{logger: logger}
}

// Record is an EventReadyFunc suitable for Log.Parse.
func (j *EventJournal) Record(e blackbox.Event) {
	switch e.Kind {
	case blackbox.EventSyncBeep:
		j.logger.Info("sync beep", "time_us", e.SyncBeepTime)
	case blackbox.EventInflightAdjustment:
		if e.AdjustmentIsFloat {
			j.logger.Info("inflight adjustment", "function", e.AdjustmentFunction, "value", e.AdjustmentFloat)
		} else {
			j.logger.Info("inflight adjustment", "function", e.AdjustmentFunction, "value", e.AdjustmentValue)
		}
	case blackbox.EventLoggingResume:
		j.logger.Info("logging resumed", "iteration", e.LogIteration, "time_us", e.ResumeTime)
	case blackbox.EventLogEnd:
		j.logger.Info("end of log")
	default:
		j.logger.Warn("unrecognised event", "kind", e.Kind)
	}
}
