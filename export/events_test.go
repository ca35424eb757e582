package export

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"

	"github.com/betaflight/blackbox-go/blackbox"
)

func TestEventJournalRecordsSyncBeep(t *testing.T) {
	var buf bytes.Buffer
	j := NewEventJournal(log.New(&buf))

	j.Record(blackbox.Event{Kind: blackbox.EventSyncBeep, SyncBeepTime: 42})

	assert.Contains(t, buf.String(), "sync beep")
	assert.Contains(t, buf.String(), "42")
}

func TestEventJournalRecordsLogEnd(t *testing.T) {
	var buf bytes.Buffer
	j := NewEventJournal(log.New(&buf))

	j.Record(blackbox.Event{Kind: blackbox.EventLogEnd})

	assert.Contains(t, buf.String(), "end of log")
}

func TestEventJournalDefaultsLoggerWhenNil(t *testing.T) {
	j := NewEventJournal(nil)
	assert.NotNil(t, j.logger)
}
