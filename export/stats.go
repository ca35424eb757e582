package export

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/betaflight/blackbox-go/blackbox"
)

var frameTypeNames = map[byte]string{
	'I': "Intraframe",
	'P': "Interframe",
	'G': "GPS",
	'H': "GPS Home",
	'S': "Slow",
	'E': "Event",
}

// PrintStats renders the statistics gathered by the most recent Parse call
// as a boxed summary.
func PrintStats(w io.Writer, l *blackbox.Log) {
	stats := l.Stats()
	if stats == nil {
		fmt.Fprintln(w, "  (no statistics: Parse has not run)")
		return
	}

	sep := strings.Repeat("=", 60)
	fmt.Fprintf(w, "\n%s\n", sep)
	fmt.Fprintf(w, "  Session %s\n", l.ID)
	fmt.Fprintf(w, "%s\n", sep)
	fmt.Fprintf(w, "  Total bytes:           %s\n", formatInt(stats.TotalBytes))
	fmt.Fprintf(w, "  Corrupt frames:        %s\n", formatInt(stats.TotalCorruptFrames))
	fmt.Fprintf(w, "  Skipped P iterations:  %s\n", formatInt(stats.IntentionallyAbsentIterations))

	fmt.Fprintf(w, "\n  Frame counts:\n")
	markers := make([]byte, 0, len(stats.Frame))
	for m := range stats.Frame {
		markers = append(markers, m)
	}
	sort.Slice(markers, func(i, j int) bool { return markers[i] < markers[j] })
	for _, m := range markers {
		fs := stats.Frame[m]
		name, ok := frameTypeNames[m]
		if !ok {
			name = fmt.Sprintf("0x%02x", m)
		}
		fmt.Fprintf(w, "    %-12s valid=%-8s corrupt=%-8s desync=%-8s bytes=%s\n",
			name, formatInt(fs.Valid), formatInt(fs.Corrupt), formatInt(fs.Desync), formatInt(fs.Bytes))
	}

	if fd, ok := l.FrameDefs['I']; ok && len(stats.FieldMin) > 0 {
		fmt.Fprintf(w, "\n  Field ranges:\n")
		for i := 0; i < fd.FieldCount && i < len(stats.FieldMin); i++ {
			fmt.Fprintf(w, "    %-20s %d .. %d\n", fd.FieldName[i], stats.FieldMin[i], stats.FieldMax[i])
		}
	}

	fmt.Fprintf(w, "%s\n\n", sep)
}

func formatInt(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var result []byte
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, byte(c))
	}
	if neg {
		return "-" + string(result)
	}
	return string(result)
}
