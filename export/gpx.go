package export

import (
	"bufio"
	"fmt"
	"os"
	"time"
)

// gpsDegreesDivider is the fixed-point scale GPS coordinate fields are
// encoded at on the wire (degrees * 1e7).
const gpsDegreesDivider = 10_000_000

// GPXWriter accumulates GPS fixes into a GPX 1.1 track. The preamble is
// written lazily on the first point so an empty GPS session produces no
// file at all.
type GPXWriter struct {
	path      string
	startedAt time.Time

	file    *os.File
	w       *bufio.Writer
	started bool
	points  int
}

// NewGPXWriter prepares a writer for outputPath. start is the session's
// "Log start datetime" header value (zero if absent), used to turn each
// point's microsecond offset into an absolute timestamp.
func NewGPXWriter(outputPath string, start time.Time) *GPXWriter {
	return &GPXWriter{path: outputPath, startedAt: start}
}

func (g *GPXWriter) open() error {
	f, err := os.Create(g.path)
	if err != nil {
		return err
	}
	g.file = f
	g.w = bufio.NewWriter(f)

	fmt.Fprint(g.w, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	fmt.Fprint(g.w, "<gpx creator=\"Blackbox flight data recorder\" version=\"1.1\" "+
		"xmlns=\"http://www.topografix.com/GPX/1/1\" xmlns:xsi=\"http://www.w3.org/2001/XMLSchema-instance\" "+
		"xsi:schemaLocation=\"http://www.topografix.com/GPX/1/1 http://www.topografix.com/GPX/1/1/gpx.xsd\">\n")
	fmt.Fprint(g.w, "<metadata><name>Blackbox flight log</name></metadata>\n")
	fmt.Fprint(g.w, "<trk><name>Blackbox flight log</name><trkseg>\n")
	g.started = true
	return nil
}

// AddPoint appends one trackpoint. lat/lon are raw wire values (degrees *
// 1e7); microseconds is the frame's time field, or -1 to omit the <time>
// element when no wall-clock reference exists.
func (g *GPXWriter) AddPoint(microseconds int64, lat, lon int32, altitudeM float32) error {
	if !g.started {
		if err := g.open(); err != nil {
			return err
		}
	}

	latDeg := float64(lat) / gpsDegreesDivider
	lonDeg := float64(lon) / gpsDegreesDivider

	fmt.Fprintf(g.w, "  <trkpt lat=\"%.7f\" lon=\"%.7f\"><ele>%.2f</ele>", latDeg, lonDeg, altitudeM)

	if microseconds != -1 && !g.startedAt.IsZero() {
		t := g.startedAt.Add(time.Duration(microseconds) * time.Microsecond).UTC()
		fmt.Fprintf(g.w, "<time>%s</time>", t.Format("2006-01-02T15:04:05.000000Z"))
	}
	fmt.Fprint(g.w, "</trkpt>\n")

	g.points++
	return g.w.Flush()
}

// Points returns the number of trackpoints written so far.
func (g *GPXWriter) Points() int {
	return g.points
}

// Close writes the trailing elements and closes the file. Calling Close
// without ever calling AddPoint is a no-op, leaving no file on disk.
func (g *GPXWriter) Close() error {
	if !g.started {
		return nil
	}
	fmt.Fprint(g.w, "</trkseg></trk>\n</gpx>")
	if err := g.w.Flush(); err != nil {
		g.file.Close()
		return err
	}
	return g.file.Close()
}
