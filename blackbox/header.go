package blackbox

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// headerLookaheadBytes bounds the colon lookahead used to distinguish a
// configuration header line from an 'H'-marker GPS-home data frame.
const headerLookaheadBytes = 60

// isHeaderLine reports whether the bytes at s.pos (which must start with
// "H ") look like "H <key>:<value>\n" rather than binary frame payload, by
// requiring a ':' within headerLookaheadBytes before any '\n'.
func isHeaderLine(s *stream) bool {
	if s.pos+2 > s.end || s.data[s.pos] != 'H' || s.data[s.pos+1] != ' ' {
		return false
	}
	limit := s.pos + 2 + headerLookaheadBytes
	if limit > s.end {
		limit = s.end
	}
	for i := s.pos + 2; i < limit; i++ {
		switch s.data[i] {
		case ':':
			return true
		case '\n':
			return false
		}
	}
	return false
}

// readHeaderLine consumes one "H <key>:<value>\n" line and returns key and
// value split at the first ':', untrimmed; parseHeader trims them.
func readHeaderLine(s *stream) (key, value string, ok bool) {
	start := s.pos + 2 // skip "H "
	i := start
	for i < s.end && s.data[i] != '\n' {
		i++
	}
	line := string(s.data[start:i])
	if i < s.end {
		i++ // consume newline
	}
	s.pos = i
	s.bitPos = 0

	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return "", "", false
	}
	return line[:colon], line[colon+1:], true
}

// defaultFieldWidths fills in the width older logging firmware never
// declares a header for: 4 bytes, i.e. "assume 32-bit".
func defaultFieldWidths(n int) []int {
	w := make([]int, n)
	for i := range w {
		w[i] = 4
	}
	return w
}

func ensureFrameDef(l *Log, marker byte) *FrameDef {
	fd, ok := l.FrameDefs[marker]
	if !ok {
		fd = &FrameDef{}
		l.FrameDefs[marker] = fd
	}
	return fd
}

func parseIntList(s string) []int {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, _ := strconv.Atoi(strings.TrimSpace(p))
		out = append(out, v)
	}
	return out
}

// parseHeader consumes the "H "-prefixed lines at the front of one log
// session, populating frame definitions and system configuration.
func (l *Log) parseHeader(s *stream) {
	for {
		if s.atEnd() || s.data[s.pos] != 'H' || !isHeaderLine(s) {
			break
		}
		key, value, ok := readHeaderLine(s)
		if !ok {
			break
		}
		l.applyHeaderKey(strings.TrimSpace(key), strings.TrimSpace(value))
	}
}

func (l *Log) applyHeaderKey(key, value string) {
	switch {
	case strings.HasPrefix(key, "Field ") && strings.HasSuffix(key, " name"):
		marker := fieldMarker(key, " name")
		names := strings.Split(value, ",")
		fd := ensureFrameDef(l, marker)
		fd.FieldName = names
		fd.FieldCount = len(names)
		fd.FieldWidth = defaultFieldWidths(len(names))
		identifyFields(l, marker, fd)
		if marker == 'I' {
			pfd := ensureFrameDef(l, 'P')
			pfd.FieldName = append([]string(nil), names...)
			pfd.FieldCount = len(names)
			pfd.FieldWidth = defaultFieldWidths(len(names))
			identifyFields(l, 'P', pfd)
		}

	case strings.HasPrefix(key, "Field ") && strings.HasSuffix(key, " signed"):
		marker := fieldMarker(key, " signed")
		fd := ensureFrameDef(l, marker)
		ints := parseIntList(value)
		fd.FieldSigned = make([]bool, len(ints))
		for i, v := range ints {
			fd.FieldSigned[i] = v != 0
		}
		if marker == 'I' {
			pfd := ensureFrameDef(l, 'P')
			pfd.FieldSigned = append([]bool(nil), fd.FieldSigned...)
		}

	case strings.HasPrefix(key, "Field ") && strings.HasSuffix(key, " predictor"):
		marker := fieldMarker(key, " predictor")
		fd := ensureFrameDef(l, marker)
		ints := parseIntList(value)
		fd.Predictor = make([]Predictor, len(ints))
		for i, v := range ints {
			fd.Predictor[i] = Predictor(v)
		}

	case strings.HasPrefix(key, "Field ") && strings.HasSuffix(key, " encoding"):
		marker := fieldMarker(key, " encoding")
		fd := ensureFrameDef(l, marker)
		ints := parseIntList(value)
		fd.Encoding = make([]Encoding, len(ints))
		for i, v := range ints {
			fd.Encoding[i] = Encoding(v)
		}

	case key == "I interval":
		n, _ := strconv.Atoi(value)
		if n < 1 {
			n = 1
		}
		l.Config.IIntervalRaw = n

	case key == "P interval":
		num, denom := 1, 1
		parts := strings.SplitN(value, "/", 2)
		if len(parts) == 2 {
			num, _ = strconv.Atoi(parts[0])
			denom, _ = strconv.Atoi(parts[1])
		}
		if denom == 0 {
			denom = 1
		}
		l.Config.PNum, l.Config.PDenom = num, denom

	case key == "Data version":
		l.Config.DataVersion, _ = strconv.Atoi(value)

	case key == "Firmware type":
		if value == "Cleanflight" {
			l.Config.FirmwareType = FirmwareCleanflight
		} else {
			l.Config.FirmwareType = FirmwareBaseflight
		}

	case key == "Firmware revision":
		parts := strings.Fields(value)
		if len(parts) >= 2 && parts[0] == "Betaflight" {
			l.Config.FirmwareVersion = parts[1]
		}

	case key == "minthrottle":
		n, _ := strconv.Atoi(value)
		l.Config.Minthrottle = n
		l.Config.MotorOutputLow = n

	case key == "maxthrottle":
		n, _ := strconv.Atoi(value)
		l.Config.Maxthrottle = n
		l.Config.MotorOutputHigh = n

	case key == "motorOutput":
		parts := strings.SplitN(value, ",", 2)
		if len(parts) == 2 {
			l.Config.MotorOutputLow, _ = strconv.Atoi(strings.TrimSpace(parts[0]))
			l.Config.MotorOutputHigh, _ = strconv.Atoi(strings.TrimSpace(parts[1]))
		}

	case key == "rcRate":
		l.Config.RcRate, _ = strconv.Atoi(value)

	case key == "vbatscale":
		l.Config.Vbatscale, _ = strconv.Atoi(value)

	case key == "vbatref":
		l.Config.Vbatref, _ = strconv.Atoi(value)

	case key == "acc_1G":
		l.Config.Acc1G, _ = strconv.Atoi(value)

	case key == "vbatcellvoltage":
		parts := strings.Split(value, ",")
		ints := make([]int, len(parts))
		for i, p := range parts {
			ints[i], _ = strconv.Atoi(strings.TrimSpace(p))
		}
		switch len(ints) {
		case 1:
			l.Config.VbatMinCellVoltage = ints[0]
			l.Config.VbatWarningCellVoltage = ints[0]
			l.Config.VbatMaxCellVoltage = ints[0]
		case 3:
			l.Config.VbatMinCellVoltage = ints[0]
			l.Config.VbatWarningCellVoltage = ints[1]
			l.Config.VbatMaxCellVoltage = ints[2]
		}

	case key == "currentMeter":
		parts := strings.SplitN(value, ",", 2)
		if len(parts) == 2 {
			l.Config.CurrentMeterOffset, _ = strconv.Atoi(strings.TrimSpace(parts[0]))
			l.Config.CurrentMeterScale, _ = strconv.Atoi(strings.TrimSpace(parts[1]))
		}

	case key == "gyro.scale" || key == "gyro_scale":
		l.Config.GyroScale = parseGyroScale(value, l.Config.FirmwareType)

	case key == "Log start datetime":
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(value)); err == nil {
			l.Config.LogStartDateTime = t.Unix()
		}
	}
}

// fieldMarker extracts the frame-type letter from a "Field <M><suffix>" key.
func fieldMarker(key, suffix string) byte {
	rest := strings.TrimPrefix(key, "Field ")
	rest = strings.TrimSuffix(rest, suffix)
	rest = strings.TrimSpace(rest)
	if len(rest) == 0 {
		return 0
	}
	return rest[0]
}

const piOver180e6 = 3.14159265358979323846 / (180.0 * 1_000_000.0)

// parseGyroScale parses a hex-encoded 32-bit float bit pattern, converting
// to radians-per-microsecond for all firmware except Baseflight.
func parseGyroScale(value string, firmware FirmwareType) float64 {
	v := strings.TrimSpace(value)
	v = strings.TrimPrefix(v, "0x")
	v = strings.TrimPrefix(v, "0X")
	bits, err := strconv.ParseUint(v, 16, 32)
	if err != nil {
		return 0
	}
	f := float64(math.Float32frombits(uint32(bits)))
	if firmware != FirmwareBaseflight {
		f *= piOver180e6
	}
	return f
}
