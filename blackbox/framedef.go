package blackbox

import "strconv"

// identifyFields scans a frame definition's field names for well-known
// names and records their positions in l.Fields, so predictors and
// consumers can find e.g. the time or GPS coordinate fields by index
// without depending on header ordering.
func identifyFields(l *Log, marker byte, fd *FrameDef) {
	for i, name := range fd.FieldName {
		base, idx := splitIndexedName(name)
		switch marker {
		case 'I', 'P':
			assignMainField(&l.Fields, base, idx, i)
		case 'G', 'H':
			assignGPSField(&l.Fields, base, idx, i)
		case 'S':
			assignSlowField(&l.Fields, base, i)
		}
	}
}

// splitIndexedName splits "motor[2]" into ("motor", 2); names without a
// bracket suffix return index -1.
func splitIndexedName(name string) (string, int) {
	open := -1
	for i := 0; i < len(name); i++ {
		if name[i] == '[' {
			open = i
			break
		}
	}
	if open < 0 || name[len(name)-1] != ']' {
		return name, -1
	}
	idx, err := strconv.Atoi(name[open+1 : len(name)-1])
	if err != nil {
		return name, -1
	}
	return name[:open], idx
}

func assignMainField(fi *FieldIndexes, base string, idx, pos int) {
	switch base {
	case "loopIteration":
		fi.LoopIteration = pos
	case "time":
		fi.Time = pos
	case "motor":
		setIndexed(fi.Motor[:], idx, pos)
	case "rcCommand":
		setIndexed(fi.RcCommand[:], idx, pos)
	case "axisP":
		setIndexed(fi.AxisP[:], idx, pos)
	case "axisI":
		setIndexed(fi.AxisI[:], idx, pos)
	case "axisD":
		setIndexed(fi.AxisD[:], idx, pos)
	case "gyroADC":
		setIndexed(fi.GyroADC[:], idx, pos)
	case "gyroData":
		setIndexed(fi.GyroData[:], idx, pos)
	case "accSmooth":
		setIndexed(fi.AccSmooth[:], idx, pos)
	case "magADC":
		setIndexed(fi.MagADC[:], idx, pos)
	case "servo":
		setIndexed(fi.Servo[:], idx, pos)
	case "vbatLatest":
		fi.VbatLatest = pos
	case "amperageLatest":
		fi.AmperageLatest = pos
	case "BaroAlt":
		fi.BaroAlt = pos
	case "sonarRaw":
		fi.SonarRaw = pos
	case "rssi":
		fi.Rssi = pos
	}
}

func assignGPSField(fi *FieldIndexes, base string, idx, pos int) {
	switch base {
	case "time":
		fi.GPSTime = pos
	case "GPS_numSat":
		fi.GPSNumSat = pos
	case "GPS_altitude":
		fi.GPSAltitude = pos
	case "GPS_speed":
		fi.GPSSpeed = pos
	case "GPS_ground_course":
		fi.GPSGroundCourse = pos
	case "GPS_coord":
		setIndexed(fi.GPSCoord[:], idx, pos)
	case "GPS_home":
		setIndexed(fi.GPSHome[:], idx, pos)
	}
}

func assignSlowField(fi *FieldIndexes, base string, pos int) {
	switch base {
	case "flightModeFlags":
		fi.FlightModeFlags = pos
	case "stateFlags":
		fi.StateFlags = pos
	case "failsafePhase":
		fi.FailsafePhase = pos
	}
}

// normalize clamps the field count to FieldsMax and pads the per-field
// arrays out to it, so a header that declares fewer predictors or encodings
// than names still yields a definition the frame parser can index safely.
// Padding takes the defaults: predictor NONE, signed-VB encoding, unsigned,
// 4 bytes wide.
func (fd *FrameDef) normalize() {
	if fd.FieldCount > FieldsMax {
		fd.FieldCount = FieldsMax
		fd.FieldName = fd.FieldName[:FieldsMax]
	}
	for len(fd.FieldSigned) < fd.FieldCount {
		fd.FieldSigned = append(fd.FieldSigned, false)
	}
	for len(fd.Predictor) < fd.FieldCount {
		fd.Predictor = append(fd.Predictor, PredictorNone)
	}
	for len(fd.Encoding) < fd.FieldCount {
		fd.Encoding = append(fd.Encoding, EncodingSignedVB)
	}
	for len(fd.FieldWidth) < fd.FieldCount {
		fd.FieldWidth = append(fd.FieldWidth, 4)
	}
}

func setIndexed(slice []int, idx, pos int) {
	if idx >= 0 && idx < len(slice) {
		slice[idx] = pos
	}
}

// rewriteHomeCoordPairs rewrites every second consecutive HOME_COORD
// predictor in a frame definition to HOME_COORD_1, so per-field predictor
// dispatch can stay a flat switch instead of tracking parity.
func rewriteHomeCoordPairs(fd *FrameDef) {
	run := 0
	for i, p := range fd.Predictor {
		if p == PredictorHomeCoord {
			run++
			if run%2 == 0 {
				fd.Predictor[i] = PredictorHomeCoord1
			}
		} else {
			run = 0
		}
	}
}
