// Package blackbox decodes binary flight-data-recorder logs produced by
// Betaflight/Cleanflight-family flight controllers ("blackbox" logs) into
// structured frames, delivered to the caller through callbacks.
//
// A single input file may contain several concatenated log sessions, one per
// arming. Each session starts with a text header declaring field names,
// signedness, prediction rules and encodings, followed by a stream of
// typed, bit/byte-packed frames that reference previous frames to recover
// predicted deltas.
package blackbox

import (
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Limits exposed to callers, matching the wire format's own limits.
const (
	FieldsMax   = 128 // max logical fields per frame type
	MaxFrameLen = 256 // max bytes in one frame, including the marker
	MaxLogs     = 128 // max concatenated log sessions per file

	FieldIndexIteration = 0
	FieldIndexTime      = 1

	MaxIterJump = 5000
	MaxTimeJump = 10_000_000 // microseconds

	SerialBufLen = 1024 // bound for the character-device refill adaptor
)

// FirmwareType identifies the dialect of the recording flight controller.
type FirmwareType int

const (
	FirmwareUnknown FirmwareType = iota
	FirmwareBaseflight
	FirmwareCleanflight
)

// Predictor is one of the twelve prediction rules applied to a decoded delta.
type Predictor int

const (
	PredictorNone              Predictor = 0
	PredictorPrevious          Predictor = 1
	PredictorStraightLine      Predictor = 2
	PredictorAverage2          Predictor = 3
	PredictorMinthrottle       Predictor = 4
	PredictorMotor0            Predictor = 5
	PredictorInc               Predictor = 6
	PredictorHomeCoord         Predictor = 7
	Predictor1500              Predictor = 8
	PredictorVbatref           Predictor = 9
	PredictorLastMainFrameTime Predictor = 10
	PredictorMinMotor          Predictor = 11
	// PredictorHomeCoord1 does not appear on the wire; once the header is
	// read, Parse rewrites the second of each HOME_COORD pair in the 'G'
	// frame definition to this value so dispatch can stay a flat switch.
	PredictorHomeCoord1 Predictor = 256
)

// Encoding selects the codec used to read a field's delta from the stream.
type Encoding int

const (
	EncodingSignedVB      Encoding = 0
	EncodingUnsignedVB    Encoding = 1
	EncodingNeg14Bit      Encoding = 3
	EncodingEliasDeltaU32 Encoding = 4
	EncodingEliasDeltaS32 Encoding = 5
	EncodingTag8_8SVB     Encoding = 6
	EncodingTag2_3S32     Encoding = 7
	EncodingTag8_4S16     Encoding = 8
	EncodingNull          Encoding = 9
	EncodingEliasGammaU32 Encoding = 10
	EncodingEliasGammaS32 Encoding = 11
)

// FrameDef holds the field layout for one frame-type marker.
type FrameDef struct {
	FieldCount  int
	FieldName   []string
	FieldSigned []bool
	Predictor   []Predictor
	Encoding    []Encoding
	FieldWidth  []int // bytes; default 4, only 8 otherwise accepted
}

// SysConfig holds system configuration parsed from header key/value lines.
type SysConfig struct {
	Minthrottle, Maxthrottle        int
	MotorOutputLow, MotorOutputHigh int
	Vbatref                         int
	Vbatscale                       int
	VbatMinCellVoltage              int
	VbatMaxCellVoltage              int
	VbatWarningCellVoltage          int
	CurrentMeterOffset              int
	CurrentMeterScale               int
	RcRate                          int
	YawRate                         int
	Acc1G                           int
	GyroScale                       float64 // radians per microsecond once adjusted

	FirmwareType    FirmwareType
	FirmwareVersion string

	DataVersion int

	// LogStartDateTime is the epoch seconds parsed from "Log start datetime",
	// used to timestamp GPX output. Zero means absent.
	LogStartDateTime int64

	IIntervalRaw int // "I interval" value, default-cased to >= 1
	PNum, PDenom int
}

func defaultSysConfig() SysConfig {
	return SysConfig{
		Minthrottle:            1150,
		Maxthrottle:            1850,
		MotorOutputLow:         1150,
		MotorOutputHigh:        1850,
		Vbatref:                4095,
		Vbatscale:              110,
		VbatMinCellVoltage:     33,
		VbatMaxCellVoltage:     43,
		VbatWarningCellVoltage: 35,
		CurrentMeterOffset:     0,
		CurrentMeterScale:      400,
		RcRate:                 90,
		Acc1G:                  1,
		GyroScale:              1,
		IIntervalRaw:           32,
		PNum:                   1,
		PDenom:                 1,
	}
}

// FieldIndexes are the semantic indexes of well-known fields, -1 if absent.
type FieldIndexes struct {
	LoopIteration int
	Time          int

	Motor               [8]int
	RcCommand           [4]int
	AxisP, AxisI, AxisD [3]int
	GyroADC, GyroData   [3]int
	AccSmooth           [3]int
	MagADC              [3]int
	Servo               [8]int
	VbatLatest          int
	AmperageLatest      int
	BaroAlt             int
	SonarRaw            int
	Rssi                int

	GPSTime         int
	GPSNumSat       int
	GPSAltitude     int
	GPSSpeed        int
	GPSGroundCourse int
	GPSCoord        [2]int
	GPSHome         [2]int

	FlightModeFlags int
	StateFlags      int
	FailsafePhase   int
}

func newFieldIndexes() FieldIndexes {
	var fi FieldIndexes
	v := -1
	fi.LoopIteration = v
	fi.Time = v
	for i := range fi.Motor {
		fi.Motor[i] = v
	}
	for i := range fi.RcCommand {
		fi.RcCommand[i] = v
	}
	for i := 0; i < 3; i++ {
		fi.AxisP[i], fi.AxisI[i], fi.AxisD[i] = v, v, v
		fi.GyroADC[i], fi.GyroData[i] = v, v
		fi.AccSmooth[i] = v
		fi.MagADC[i] = v
	}
	for i := range fi.Servo {
		fi.Servo[i] = v
	}
	fi.VbatLatest = v
	fi.AmperageLatest = v
	fi.BaroAlt = v
	fi.SonarRaw = v
	fi.Rssi = v
	fi.GPSTime = v
	fi.GPSNumSat = v
	fi.GPSAltitude = v
	fi.GPSSpeed = v
	fi.GPSGroundCourse = v
	fi.GPSCoord[0], fi.GPSCoord[1] = v, v
	fi.GPSHome[0], fi.GPSHome[1] = v, v
	fi.FlightModeFlags = v
	fi.StateFlags = v
	fi.FailsafePhase = v
	return fi
}

// EventKind identifies the payload carried by an E-frame.
type EventKind int

const (
	EventSyncBeep           EventKind = 0
	EventInflightAdjustment EventKind = 13
	EventLoggingResume      EventKind = 14
	EventFlightMode         EventKind = 30
	EventLogEnd             EventKind = 255
)

// Event is a tagged union of event payloads.
type Event struct {
	Kind EventKind

	SyncBeepTime int64

	AdjustmentFunction int
	AdjustmentValue    int64
	AdjustmentFloat    float32
	AdjustmentIsFloat  bool

	LogIteration uint32
	ResumeTime   int64
}

// FrameStats carries the counters kept for one frame type.
type FrameStats struct {
	Valid     int
	Corrupt   int
	Desync    int
	Bytes     int
	SizeCount [MaxFrameLen + 1]int
}

// Stats aggregates everything a Parse call counts: per-frame-type
// counters, per-field min/max, and the log-wide totals.
type Stats struct {
	Frame                         map[byte]*FrameStats
	FieldMin, FieldMax            []int64
	IntentionallyAbsentIterations int
	TotalBytes                    int
	TotalCorruptFrames            int

	haveFieldStats bool
}

func newStats() *Stats {
	return &Stats{Frame: make(map[byte]*FrameStats)}
}

func (s *Stats) forType(t byte) *FrameStats {
	fs, ok := s.Frame[t]
	if !ok {
		fs = &FrameStats{}
		s.Frame[t] = fs
	}
	return fs
}

// Log is a handle to a blackbox file (or captured window) and all the
// sessions discovered in it, plus the decoder state of the session most
// recently passed to Parse.
// Callbacks receive only borrowed references into the handle's buffers;
// implementations must not retain them past the callback's return.
type Log struct {
	ID uuid.UUID

	// Logger, when non-nil, receives debug-level traces of stream
	// corruption and resynchronisation. Decoding itself never logs at
	// higher levels; callbacks are the primary output.
	Logger *log.Logger

	data     []byte
	logBegin int
	logEnd   int

	// wholeWindow marks data captured from a non-seekable source (a
	// character device): the entire buffer is one session and no
	// start-of-log marker scan applies.
	wholeWindow bool

	FrameDefs map[byte]*FrameDef
	Config    SysConfig
	Fields    FieldIndexes

	state     parserState
	lastStats *Stats
}

func (l *Log) trace(msg string, keyvals ...interface{}) {
	if l.Logger != nil {
		l.Logger.Debug(msg, keyvals...)
	}
}

type parserState int

const (
	stateHeader parserState = iota
	stateTransition
	stateData
)
