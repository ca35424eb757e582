package blackbox

// Frame parsing and the driver state machine: per-marker parse/complete
// routines, the three-row main-frame history ring, timestamp rollover
// recovery and resynchronisation after corruption.

const maxHistoryRows = 3

// MetadataReadyFunc fires exactly once, before the first FrameReadyFunc call,
// once the I-frame definition is known.
type MetadataReadyFunc func(l *Log)

// FrameReadyFunc fires once per completed frame, valid or not. frame is a
// borrowed slice into ring state and must not be retained past return.
type FrameReadyFunc func(valid bool, frame []int64, frameType byte, fieldCount int, frameOffset, frameSize int)

// EventReadyFunc fires once per recognised E-frame.
type EventReadyFunc func(e Event)

// parseRun holds the mutable state of one Parse call; a Log may be parsed
// more than once (e.g. once per discovered session) without cross-talk.
type parseRun struct {
	log    *Log
	stream *stream
	raw    bool

	onMetadataReady MetadataReadyFunc
	onFrameReady    FrameReadyFunc
	onEvent         EventReadyFunc

	mainRing                     [maxHistoryRows][]int64
	mainNextSlot                 int
	mainRow0, mainRow1, mainRow2 []int64
	mainStreamValid              bool

	lastGPS      []int64
	gpsHomeRow0  []int64
	gpsHomeRow1  []int64
	gpsHomeValid bool

	lastSlow []int64

	lastEvent      Event
	lastEventValid bool

	rolloverAccumulator    int64
	lastSkippedFrames      uint32
	lastMainFrameIteration int64 // -1 until the first main frame is accepted
	lastMainFrameTime      int64 // -1 until the first main frame is accepted

	stats *Stats

	metadataCalled bool
}

// Parse runs the frame parser over one discovered log session and invokes
// the supplied callbacks synchronously, in stream order. It returns
// ErrLogIndexRange if logIndex is out of range, ErrNoIFrames if the session
// has no I-frame field definitions, and a non-nil error if the header
// declares a predictor the field definitions can't support or the frame
// stream uses an encoding this decoder doesn't recognise. Recoverable
// stream corruption is never an error: it is reported through Stats and the
// valid flag on onFrameReady.
func (l *Log) Parse(logIndex int, raw bool, onMetadataReady MetadataReadyFunc, onFrameReady FrameReadyFunc, onEvent EventReadyFunc) (bool, error) {
	ranges := l.sessionRanges()
	if logIndex < 0 || logIndex >= len(ranges) {
		return false, ErrLogIndexRange
	}

	l.FrameDefs = make(map[byte]*FrameDef)
	l.Config = defaultSysConfig()
	l.Fields = newFieldIndexes()

	pr := &parseRun{
		log:                    l,
		raw:                    raw,
		onMetadataReady:        onMetadataReady,
		onFrameReady:           onFrameReady,
		onEvent:                onEvent,
		mainNextSlot:           1,
		lastMainFrameIteration: -1,
		lastMainFrameTime:      -1,
		stats:                  newStats(),
		lastGPS:                make([]int64, FieldsMax),
		gpsHomeRow0:            make([]int64, FieldsMax),
		gpsHomeRow1:            make([]int64, FieldsMax),
		lastSlow:               make([]int64, FieldsMax),
	}
	for i := range pr.mainRing {
		pr.mainRing[i] = make([]int64, FieldsMax)
	}
	pr.mainRow0 = pr.mainRing[0]

	begin, end := ranges[logIndex][0], ranges[logIndex][1]
	pr.stream = newStream(l.data, begin, end)
	l.logBegin, l.logEnd = begin, end

	l.state = stateHeader
	l.parseHeader(pr.stream)

	if fd, ok := l.FrameDefs['I']; !ok || fd.FieldCount == 0 {
		return false, ErrNoIFrames
	}
	for _, fd := range l.FrameDefs {
		fd.normalize()
	}
	if gfd, ok := l.FrameDefs['G']; ok {
		rewriteHomeCoordPairs(gfd)
	}

	if err := validateFieldReferences(l); err != nil {
		return false, err
	}

	l.state = stateTransition
	for {
		marker := pr.stream.peekChar()
		if marker == streamEOF {
			break
		}

		ops, known := frameTypes[byte(marker)]
		if known && marker != 'E' {
			if _, hasDef := l.FrameDefs[byte(marker)]; !hasDef {
				known = false
			}
		}
		if !known {
			pr.stream.readByte()
			pr.stats.TotalCorruptFrames++
			pr.mainStreamValid = false
			l.trace("unexpected byte in data stream", "byte", marker, "offset", pr.stream.offset()-1)
			continue
		}

		if !pr.metadataCalled {
			if pr.onMetadataReady != nil {
				pr.onMetadataReady(l)
			}
			pr.metadataCalled = true
			l.state = stateData
		}

		frameType := byte(marker)
		pr.stream.readByte() // consume marker

		payloadStart := pr.stream.offset()
		if err := ops.parse(pr, frameType); err != nil {
			return false, err
		}
		payloadSize := pr.stream.offset() - payloadStart

		prematureEOF := pr.stream.eof
		frameStart := payloadStart - 1
		totalLen := payloadSize + 1

		fs := pr.stats.forType(frameType)

		if !prematureEOF && totalLen <= MaxFrameLen {
			accepted := ops.complete(pr, frameType, frameStart, pr.stream.offset())
			if accepted {
				fs.Bytes += totalLen
				if totalLen < MaxFrameLen {
					fs.SizeCount[totalLen]++
				}
				fs.Valid++
			} else {
				fs.Desync++
			}
		} else {
			pr.mainStreamValid = false
			fs.Corrupt++
			pr.stats.TotalCorruptFrames++
			l.trace("corrupt frame", "type", string(frameType), "offset", frameStart, "len", totalLen, "eof", prematureEOF)
			if pr.onFrameReady != nil {
				pr.onFrameReady(false, nil, frameType, 0, frameStart, totalLen)
			}
			pr.stream.eof = false
		}
	}

	// stream.end may have been pulled in by a LOG_END event.
	pr.stats.TotalBytes = pr.stream.end - l.logBegin
	l.lastStats = pr.stats
	return true, nil
}

// validateFieldReferences checks, once field definitions and semantic
// indexes are known, that every declared predictor id is one this decoder
// implements and that predictors which need a particular field to exist
// (MOTOR_0, HOME_COORD/HOME_COORD_1) actually have one.
func validateFieldReferences(l *Log) error {
	for _, fd := range l.FrameDefs {
		for _, p := range fd.Predictor {
			if !knownPredictor(p) {
				return ErrUnknownPredictor
			}
			switch {
			case p == PredictorMotor0 && l.Fields.Motor[0] < 0:
				return ErrMissingMotor0
			case p == PredictorHomeCoord && l.Fields.GPSHome[0] < 0:
				return ErrMissingGPSHome
			case p == PredictorHomeCoord1 && l.Fields.GPSHome[1] < 0:
				return ErrMissingGPSHome
			}
		}
	}
	return nil
}

// frameTypeOps bundles the parse/complete pair for one marker byte, keeping
// the hot loop's dispatch a table lookup rather than a growing switch.
type frameTypeOps struct {
	parse    func(pr *parseRun, frameType byte) error
	complete func(pr *parseRun, frameType byte, frameStart, frameEnd int) bool
}

var frameTypes = map[byte]frameTypeOps{
	'I': {parseIntraframe, completeIntraframe},
	'P': {parseInterframe, completeInterframe},
	'G': {parseGPSFrame, completeGPSFrame},
	'H': {parseGPSHomeFrame, completeGPSHomeFrame},
	'E': {parseEventFrame, completeEventFrame},
	'S': {parseSlowFrame, completeSlowFrame},
}

func (pr *parseRun) predictorContext(gpsHomeRow []int64) *predictorContext {
	return &predictorContext{
		sysConfig:     pr.log.Config,
		motor0Index:   pr.log.Fields.Motor[0],
		gpsHomeIndex0: pr.log.Fields.GPSHome[0],
		gpsHomeIndex1: pr.log.Fields.GPSHome[1],
		gpsHomeRow:    gpsHomeRow,
		lastMainFrameTime: func() int64 {
			if pr.mainRow1 == nil {
				return -1
			}
			return pr.mainRow1[FieldIndexTime]
		}(),
	}
}

func parseFieldsInto(s *stream, fd *FrameDef, ctx *predictorContext, frame, previous, previous2 []int64, skippedFrames int64, raw bool) error {
	finish := func(i int, value int64) int64 {
		pred := fd.Predictor[i]
		if raw {
			pred = PredictorNone
		}
		value = applyPrediction(ctx, i, pred, value, frame, previous, previous2)
		return truncateFieldWidth(value, fd.FieldWidth[i], fd.FieldSigned[i])
	}
	finishGroup := func(i int, value int64) int64 {
		pred := fd.Predictor[i]
		if raw {
			pred = PredictorNone
		}
		return applyPrediction(ctx, i, pred, value, frame, previous, previous2)
	}

	i := 0
	for i < fd.FieldCount {
		if fd.Predictor[i] == PredictorInc {
			v := skippedFrames + 1
			if previous != nil {
				v += previous[i]
			}
			frame[i] = v
			i++
			continue
		}

		switch fd.Encoding[i] {
		case EncodingSignedVB:
			s.byteAlign()
			frame[i] = finish(i, int64(s.readSignedVB()))
			i++
		case EncodingUnsignedVB:
			s.byteAlign()
			frame[i] = finish(i, int64(s.readUnsignedVB()))
			i++
		case EncodingNeg14Bit:
			s.byteAlign()
			frame[i] = finish(i, int64(s.readNeg14Bit()))
			i++
		case EncodingTag8_4S16:
			s.byteAlign()
			var values [4]int32
			if useTag8_4S16V1(ctx) {
				s.readTag8_4S16V1(values[:])
			} else {
				s.readTag8_4S16V2(values[:])
			}
			for j := 0; j < 4; j++ {
				frame[i] = finishGroup(i, int64(values[j]))
				i++
			}
		case EncodingTag2_3S32:
			s.byteAlign()
			var values [3]int32
			s.readTag2_3S32(values[:])
			for j := 0; j < 3; j++ {
				frame[i] = finishGroup(i, int64(values[j]))
				i++
			}
		case EncodingTag8_8SVB:
			s.byteAlign()
			groupEnd := i + 1
			for groupEnd < fd.FieldCount && groupEnd < i+8 && fd.Encoding[groupEnd] == EncodingTag8_8SVB {
				groupEnd++
			}
			groupCount := groupEnd - i
			values := make([]int32, groupCount)
			s.readTag8_8SVB(values, groupCount)
			for j := 0; j < groupCount; j++ {
				frame[i] = finishGroup(i, int64(values[j]))
				i++
			}
		case EncodingEliasDeltaU32:
			frame[i] = finish(i, int64(s.readEliasDeltaU32()))
			i++
		case EncodingEliasDeltaS32:
			frame[i] = finish(i, int64(s.readEliasDeltaS32()))
			i++
		case EncodingEliasGammaU32:
			frame[i] = finish(i, int64(s.readEliasGammaU32()))
			i++
		case EncodingEliasGammaS32:
			frame[i] = finish(i, int64(s.readEliasGammaS32()))
			i++
		case EncodingNull:
			frame[i] = finish(i, 0)
			i++
		default:
			return ErrUnknownEncoding
		}
	}
	s.byteAlign()
	return nil
}

// useTag8_4S16V1 selects the TAG8_4S16 dialect: dataVersion < 2 uses the
// v1, non-sign-extending nibble layout.
func useTag8_4S16V1(ctx *predictorContext) bool {
	return ctx.sysConfig.DataVersion < 2
}

func parseIntraframe(pr *parseRun, frameType byte) error {
	fd := pr.log.FrameDefs['I']
	ctx := pr.predictorContext(pr.gpsHomeRow1)
	return parseFieldsInto(pr.stream, fd, ctx, pr.mainRow0, pr.mainRow1, nil, 0, pr.raw)
}

func parseInterframe(pr *parseRun, frameType byte) error {
	fd := pr.log.FrameDefs['P']
	pr.lastSkippedFrames = countIntentionallySkippedFrames(pr)
	ctx := pr.predictorContext(pr.gpsHomeRow1)
	return parseFieldsInto(pr.stream, fd, ctx, pr.mainRow0, pr.mainRow1, pr.mainRow2, int64(pr.lastSkippedFrames), pr.raw)
}

func parseGPSFrame(pr *parseRun, frameType byte) error {
	fd := pr.log.FrameDefs['G']
	ctx := pr.predictorContext(pr.gpsHomeRow1)
	return parseFieldsInto(pr.stream, fd, ctx, pr.lastGPS, nil, nil, 0, pr.raw)
}

func parseGPSHomeFrame(pr *parseRun, frameType byte) error {
	fd := pr.log.FrameDefs['H']
	ctx := pr.predictorContext(pr.gpsHomeRow1)
	return parseFieldsInto(pr.stream, fd, ctx, pr.gpsHomeRow0, nil, nil, 0, pr.raw)
}

func parseSlowFrame(pr *parseRun, frameType byte) error {
	fd := pr.log.FrameDefs['S']
	ctx := pr.predictorContext(pr.gpsHomeRow1)
	return parseFieldsInto(pr.stream, fd, ctx, pr.lastSlow, nil, nil, 0, pr.raw)
}

func parseEventFrame(pr *parseRun, frameType byte) error {
	e, ok := parseEvent(pr.stream, pr.rolloverAccumulator)
	pr.lastEvent = e
	pr.lastEventValid = ok
	return nil
}

// validateMainFrame checks that iteration/time advanced sanely since the
// last accepted main frame.
func validateMainFrame(pr *parseRun) bool {
	iter := uint32(pr.mainRow0[FieldIndexIteration])
	t := pr.mainRow0[FieldIndexTime]
	lastIter := uint32(pr.lastMainFrameIteration)
	return iter >= lastIter && iter < lastIter+MaxIterJump &&
		t >= pr.lastMainFrameTime && t < pr.lastMainFrameTime+MaxTimeJump
}

func invalidateMainStream(pr *parseRun) {
	pr.mainStreamValid = false
	pr.mainRow1 = nil
	pr.mainRow2 = nil
}

// detectAndApplyTimestampRollover recovers a 64-bit timestamp from an
// on-wire 32-bit field, incrementing the shared accumulator on wraparound.
// The comparison is always against lastMainFrameTime, even for GPS time
// fields.
func detectAndApplyTimestampRollover(pr *parseRun, timestamp int64) int64 {
	if pr.lastMainFrameTime != -1 {
		cur := uint32(timestamp)
		last := uint32(pr.lastMainFrameTime)
		if cur < last && uint32(cur-last) < MaxTimeJump {
			pr.rolloverAccumulator += 0x100000000
		}
	}
	return int64(uint32(timestamp)) + pr.rolloverAccumulator
}

func countIntentionallySkippedFrames(pr *parseRun) uint32 {
	if pr.lastMainFrameIteration == -1 {
		return 0
	}
	var count uint32
	last := uint32(pr.lastMainFrameIteration)
	for idx := last + 1; !shouldHaveFrame(pr.log.Config, idx); idx++ {
		count++
	}
	return count
}

func countIntentionallySkippedFramesTo(pr *parseRun, target uint32) uint32 {
	if pr.lastMainFrameIteration == -1 {
		return 0
	}
	var count uint32
	last := uint32(pr.lastMainFrameIteration)
	for idx := last + 1; idx < target; idx++ {
		if !shouldHaveFrame(pr.log.Config, idx) {
			count++
		}
	}
	return count
}

func shouldHaveFrame(cfg SysConfig, frameIndex uint32) bool {
	interval := cfg.IIntervalRaw
	if interval < 1 {
		interval = 1
	}
	denom := cfg.PDenom
	if denom < 1 {
		denom = 1
	}
	return (int(frameIndex)%interval+cfg.PNum-1)%denom < cfg.PNum
}

func updateMainFieldStatistics(pr *parseRun) {
	fd := pr.log.FrameDefs['I']
	for i := 0; i < fd.FieldCount; i++ {
		v := pr.mainRow0[i]
		if len(pr.stats.FieldMin) <= i {
			grow := make([]int64, fd.FieldCount)
			copy(grow, pr.stats.FieldMin)
			pr.stats.FieldMin = grow
			grow2 := make([]int64, fd.FieldCount)
			copy(grow2, pr.stats.FieldMax)
			pr.stats.FieldMax = grow2
		}
		if !pr.stats.haveFieldStats {
			pr.stats.FieldMin[i] = v
			pr.stats.FieldMax[i] = v
		} else {
			if v > pr.stats.FieldMax[i] {
				pr.stats.FieldMax[i] = v
			}
			if v < pr.stats.FieldMin[i] {
				pr.stats.FieldMin[i] = v
			}
		}
	}
	pr.stats.haveFieldStats = true
}

func completeIntraframe(pr *parseRun, frameType byte, frameStart, frameEnd int) bool {
	pr.mainRow0[FieldIndexTime] = detectAndApplyTimestampRollover(pr, pr.mainRow0[FieldIndexTime])

	if !pr.raw && pr.lastMainFrameIteration != -1 && !validateMainFrame(pr) {
		invalidateMainStream(pr)
		pr.log.trace("intraframe failed validation", "iteration", pr.mainRow0[FieldIndexIteration], "time", pr.mainRow0[FieldIndexTime])
	} else {
		pr.mainStreamValid = true
	}

	if pr.mainStreamValid {
		pr.stats.IntentionallyAbsentIterations += int(countIntentionallySkippedFramesTo(pr, uint32(pr.mainRow0[FieldIndexIteration])))
		pr.lastMainFrameIteration = pr.mainRow0[FieldIndexIteration]
		pr.lastMainFrameTime = pr.mainRow0[FieldIndexTime]
		updateMainFieldStatistics(pr)
	}

	fd := pr.log.FrameDefs['I']
	if pr.onFrameReady != nil {
		pr.onFrameReady(pr.mainStreamValid, pr.mainRow0, frameType, fd.FieldCount, frameStart, frameEnd-frameStart)
	}

	if pr.mainStreamValid {
		pr.mainRow1 = pr.mainRow0
		pr.mainRow2 = pr.mainRow0
		pr.mainRow0 = pr.mainRing[pr.mainNextSlot]
		pr.mainNextSlot = (pr.mainNextSlot + 1) % maxHistoryRows
	}
	return pr.mainStreamValid
}

func completeInterframe(pr *parseRun, frameType byte, frameStart, frameEnd int) bool {
	pr.mainRow0[FieldIndexTime] = detectAndApplyTimestampRollover(pr, pr.mainRow0[FieldIndexTime])

	if pr.mainStreamValid && !pr.raw && !validateMainFrame(pr) {
		invalidateMainStream(pr)
	}

	if pr.mainStreamValid {
		pr.lastMainFrameIteration = pr.mainRow0[FieldIndexIteration]
		pr.lastMainFrameTime = pr.mainRow0[FieldIndexTime]
		pr.stats.IntentionallyAbsentIterations += int(pr.lastSkippedFrames)
		updateMainFieldStatistics(pr)
	}

	fd := pr.log.FrameDefs['I']
	if pr.onFrameReady != nil {
		pr.onFrameReady(pr.mainStreamValid, pr.mainRow0, frameType, fd.FieldCount, frameStart, frameEnd-frameStart)
	}

	if pr.mainStreamValid {
		pr.mainRow2 = pr.mainRow1
		pr.mainRow1 = pr.mainRow0
		pr.mainRow0 = pr.mainRing[pr.mainNextSlot]
		pr.mainNextSlot = (pr.mainNextSlot + 1) % maxHistoryRows
	}
	return pr.mainStreamValid
}

func completeGPSFrame(pr *parseRun, frameType byte, frameStart, frameEnd int) bool {
	if idx := pr.log.Fields.GPSTime; idx >= 0 {
		pr.lastGPS[idx] = detectAndApplyTimestampRollover(pr, pr.lastGPS[idx])
	}
	fd := pr.log.FrameDefs['G']
	if pr.onFrameReady != nil {
		pr.onFrameReady(pr.gpsHomeValid, pr.lastGPS, frameType, fd.FieldCount, frameStart, frameEnd-frameStart)
	}
	return true
}

func completeGPSHomeFrame(pr *parseRun, frameType byte, frameStart, frameEnd int) bool {
	copy(pr.gpsHomeRow1, pr.gpsHomeRow0)
	pr.gpsHomeValid = true
	fd := pr.log.FrameDefs['H']
	if pr.onFrameReady != nil {
		pr.onFrameReady(true, pr.gpsHomeRow1, frameType, fd.FieldCount, frameStart, frameEnd-frameStart)
	}
	return true
}

func completeSlowFrame(pr *parseRun, frameType byte, frameStart, frameEnd int) bool {
	fd := pr.log.FrameDefs['S']
	if pr.onFrameReady != nil {
		pr.onFrameReady(true, pr.lastSlow, frameType, fd.FieldCount, frameStart, frameEnd-frameStart)
	}
	return true
}

func completeEventFrame(pr *parseRun, frameType byte, frameStart, frameEnd int) bool {
	if !pr.lastEventValid {
		return false
	}
	if pr.lastEvent.Kind == EventLoggingResume {
		pr.lastMainFrameIteration = int64(pr.lastEvent.LogIteration)
		pr.lastMainFrameTime = pr.lastEvent.ResumeTime
	}
	if pr.onEvent != nil {
		pr.onEvent(pr.lastEvent)
	}
	return true
}
