package blackbox

// Predictor application. A predictor turns a decoded delta back into an
// absolute field value using system configuration, GPS home state and the
// 3-row history ring.

// predictorContext carries the external state predictors other than
// PREVIOUS/STRAIGHT_LINE/AVERAGE_2 need, since they can't derive it purely
// from the history rows passed to applyPrediction.
type predictorContext struct {
	sysConfig SysConfig

	motor0Index int // l.Fields.Motor[0], or -1

	gpsHomeIndex0, gpsHomeIndex1 int // l.Fields.GPSHome[0..1] on the latched row
	gpsHomeRow                   []int64

	lastMainFrameTime int64 // mainHistory[1][FieldIndexTime], or -1 if absent
}

// applyPrediction adds the predicted contribution for predictor p to value,
// given the field's own history: frame is the row currently being filled
// (fields before fieldIndex are already decoded into it), previous and
// previous2 are the prior reference rows; previous is nil before any
// reference frame exists.
func applyPrediction(ctx *predictorContext, fieldIndex int, p Predictor, value int64, frame, previous, previous2 []int64) int64 {
	switch p {
	case PredictorNone:
		// no correction
	case PredictorMinthrottle:
		value += int64(ctx.sysConfig.Minthrottle)
	case Predictor1500:
		value += 1500
	case PredictorMotor0:
		// Parse validates motor0Index >= 0 before the data loop starts.
		// motor[0] is always decoded earlier in this same frame, so the
		// base comes from the in-progress row, not the previous one.
		value += frame[ctx.motor0Index]
	case PredictorVbatref:
		value += int64(ctx.sysConfig.Vbatref)
	case PredictorPrevious:
		if previous == nil {
			break
		}
		value += previous[fieldIndex]
	case PredictorStraightLine:
		if previous == nil || previous2 == nil {
			break
		}
		value += 2*previous[fieldIndex] - previous2[fieldIndex]
	case PredictorAverage2:
		if previous == nil || previous2 == nil {
			break
		}
		value += (previous[fieldIndex] + previous2[fieldIndex]) / 2
	case PredictorHomeCoord:
		// Parse validates gpsHomeIndex0 >= 0 before the data loop starts.
		if ctx.gpsHomeRow != nil {
			value += ctx.gpsHomeRow[ctx.gpsHomeIndex0]
		}
	case PredictorHomeCoord1:
		// Parse validates gpsHomeIndex1 >= 0 before the data loop starts.
		if ctx.gpsHomeRow != nil {
			value += ctx.gpsHomeRow[ctx.gpsHomeIndex1]
		}
	case PredictorLastMainFrameTime:
		if ctx.lastMainFrameTime != -1 {
			value += ctx.lastMainFrameTime
		}
	case PredictorMinMotor:
		value += int64(ctx.sysConfig.MotorOutputLow)
	default:
		// Parse rejects unknown predictor ids before the data loop starts.
	}
	return value
}

func knownPredictor(p Predictor) bool {
	switch p {
	case PredictorNone, PredictorPrevious, PredictorStraightLine,
		PredictorAverage2, PredictorMinthrottle, PredictorMotor0,
		PredictorInc, PredictorHomeCoord, PredictorHomeCoord1,
		Predictor1500, PredictorVbatref, PredictorLastMainFrameTime,
		PredictorMinMotor:
		return true
	}
	return false
}

// truncateFieldWidth applies 32-bit truncation to any field whose declared
// width isn't 8 bytes: signed fields sign-extend the lower 32 bits,
// unsigned fields zero-extend them.
func truncateFieldWidth(value int64, width int, signed bool) int64 {
	if width == 8 {
		return value
	}
	if signed {
		return int64(int32(value))
	}
	return int64(uint32(value))
}
