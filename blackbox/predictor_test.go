package blackbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyPredictionNone(t *testing.T) {
	ctx := &predictorContext{lastMainFrameTime: -1}
	assert.EqualValues(t, 42, applyPrediction(ctx, 0, PredictorNone, 42, nil, nil, nil))
}

func TestApplyPredictionPreviousWithNilHistory(t *testing.T) {
	ctx := &predictorContext{lastMainFrameTime: -1}
	assert.EqualValues(t, 5, applyPrediction(ctx, 0, PredictorPrevious, 5, nil, nil, nil))
}

func TestApplyPredictionPrevious(t *testing.T) {
	ctx := &predictorContext{lastMainFrameTime: -1}
	previous := []int64{100}
	assert.EqualValues(t, 105, applyPrediction(ctx, 0, PredictorPrevious, 5, nil, previous, nil))
}

func TestApplyPredictionStraightLine(t *testing.T) {
	ctx := &predictorContext{lastMainFrameTime: -1}
	previous := []int64{10}
	previous2 := []int64{4}
	// delta 0 + 2*10 - 4 == 16
	assert.EqualValues(t, 16, applyPrediction(ctx, 0, PredictorStraightLine, 0, nil, previous, previous2))
}

func TestApplyPredictionAverage2(t *testing.T) {
	ctx := &predictorContext{lastMainFrameTime: -1}
	previous := []int64{10}
	previous2 := []int64{4}
	assert.EqualValues(t, 7, applyPrediction(ctx, 0, PredictorAverage2, 0, nil, previous, previous2))
}

func TestApplyPredictionMinthrottle(t *testing.T) {
	ctx := &predictorContext{sysConfig: defaultSysConfig(), lastMainFrameTime: -1}
	assert.EqualValues(t, 1150, applyPrediction(ctx, 0, PredictorMinthrottle, 0, nil, nil, nil))
}

// PredictorMotor0's base is the in-progress frame's own motor[0] value,
// decoded earlier in the same frame, not the previous frame's.
func TestApplyPredictionMotor0UsesSameFrameValue(t *testing.T) {
	ctx := &predictorContext{motor0Index: 2, lastMainFrameTime: -1}
	frame := []int64{0, 0, 1300}
	previous := []int64{0, 0, 9999} // must be ignored: motor[0] comes from frame, not previous
	assert.EqualValues(t, 1310, applyPrediction(ctx, 0, PredictorMotor0, 10, frame, previous, nil))
}

func TestApplyPredictionHomeCoord(t *testing.T) {
	ctx := &predictorContext{gpsHomeIndex0: 0, gpsHomeIndex1: 1, gpsHomeRow: []int64{473000000, 85000000}, lastMainFrameTime: -1}
	assert.EqualValues(t, 473000050, applyPrediction(ctx, 0, PredictorHomeCoord, 50, nil, nil, nil))
	assert.EqualValues(t, 85000025, applyPrediction(ctx, 1, PredictorHomeCoord1, 25, nil, nil, nil))
}

func TestApplyPredictionLastMainFrameTime(t *testing.T) {
	ctx := &predictorContext{lastMainFrameTime: 500}
	assert.EqualValues(t, 500, applyPrediction(ctx, FieldIndexTime, PredictorLastMainFrameTime, 0, nil, nil, nil))

	ctx2 := &predictorContext{lastMainFrameTime: -1}
	assert.EqualValues(t, 0, applyPrediction(ctx2, FieldIndexTime, PredictorLastMainFrameTime, 0, nil, nil, nil))
}

func TestTruncateFieldWidth(t *testing.T) {
	assert.EqualValues(t, -1, truncateFieldWidth(0xFFFFFFFF, 4, true))
	assert.EqualValues(t, 0xFFFFFFFF, truncateFieldWidth(0xFFFFFFFF, 4, false))
	assert.EqualValues(t, 0x1FFFFFFFF, truncateFieldWidth(0x1FFFFFFFF, 8, true))
}
