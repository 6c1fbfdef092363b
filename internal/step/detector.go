package step

import (
	"sensorhub/internal/dsp"
	"sensorhub/internal/fixedpoint"
)

type DataFunc func(Data)

type SegmentFunc func(Segment)

// walkState tracks where the detector is within a walk.
type walkState int

const (
	startWalk walkState = iota
	midWalk
	endWalk
)

// Detector is the step counter: it filters acceleration, segments it and
// keeps the cumulative counts.
//
// Every confirmed segment is counted and reported through the data callback
// at once. On the segment stream, mid-walk segments lag by one so the final
// one can be tagged SegmentLast once the walk times out.
//
// Not safe for concurrent use.
type Detector struct {
	cfg    Config
	filter *dsp.StepFilter
	seg    *Segmenter

	walk        walkState
	walkStart   fixedpoint.Time
	lastStop    fixedpoint.Time
	pending     Segment
	havePending bool
	data        Data

	onData    DataFunc
	onSegment SegmentFunc
}

// NewDetector returns a detector for accelerometer input sampled every
// period (Q24 seconds).
func NewDetector(cfg Config, period fixedpoint.Time) *Detector {
	cfg = cfg.withDefaults()
	return &Detector{
		cfg:    cfg,
		filter: dsp.NewStepFilter(period),
		seg:    NewSegmenter(cfg),
	}
}

func (d *Detector) SetPeriod(period fixedpoint.Time) { d.filter.SetPeriod(period) }

// SetDataCallback installs fn for step counter updates; nil removes it.
func (d *Detector) SetDataCallback(fn DataFunc) { d.onData = fn }

// SetSegmentCallback installs fn for raw segments; nil removes it.
func (d *Detector) SetSegmentCallback(fn SegmentFunc) { d.onSegment = fn }

// Reset clears all algorithm state and counts. Callbacks are kept.
func (d *Detector) Reset() {
	d.filter.Reset()
	d.seg.Reset()
	d.walk = startWalk
	d.walkStart = 0
	d.lastStop = 0
	d.pending = Segment{}
	d.havePending = false
	d.data = Data{}
}

// Data returns the latest counter state.
func (d *Detector) Data() Data { return d.data }

// Walking reports whether a walk is in progress.
func (d *Detector) Walking() bool { return d.walk == midWalk }

// Update feeds one accelerometer sample (m/s², Q12, algorithm frame).
func (d *Detector) Update(accel [3]int32, t fixedpoint.Time) {
	out := d.filter.Update(accel, t)
	if !out.Ready {
		return
	}
	d.UpdateSignal(out.Norm, out.Time)
}

// UpdateSignal feeds one decimated band-passed magnitude sample directly.
func (d *Detector) UpdateSignal(x int32, t fixedpoint.Time) {
	if seg, ok := d.seg.Update(x, t); ok {
		d.accept(seg)
		return
	}
	if d.walk == midWalk && t-d.lastStop > d.cfg.MaxStepPeriod {
		d.finishWalk()
	}
}

func (d *Detector) accept(seg Segment) {
	if d.walk == midWalk && seg.StartTime-d.lastStop > d.cfg.MaxStepPeriod {
		d.finishWalk()
	}
	d.lastStop = seg.StopTime

	if d.walk != midWalk {
		d.walk = midWalk
		d.walkStart = seg.StartTime
		d.data.ConsecutiveCount = 0
		seg.Type = SegmentFirst
		d.emitSegment(seg)
		d.count(seg)
		return
	}

	if d.havePending {
		d.emitSegment(d.pending)
	}
	seg.Type = SegmentMid
	d.pending = seg
	d.havePending = true
	d.count(seg)
}

func (d *Detector) finishWalk() {
	if d.havePending {
		d.pending.Type = SegmentLast
		d.emitSegment(d.pending)
		d.havePending = false
	}
	d.walk = endWalk
}

func (d *Detector) count(seg Segment) {
	d.data.TotalCount++
	d.data.ConsecutiveCount++
	d.data.StartTime = seg.StartTime
	d.data.StopTime = seg.StopTime
	d.data.Frequency = fixedpoint.Rate(d.data.ConsecutiveCount, seg.StopTime-d.walkStart)

	if d.onData != nil {
		d.onData(d.data)
	}
}

func (d *Detector) emitSegment(seg Segment) {
	if d.onSegment != nil {
		d.onSegment(seg)
	}
}
