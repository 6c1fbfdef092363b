package step

import "sensorhub/internal/fixedpoint"

// peakState is the extrema classifier state. A potential peak is the best
// extremum seen so far; it is confirmed when the signal crosses zero.
type peakState int

const (
	negativePeak peakState = iota
	potentialPosPeak
	positivePeak
	potentialNegPeak
)

type extremum struct {
	value int32
	time  fixedpoint.Time
}

// Segmenter detects positive-then-negative peak pairs in a zero-mean signal
// and turns each pair into an untyped Segment.
//
// Local extrema come from first-derivative sign changes. A segment spans from
// the previous valley to the valley that confirms the pair; the first pair
// after a pause has no usable previous valley, so its start is mirrored about
// the positive peak.
//
// Not safe for concurrent use.
type Segmenter struct {
	cfg Config

	state     peakState
	havePrev  bool
	prev      extremum
	prevSlope int
	candidate extremum
	peak      extremum

	valley     extremum
	haveValley bool
}

func NewSegmenter(cfg Config) *Segmenter {
	return &Segmenter{cfg: cfg.withDefaults()}
}

func (s *Segmenter) Reset() {
	*s = Segmenter{cfg: s.cfg}
}

// Update feeds one sample. ok is true when a segment was confirmed.
func (s *Segmenter) Update(x int32, t fixedpoint.Time) (seg Segment, ok bool) {
	if !s.havePrev {
		s.prev = extremum{value: x, time: t}
		s.havePrev = true
		return Segment{}, false
	}

	slope := 0
	switch d := int64(x) - int64(s.prev.value); {
	case d > 0:
		slope = 1
	case d < 0:
		slope = -1
	}
	thr := int32(s.cfg.PeakThreshold)

	if s.prevSlope > 0 && slope <= 0 && s.prev.value >= thr {
		switch s.state {
		case negativePeak:
			s.state = potentialPosPeak
			s.candidate = s.prev
		case potentialPosPeak:
			if s.prev.value > s.candidate.value {
				s.candidate = s.prev
			}
		}
	}
	if s.prevSlope < 0 && slope >= 0 && s.prev.value <= -thr {
		switch s.state {
		case positivePeak:
			s.state = potentialNegPeak
			s.candidate = s.prev
		case potentialNegPeak:
			if s.prev.value < s.candidate.value {
				s.candidate = s.prev
			}
		}
	}

	if s.state == potentialPosPeak && x < 0 {
		s.state = positivePeak
		s.peak = s.candidate
	}
	if s.state == potentialNegPeak && x > 0 {
		s.state = negativePeak
		seg, ok = s.confirmValley(s.candidate)
	}

	if slope != 0 {
		s.prevSlope = slope
	}
	s.prev = extremum{value: x, time: t}
	return seg, ok
}

func (s *Segmenter) confirmValley(v extremum) (Segment, bool) {
	defer func() {
		s.valley = v
		s.haveValley = true
	}()

	if v.time-s.peak.time > s.cfg.MaxStepPeriod/2 {
		return Segment{}, false
	}
	start := 2*s.peak.time - v.time
	if s.haveValley && v.time-s.valley.time <= s.cfg.MaxStepPeriod {
		start = s.valley.time
	}
	if v.time-start < s.cfg.MinStepPeriod {
		return Segment{}, false
	}
	return Segment{StartTime: start, StopTime: v.time}, true
}
