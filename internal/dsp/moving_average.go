package dsp

// MaxWindowShift bounds moving-average windows to 2^10 samples.
const MaxWindowShift = 10

// MovingAverage is a boxcar average over the last 2^shift samples.
//
// Each Update is O(1): the sample leaving the window is subtracted from the
// running sum and the new one added. The first sample after construction or
// Reset fills the whole window, so the output starts at that value instead of
// ramping up from zero.
//
// Not safe for concurrent use.
type MovingAverage struct {
	buf    []int32
	sum    int64
	idx    int
	shift  uint
	primed bool
}

// NewMovingAverage returns a filter with a 2^shift sample window. shift is
// clamped to MaxWindowShift.
func NewMovingAverage(shift uint) *MovingAverage {
	m := &MovingAverage{}
	m.init(shift)
	return m
}

func (m *MovingAverage) init(shift uint) {
	if shift > MaxWindowShift {
		shift = MaxWindowShift
	}
	m.shift = shift
	m.buf = make([]int32, 1<<shift)
	m.Reset()
}

// Window returns the number of samples averaged.
func (m *MovingAverage) Window() int { return len(m.buf) }

// Reset empties the window; the next sample primes it again.
func (m *MovingAverage) Reset() {
	for i := range m.buf {
		m.buf[i] = 0
	}
	m.sum = 0
	m.idx = 0
	m.primed = false
}

// Update pushes x and returns the new average (sum / 2^shift, floored).
func (m *MovingAverage) Update(x int32) int32 {
	if !m.primed {
		for i := range m.buf {
			m.buf[i] = x
		}
		m.sum = int64(x) << m.shift
		m.primed = true
	}
	m.sum += int64(x) - int64(m.buf[m.idx])
	m.buf[m.idx] = x
	m.idx = (m.idx + 1) & (len(m.buf) - 1)
	return int32(m.sum >> m.shift)
}

// Mean returns the current average without pushing a sample.
func (m *MovingAverage) Mean() int32 { return int32(m.sum >> m.shift) }

// MovingAverage3 runs one MovingAverage per axis.
type MovingAverage3 struct {
	axes [3]MovingAverage
}

func NewMovingAverage3(shift uint) *MovingAverage3 {
	m := &MovingAverage3{}
	for i := range m.axes {
		m.axes[i].init(shift)
	}
	return m
}

func (m *MovingAverage3) Window() int { return m.axes[0].Window() }

func (m *MovingAverage3) Reset() {
	for i := range m.axes {
		m.axes[i].Reset()
	}
}

func (m *MovingAverage3) Update(v [3]int32) [3]int32 {
	return [3]int32{m.axes[0].Update(v[0]), m.axes[1].Update(v[1]), m.axes[2].Update(v[2])}
}

func (m *MovingAverage3) Mean() [3]int32 {
	return [3]int32{m.axes[0].Mean(), m.axes[1].Mean(), m.axes[2].Mean()}
}
