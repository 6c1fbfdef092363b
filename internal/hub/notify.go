package hub

import (
	"math/bits"

	"sensorhub/internal/fixedpoint"
)

// notifyState is the per-subscription delivery history used to apply
// OutputRate and Sensitivity to sensor streams.
type notifyState struct {
	ref  slotRef
	sent bool
	last fixedpoint.Time
	axes [3]int32
}

// minInterval converts a Q24 rate in Hz into a Q24 period. A sixteenth of
// the period is allowed as timestamp jitter.
func minInterval(rate fixedpoint.Precise) fixedpoint.Time {
	if rate <= 0 {
		return 0
	}
	q, _ := bits.Div64(0, 1<<(2*fixedpoint.PreciseShift), uint64(rate))
	return fixedpoint.Time(q - q/16)
}

// admit reports whether a sample at t with axes should be delivered to d,
// and records it if so.
func (n *notifyState) admit(d *ResultDescriptor, t fixedpoint.Time, axes [3]int32) bool {
	if n.sent && d.Options&OptionBypassPolicy == 0 {
		if gap := minInterval(d.OutputRate); gap > 0 && t-n.last < gap {
			return false
		}
		if d.Sensitivity > 0 {
			var change int64
			for i := range axes {
				c := int64(axes[i]) - int64(n.axes[i])
				if c < 0 {
					c = -c
				}
				change = max(change, c)
			}
			if change < int64(d.Sensitivity) {
				return false
			}
		}
	}
	n.sent = true
	n.last = t
	n.axes = axes
	return true
}
