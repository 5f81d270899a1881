package queue

// Occupancy is anything exposing a current length and a capacity.
type Occupancy interface {
	Len() int
	Cap() int
}

// DefaultThresholdPercent marks a queue congested from half full.
const DefaultThresholdPercent = 50

// IsCongested reports whether o is at least half full: Len()*2 >= Cap().
// It is evaluated fresh on every call, without hysteresis, and is the
// signal every rerouting policy uses for both primary and alternate.
func IsCongested(o Occupancy) bool {
	return o.Len()*2 >= o.Cap()
}

// Threshold is a congestion threshold expressed as a percentage of
// capacity. The zero value means DefaultThresholdPercent.
type Threshold struct {
	Percent int
}

// Congested reports whether Len()*100 >= Cap()*Percent.
func (t Threshold) Congested(o Occupancy) bool {
	if t.Percent == 0 || t.Percent == DefaultThresholdPercent {
		return IsCongested(o)
	}
	return o.Len()*100 >= o.Cap()*t.Percent
}

// EffectivePercent returns the percentage actually applied.
func (t Threshold) EffectivePercent() int {
	if t.Percent == 0 {
		return DefaultThresholdPercent
	}
	return t.Percent
}
