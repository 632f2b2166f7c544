package blend

import (
	"studio-pose/internal/mathutil"
	"studio-pose/internal/studio"
)

// WindowWeight returns the smoothstepped weight of a [start, peak, tail,
// end] window at cycle: 0 outside, ramping to 1 between start and peak and
// back down between tail and end. Windows ending past 1 wrap, so a cycle
// before start is treated as one cycle later.
func WindowWeight(start, peak, tail, end, cycle float64) float64 {
	if end > 1 && cycle < start {
		cycle++
	}
	s, ok := ramp(start, peak, tail, end, cycle)
	if !ok {
		return 0
	}
	return mathutil.SimpleSpline(s)
}

// ramp returns the raw linear ramp of the window at index and whether index
// lies inside [start, end).
func ramp(start, peak, tail, end, index float64) (float64, bool) {
	if index < start || index >= end {
		return 0, false
	}
	switch {
	case index < peak && start != peak:
		return (index - start) / (peak - start), true
	case index > tail && end != tail:
		return (end - index) / (end - tail), true
	}
	return 1, true
}

// LayerWeight returns the weight and cycle an auto layer plays at while
// its carrier runs at cycle with weight carrier. ok is false when the layer
// is outside its window.
//
// Cycle-driven layers index their window by the carrier cycle and remap it
// to the window's own 0..1 range; pose-driven layers index it by a pose
// parameter, in the units of that parameter's range, and keep the carrier
// cycle. Cross-fading layers trade weight
// with the carrier once past tail; no-blend layers use the raw ramp as
// their weight.
func LayerWeight(skel *studio.Skeleton, l *studio.AutoLayer, cycle float64, params []float64, carrier float64) (weight, layerCycle float64, ok bool) {
	if l.Start == l.End {
		return carrier, cycle, true
	}

	index := cycle
	if l.Flags&studio.LayerPose != 0 {
		if l.Pose < 0 || l.Pose >= len(params) || l.Pose >= len(skel.PoseParams) {
			return 0, 0, false
		}
		pp := skel.PoseParams[l.Pose]
		index = params[l.Pose]*(pp.End-pp.Start) + pp.Start
	} else if l.End > 1 && index < l.Start {
		index++
	}

	s, in := ramp(l.Start, l.Peak, l.Tail, l.End, index)
	if !in {
		return 0, 0, false
	}
	if l.Flags&studio.LayerNoBlend == 0 {
		s = mathutil.SimpleSpline(s)
	}

	switch {
	case l.Flags&studio.LayerXFade != 0 && index > l.Tail:
		if d := 1 - carrier + s*carrier; d > 0 {
			weight = s * carrier / d
		}
	case l.Flags&studio.LayerNoBlend != 0:
		weight = s
	default:
		weight = carrier * s
	}

	layerCycle = cycle
	if l.Flags&studio.LayerPose == 0 {
		layerCycle = (index - l.Start) / (l.End - l.Start)
	}
	return weight, layerCycle, true
}
