package blend

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"studio-pose/internal/studio"
)

func TestWindowWeight(t *testing.T) {
	tests := []struct {
		name                   string
		start, peak, tail, end float64
		cycle                  float64
		want                   float64
	}{
		{"before start", 0.2, 0.4, 0.6, 0.8, 0.1, 0},
		{"ramping in", 0.2, 0.4, 0.6, 0.8, 0.3, 0.5},
		{"plateau", 0.2, 0.4, 0.6, 0.8, 0.5, 1},
		{"ramping out", 0.2, 0.4, 0.6, 0.8, 0.75, 0.15625},
		{"at end", 0.2, 0.4, 0.6, 0.8, 0.8, 0},
		{"hard edges", 0, 0, 1, 1, 0, 1},
		{"wrapped", 0.8, 0.9, 1.1, 1.2, 0.05, 1},
		{"wrapped ramp out", 0.8, 0.9, 1.1, 1.3, 0.2, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, WindowWeight(tt.start, tt.peak, tt.tail, tt.end, tt.cycle), 1e-12)
		})
	}
}

func TestLayerWeight(t *testing.T) {
	skel := &studio.Skeleton{PoseParams: []studio.PoseParam{{Name: "blend", Start: 0, End: 1}}}
	window := studio.AutoLayer{Start: 0.2, Peak: 0.4, Tail: 0.6, End: 0.8}
	with := func(f studio.LayerFlags) *studio.AutoLayer {
		l := window
		l.Flags = f
		return &l
	}

	tests := []struct {
		name       string
		layer      *studio.AutoLayer
		cycle      float64
		params     []float64
		carrier    float64
		wantOK     bool
		wantWeight float64
		wantCycle  float64
	}{
		{"smoothstepped ramp", with(0), 0.25, nil, 1, true, 0.15625, 0.05 / 0.6},
		{"scaled by carrier", with(0), 0.5, nil, 0.5, true, 0.5, 0.5},
		{"outside window", with(0), 0.9, nil, 1, false, 0, 0},
		{"no-blend uses the raw ramp", with(studio.LayerNoBlend), 0.25, nil, 0.5, true, 0.25, 0.05 / 0.6},
		{"cross-fade before tail stacks", with(studio.LayerXFade), 0.5, nil, 0.5, true, 0.5, 0.5},
		{"cross-fade after tail", with(studio.LayerXFade), 0.7, nil, 0.5, true, 1.0 / 3, 0.8333333333333334},
		{"cross-fade wins over no-blend", with(studio.LayerXFade | studio.LayerNoBlend), 0.7, nil, 0.5, true, 1.0 / 3, 0.8333333333333334},
		{"pose driven", with(studio.LayerPose), 0.9, []float64{0.5}, 1, true, 1, 0.9},
		{"pose driven outside", with(studio.LayerPose), 0.5, []float64{1}, 1, false, 0, 0},
		{"pose driven without parameter", with(studio.LayerPose), 0.5, nil, 1, false, 0, 0},
		{"always on", &studio.AutoLayer{}, 0.3, nil, 0.7, true, 0.7, 0.3},
		{"wrapped window", &studio.AutoLayer{Start: 0.8, Peak: 0.9, Tail: 1.1, End: 1.2}, 0.05, nil, 1, true, 1, 0.625},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, c, ok := LayerWeight(skel, tt.layer, tt.cycle, tt.params, tt.carrier)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.wantWeight, w, 1e-12)
			assert.InDelta(t, tt.wantCycle, c, 1e-12)
		})
	}
}

func TestLayerWeightPoseUnits(t *testing.T) {
	skel := &studio.Skeleton{PoseParams: []studio.PoseParam{
		{Name: "blend", Start: 0, End: 1},
		{Name: "aim_yaw", Start: -90, End: 90},
	}}
	aim := &studio.AutoLayer{Flags: studio.LayerPose, Pose: 1, Start: -45, Peak: 0, Tail: 0, End: 45}

	tests := []struct {
		name       string
		param      float64
		wantOK     bool
		wantWeight float64
	}{
		{"centre", 0.5, true, 1},
		{"half way up", 0.375, true, 0.5},
		{"half way down", 0.625, true, 0.5},
		{"window edge", 0.25, true, 0},
		{"below window", 0.1, false, 0},
		{"above window", 0.75, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, c, ok := LayerWeight(skel, aim, 0.3, []float64{0, tt.param}, 1)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.wantWeight, w, 1e-12)
			if ok {
				assert.Equal(t, 0.3, c, "pose-driven layers keep the carrier cycle")
			}
		})
	}

	_, _, ok := LayerWeight(&studio.Skeleton{}, aim, 0.3, []float64{0, 0.5}, 1)
	assert.False(t, ok, "parameter missing from the skeleton")
}
