package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio-pose/internal/bonecache"
	"studio-pose/internal/character"
	"studio-pose/internal/ik"
	"studio-pose/internal/mathutil"
	"studio-pose/internal/pose"
	"studio-pose/internal/rig"
	"studio-pose/internal/studio"
)

const seqMove = 1

func biped(t *testing.T) *studio.Model {
	t.Helper()
	m, err := rig.LoadModel("../rig/testdata/biped.yaml")
	require.NoError(t, err)
	return m
}

// walkJob plays the move sequence from phase for n frames.
func walkJob(name string, phase, speed float64, n int) Job {
	j := Job{Name: name}
	for k := range n {
		j.Frames = append(j.Frames, character.Frame{
			Root:   mathutil.Mat3x4Identity(),
			Time:   float64(k) / 30,
			Frame:  k,
			Params: []float64{speed},
			Layers: []character.Layer{{Sequence: seqMove, Cycle: phase + float64(k)/20, Weight: 1}},
		})
	}
	return j
}

func crowd(n int) []Job {
	jobs := make([]Job, n)
	for i := range jobs {
		jobs[i] = walkJob(fmt.Sprintf("walker-%d", i), float64(i)/7, float64(i%4)/3, 5)
	}
	return jobs
}

func TestRunMatchesSequential(t *testing.T) {
	m := biped(t)
	cfg := Config{Provider: m, Character: character.Config{IK: ik.DefaultConfig()}, Workers: 3}
	jobs := crowd(8)

	results, err := Run(context.Background(), cfg, jobs)
	require.NoError(t, err)
	require.Len(t, results, len(jobs))

	for i, job := range jobs {
		c := character.New(m, nil, nil, cfg.Character)
		var world *pose.Matrices
		for _, f := range job.Frames {
			world, err = c.Setup(f)
			require.NoError(t, err)
		}
		r := results[i]
		assert.True(t, r.Success, r.Error)
		assert.Equal(t, job.Name, r.Name)
		assert.Equal(t, len(job.Frames), r.Frames)
		assert.Equal(t, world.World, r.World, "job %s", job.Name)
	}
}

func TestRunReportsJobErrors(t *testing.T) {
	jobs := crowd(3)
	jobs[1].Frames[2].Layers[0].Sequence = 42

	results, err := Run(context.Background(), Config{Provider: biped(t), Workers: 2}, jobs)
	require.NoError(t, err)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Equal(t, 2, results[1].Frames)
	assert.Contains(t, results[1].Error, "frame 2")
	assert.True(t, results[2].Success)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err := Run(ctx, Config{Provider: biped(t), Workers: 2}, crowd(4))
	require.ErrorIs(t, err, context.Canceled)
	for _, r := range results {
		assert.False(t, r.Success)
	}
}

func TestRunVisitsEveryFrame(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string][]int)
	cfg := Config{
		Provider: biped(t),
		Workers:  4,
		Visit: func(job string, frame int, m *pose.Matrices) error {
			mu.Lock()
			defer mu.Unlock()
			seen[job] = append(seen[job], frame)
			return nil
		},
	}
	_, err := Run(context.Background(), cfg, crowd(5))
	require.NoError(t, err)
	require.Len(t, seen, 5)
	for job, frames := range seen {
		assert.Equal(t, []int{0, 1, 2, 3, 4}, frames, job)
	}
}

func TestRunWithSharedCache(t *testing.T) {
	m := biped(t)
	jobs := crowd(6)
	cfg := Config{Provider: m, Character: character.Config{NoIK: true, CacheTolerance: 0.001}, Workers: 4}

	want, err := Run(context.Background(), cfg, jobs)
	require.NoError(t, err)

	cache := bonecache.New(bonecache.DefaultBudget)
	cfg.Cache = cache
	got, err := Run(context.Background(), cfg, jobs)
	require.NoError(t, err)
	for i := range want {
		require.True(t, got[i].Success, got[i].Error)
		assert.Equal(t, want[i].World, got[i].World, "job %s", jobs[i].Name)
	}

	st := cache.Stats()
	assert.Equal(t, len(jobs), st.Entries, "one entry per character")
	assert.Zero(t, st.Hits, "characters never read each other's poses")
	assert.EqualValues(t, 6*5, st.Misses)
}

func TestWriteManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	results := []Result{
		{Name: "a", Frames: 3, Success: true},
		{Name: "b", Frames: 1, Error: "frame 1: boom"},
	}
	require.NoError(t, WriteManifest(path, results, func(name string) string { return name + ".webp" }))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entries []ManifestEntry
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "a.webp", entries[0].Image)
	assert.Empty(t, entries[1].Image)
	assert.Equal(t, "frame 1: boom", entries[1].Error)
}
