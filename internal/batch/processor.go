// Package batch evaluates a crowd of characters in parallel.
package batch

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"studio-pose/internal/bonecache"
	"studio-pose/internal/character"
	"studio-pose/internal/diag"
	"studio-pose/internal/mathutil"
	"studio-pose/internal/pose"
	"studio-pose/internal/studio"
)

// arenaDepth covers a carrier, its layers and one level of nested layers.
const arenaDepth = 8

// Config holds the resources shared by every job of a run.
type Config struct {
	Provider  studio.Provider
	Cache     *bonecache.Cache // may be nil
	Character character.Config
	Workers   int

	// Progress is the interval between progress log lines; zero disables them.
	Progress time.Duration

	// Visit, when set, is called after every evaluated frame from the worker
	// goroutine that evaluated it. It must be safe for concurrent use.
	Visit func(job string, frame int, m *pose.Matrices) error
}

// Job is one character played through a run of frames.
type Job struct {
	Name   string
	Frames []character.Frame
}

// Result holds the outcome of one job.
type Result struct {
	Name     string
	Frames   int // frames evaluated
	World    []mathutil.Mat3x4
	Success  bool
	Error    string
	Duration time.Duration
}

// Run evaluates jobs with at most cfg.Workers characters in flight. Job
// failures are reported in the results; the returned error is only set when
// ctx is cancelled.
func Run(ctx context.Context, cfg Config, jobs []Job) ([]Result, error) {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	total := len(jobs)
	results := make([]Result, total)
	var processed atomic.Int64

	// each worker holds one arena at a time
	bones := cfg.Provider.Skeleton().NumBones()
	arenas := make(chan *pose.Arena, workers)
	for range workers {
		arenas <- pose.NewArena(bones, arenaDepth)
	}

	start := time.Now()
	done := make(chan struct{})
	if cfg.Progress > 0 {
		go report(done, cfg.Progress, start, &processed, total)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range jobs {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			arena := <-arenas
			defer func() { arenas <- arena }()

			results[i] = runJob(gCtx, cfg, arena, &jobs[i])
			processed.Add(1)
			return nil
		})
	}
	err := g.Wait()
	close(done)

	diag.Logger().Info("batch finished", "jobs", total, "processed", processed.Load(), "elapsed", time.Since(start))
	if err != nil {
		return results, fmt.Errorf("batch: %w", err)
	}
	return results, nil
}

func report(done <-chan struct{}, every time.Duration, start time.Time, processed *atomic.Int64, total int) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if p := processed.Load(); p > 0 {
				rate := float64(p) / time.Since(start).Seconds()
				diag.Logger().Info("batch progress", "done", p, "total", total, "jobs_per_sec", rate)
			}
		}
	}
}

func runJob(ctx context.Context, cfg Config, arena *pose.Arena, job *Job) Result {
	start := time.Now()
	res := Result{Name: job.Name}
	c := character.New(cfg.Provider, cfg.Cache, arena, cfg.Character)

	var world *pose.Matrices
	for k, f := range job.Frames {
		if ctx.Err() != nil {
			res.Error = ctx.Err().Error()
			res.Duration = time.Since(start)
			return res
		}
		m, err := c.Setup(f)
		if err != nil {
			res.Error = fmt.Sprintf("frame %d: %v", k, err)
			res.Duration = time.Since(start)
			return res
		}
		if cfg.Visit != nil {
			if err := cfg.Visit(job.Name, k, m); err != nil {
				res.Error = fmt.Sprintf("frame %d: %v", k, err)
				res.Duration = time.Since(start)
				return res
			}
		}
		world = m
		res.Frames++
	}
	if world != nil {
		res.World = append([]mathutil.Mat3x4(nil), world.World...)
	}
	res.Success = true
	res.Duration = time.Since(start)
	return res
}
