package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"studio-pose/internal/batch"
	"studio-pose/internal/bonecache"
	"studio-pose/internal/character"
	"studio-pose/internal/mathutil"
	"studio-pose/internal/pose"
	"studio-pose/internal/studio"
)

const frameRate = 30

func newCrowdCmd(o *options) *cobra.Command {
	var (
		seqName  string
		count    int
		frames   int
		render   bool
		manifest string
	)
	cmd := &cobra.Command{
		Use:   "crowd",
		Short: "Evaluate many characters in parallel and report timings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, model, err := o.load()
			if err != nil {
				return err
			}
			seq, err := sequenceIndex(model, seqName)
			if err != nil {
				return err
			}
			opts, err := renderOptions(cfg)
			if err != nil {
				return err
			}

			jobs := crowdJobs(model, seq, count, frames)
			cache := bonecache.New(cfg.CacheBudget)
			bcfg := batch.Config{
				Provider:  model,
				Cache:     cache,
				Character: cfg.Character(),
				Workers:   cfg.Workers,
				Progress:  2 * time.Second,
			}
			image := func(name string) string { return name + ".webp" }
			if render {
				bcfg.Visit = func(job string, frame int, m *pose.Matrices) error {
					if frame != frames-1 {
						return nil
					}
					return writeWebP(filepath.Join(cfg.OutputDir, image(job)), renderPose(model.Skel, m, opts))
				}
			} else {
				image = nil
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Crowd: %d characters x %d frames, workers %d\n", len(jobs), frames, cfg.Workers)
			start := time.Now()
			results, err := batch.Run(cmd.Context(), bcfg, jobs)
			if err != nil {
				return err
			}
			elapsed := time.Since(start)

			success := 0
			for _, r := range results {
				if r.Success {
					success++
				} else {
					fmt.Fprintf(out, "  %s: %s\n", r.Name, r.Error)
				}
			}
			fmt.Fprintf(out, "Evaluated: %d/%d in %.2fs (%.0f frames/sec)\n",
				success, len(jobs), elapsed.Seconds(), float64(len(jobs)*frames)/elapsed.Seconds())

			path := manifest
			if !filepath.IsAbs(path) {
				path = filepath.Join(cfg.OutputDir, path)
			}
			if err := mkdirFor(path); err != nil {
				return err
			}
			if err := batch.WriteManifest(path, results, image); err != nil {
				return err
			}
			return printCacheMetrics(out, cache)
		},
	}
	f := cmd.Flags()
	f.StringVar(&seqName, "sequence", "", "sequence every character plays (default: the first)")
	f.IntVar(&count, "count", 16, "number of characters")
	f.IntVar(&frames, "frames", frameRate, "frames per character")
	f.BoolVar(&render, "render", false, "write a WebP of each character's last frame")
	f.StringVar(&manifest, "manifest", "manifest.json", "manifest path, relative to the output directory")
	f.IntVar(&o.flags.Size, "size", 0, "output size in pixels (default: 256)")
	f.StringVar(&o.flags.View, "view", "", "view axis: front, side or top")
	return cmd
}

// crowdJobs spreads characters over phase and over every pose parameter
// so that they do not all share one bone setup.
func crowdJobs(m *studio.Model, seq, count, frames int) []batch.Job {
	s := m.Sequences[seq]
	jobs := make([]batch.Job, count)
	for i := range jobs {
		params := make([]float64, len(m.Skel.PoseParams))
		for k := range params {
			params[k] = float64((i+k)%5) / 4
		}
		rate := studio.CycleRate(m, s, params)
		phase := float64(i) / float64(max(count, 1))

		j := batch.Job{Name: fmt.Sprintf("%s-%03d", s.Name, i)}
		for k := range frames {
			t := float64(k) / frameRate
			j.Frames = append(j.Frames, character.Frame{
				Root:   mathutil.Mat3x4Identity(),
				Time:   t,
				Frame:  k,
				Params: params,
				Layers: []character.Layer{{Sequence: seq, Cycle: phase + t*rate, Weight: 1}},
			})
		}
		jobs[i] = j
	}
	return jobs
}

func printCacheMetrics(w io.Writer, cache *bonecache.Cache) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(bonecache.NewCollector(cache)); err != nil {
		return err
	}
	mfs, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			fmt.Fprintf(w, "%s %g\n", mf.GetName(), m.GetCounter().GetValue()+m.GetGauge().GetValue())
		}
	}
	return nil
}
