package main

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/HugoSmits86/nativewebp"

	"studio-pose/internal/config"
	"studio-pose/internal/pose"
	"studio-pose/internal/postprocess"
	"studio-pose/internal/raster"
	"studio-pose/internal/studio"
)

// sequenceIndex finds a sequence by name; an empty name picks the first.
func sequenceIndex(m *studio.Model, name string) (int, error) {
	if name == "" {
		return 0, nil
	}
	for i, s := range m.Sequences {
		if s.Name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown sequence %q", name)
}

// parseParams turns name=value pairs, in each parameter's own units, into
// normalized pose parameters. Unset parameters are 0.
func parseParams(skel *studio.Skeleton, pairs []string) ([]float64, error) {
	params := make([]float64, len(skel.PoseParams))
	for _, kv := range pairs {
		name, val, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("param %q: want name=value", kv)
		}
		v, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", name, err)
		}
		i := -1
		for k, pp := range skel.PoseParams {
			if pp.Name == name {
				i = k
			}
		}
		if i < 0 {
			return nil, fmt.Errorf("unknown pose parameter %q", name)
		}
		pp := skel.PoseParams[i]
		if pp.End != pp.Start {
			params[i] = (v - pp.Start) / (pp.End - pp.Start)
		}
	}
	return params, nil
}

func renderOptions(cfg config.Config) (raster.Options, error) {
	opts := raster.DefaultOptions()
	opts.Size = cfg.RenderSize
	opts.Supersample = cfg.Supersample
	view, err := raster.ParseView(cfg.View)
	if err != nil {
		return opts, err
	}
	opts.View = view
	if cfg.Backdrop != "" {
		if opts.Backdrop, err = raster.LoadBackdrop(cfg.Backdrop); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

// renderPose draws m and downsamples the supersampled canvas.
func renderPose(skel *studio.Skeleton, m *pose.Matrices, opts raster.Options) *image.NRGBA {
	img := raster.RenderSkeleton(skel, m, opts)
	if opts.Supersample > 1 {
		img = postprocess.Downsample(img, opts.Size, opts.Size)
	}
	return img
}

func writeWebP(path string, img image.Image) error {
	if err := mkdirFor(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := nativewebp.Encode(f, img, nil); err != nil {
		f.Close()
		return fmt.Errorf("webp encode %s: %w", path, err)
	}
	return f.Close()
}

func mkdirFor(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0755)
}
