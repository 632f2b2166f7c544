package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"studio-pose/internal/character"
	"studio-pose/internal/diag"
	"studio-pose/internal/mathutil"
	"studio-pose/internal/studio"
)

func newRenderCmd(o *options) *cobra.Command {
	var (
		seqName string
		cycle   float64
		frames  int
		params  []string
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a sequence of a rig to WebP images",
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
			pp, err := parseParams(model.Skel, params)
			if err != nil {
				return err
			}
			opts, err := renderOptions(cfg)
			if err != nil {
				return err
			}
			if frames < 1 {
				frames = 1
			}

			s := model.Sequences[seq]
			duration := studio.Duration(model, s, pp)
			c := character.New(model, nil, nil, cfg.Character())
			for k := range frames {
				phase := float64(k) / float64(frames)
				m, err := c.Setup(character.Frame{
					Root:   mathutil.Mat3x4Identity(),
					Time:   phase * duration,
					Frame:  k,
					Params: pp,
					Layers: []character.Layer{{Sequence: seq, Cycle: cycle + phase, Weight: 1}},
				})
				if err != nil {
					return err
				}
				name := s.Name + ".webp"
				if frames > 1 {
					name = fmt.Sprintf("%s_%d.webp", s.Name, k)
				}
				path := filepath.Join(cfg.OutputDir, name)
				if err := writeWebP(path, renderPose(model.Skel, m, opts)); err != nil {
					return err
				}
				diag.Logger().Info("rendered", "path", path, "cycle", cycle+phase)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rendered %d frame(s) of %s to %s\n", frames, s.Name, cfg.OutputDir)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&seqName, "sequence", "", "sequence to play (default: the first)")
	f.Float64Var(&cycle, "cycle", 0, "starting cycle in [0, 1)")
	f.IntVar(&frames, "frames", 1, "frames to render across one cycle")
	f.StringArrayVar(&params, "param", nil, "pose parameter as name=value, repeatable")
	f.IntVar(&o.flags.Size, "size", 0, "output size in pixels (default: 256)")
	f.StringVar(&o.flags.View, "view", "", "view axis: front, side or top")
	return cmd
}
