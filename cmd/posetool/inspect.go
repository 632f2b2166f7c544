package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"studio-pose/internal/anim"
	"studio-pose/internal/mathutil"
	"studio-pose/internal/studio"
)

func newInspectCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Print the bones, chains, parameters and sequences of a rig",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, model, err := o.load()
			if err != nil {
				return err
			}
			return printModel(cmd.OutOrStdout(), model)
		},
	}
}

func printModel(out io.Writer, m *studio.Model) error {
	skel := m.Skel
	fmt.Fprintf(out, "Skeleton %s (%s): %d bones\n", skel.Name, skel.ID, skel.NumBones())

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\nBONE\tPARENT\tPOS\tFLAGS")
	for i, b := range skel.Bones {
		parent := "-"
		if b.Parent >= 0 {
			parent = skel.Bones[b.Parent].Name
		}
		fmt.Fprintf(w, "%s%s\t%s\t%.2f %.2f %.2f\t%#x\n",
			strings.Repeat("  ", depth(skel, i)), b.Name, parent, b.Pos[0], b.Pos[1], b.Pos[2], uint32(b.Flags))
	}

	if len(skel.IKChains) > 0 {
		fmt.Fprintln(w, "\nCHAIN\tHIP\tKNEE\tFOOT")
		for _, c := range skel.IKChains {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Name,
				skel.Bones[c.Links[0].Bone].Name, skel.Bones[c.Links[1].Bone].Name, skel.Bones[c.Links[2].Bone].Name)
		}
	}
	if len(skel.PoseParams) > 0 {
		fmt.Fprintln(w, "\nPARAM\tSTART\tEND\tLOOP")
		for _, p := range skel.PoseParams {
			fmt.Fprintf(w, "%s\t%g\t%g\t%g\n", p.Name, p.Start, p.End, p.Loop)
		}
	}

	d := anim.Decoder{Skel: skel, Pager: m}
	fmt.Fprintln(w, "\nANIMATION\tFRAMES\tFPS\tTRACKS\tRULES\tDELTA\tROOT MOTION")
	for _, a := range m.Animations {
		motion := "-"
		if v, err := rootMotion(d, a); err == nil {
			motion = fmt.Sprintf("%.2f %.2f %.2f", v[0], v[1], v[2])
		}
		fmt.Fprintf(w, "%s\t%d\t%g\t%d\t%d\t%t\t%s\n", a.Name, a.NumFrames, a.FPS, len(a.Tracks), len(a.IKRules), a.IsDelta(), motion)
	}

	fmt.Fprintln(w, "\nSEQUENCE\tGRID\tANIMS\tLAYERS\tLOCKS")
	for _, s := range m.Sequences {
		names := make([]string, len(s.Anims))
		for i, a := range s.Anims {
			names[i] = m.Animations[a].Name
		}
		fmt.Fprintf(w, "%s\t%dx%d\t%s\t%d\t%d\n",
			s.Name, s.Group[0], s.Group[1], strings.Join(names, ","), len(s.Layers), len(s.IKLocks))
	}
	return w.Flush()
}

func depth(skel *studio.Skeleton, bone int) int {
	d := 0
	for p := skel.Bones[bone].Parent; p >= 0; p = skel.Bones[p].Parent {
		d++
	}
	return d
}

// rootMotion is how far the root bone travels from the first frame of a to
// the last.
func rootMotion(d anim.Decoder, a *studio.Animation) (mathutil.Vec3, error) {
	first, _, err := d.DecodeBone(a, 0, 0, 0)
	if err != nil {
		return mathutil.Vec3{}, err
	}
	last, _, err := d.DecodeBone(a, 0, a.NumFrames-1, 0)
	if err != nil {
		return mathutil.Vec3{}, err
	}
	return last.Sub(first), nil
}
