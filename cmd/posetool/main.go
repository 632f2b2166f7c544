// Command posetool evaluates rig fixtures: it renders posed skeletons,
// runs crowds through the parallel evaluator and prints rig summaries.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"studio-pose/internal/config"
	"studio-pose/internal/rig"
	"studio-pose/internal/studio"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// options holds the persistent flags shared by every subcommand.
type options struct {
	configFile string
	logLevel   string
	flags      config.Flags
}

func newRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:          "posetool",
		Short:        "Evaluate, render and inspect skeletal poses",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(cmd.ErrOrStderr(), o.logLevel)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&o.configFile, "config", "", "path to a JSON or YAML config file")
	pf.StringVar(&o.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	pf.StringVar(&o.flags.Rig, "rig", "", "rig file, JSON or YAML")
	pf.StringVar(&o.flags.BaseDir, "base", "", "directory relative paths resolve against (default: working directory)")
	pf.StringVar(&o.flags.OutputDir, "output", "", "output directory (default: renders)")
	pf.IntVar(&o.flags.Workers, "workers", 0, "number of worker goroutines (default: NumCPU)")
	pf.BoolVar(&o.flags.NoIK, "no-ik", false, "skip IK")

	root.AddCommand(newRenderCmd(o), newCrowdCmd(o), newInspectCmd(o))
	return root
}

var errNoRig = errors.New("no rig: use --rig or set rig in the config file")

// load resolves the configuration and builds the rig it names.
func (o *options) load() (config.Config, *studio.Model, error) {
	var cfg config.Config
	if o.configFile != "" {
		var err error
		if cfg, err = config.Load(o.configFile); err != nil {
			return cfg, nil, err
		}
	}
	cfg.Resolve(o.flags)
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}
	if cfg.Rig == "" {
		return cfg, nil, errNoRig
	}
	model, err := rig.LoadModel(cfg.Rig)
	if err != nil {
		return cfg, nil, fmt.Errorf("load rig: %w", err)
	}
	return cfg, model, nil
}
