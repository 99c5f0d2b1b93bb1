package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/walteh/optirc/pkg/fingerprint"
	"github.com/walteh/optirc/pkg/log"
	"github.com/walteh/optirc/pkg/pipeline"
)

var (
	// Flags
	concurrent bool
	strict     bool
	noCache    bool
	squash     bool
	mapName    string
	configPath string
	noConfig   bool
	debug      bool
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "optirc <source> [target]",
		Short: "Incrementally optimize an image tree into a mirrored target",
		Long: `optirc resolves a source file or tree, skips files whose content
fingerprint is unchanged since the last run, pushes the rest through the
configured optimizer backends, and writes results to a mirrored target
tree. The fingerprint map lives under the source root.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runRoot,
	}

	cmd.Flags().BoolVar(&concurrent, "concurrent", false, "process all files at once instead of in order")
	cmd.Flags().BoolVar(&strict, "strict", false, "abort the run on the first error")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable fingerprinting, process every file")
	cmd.Flags().BoolVar(&squash, "squash", false, "discard the persisted fingerprint map and start fresh")
	cmd.Flags().StringVar(&mapName, "map-name", fingerprint.DefaultMapName, "fingerprint map file name under the source root")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "explicit transform config document path")
	cmd.Flags().BoolVar(&noConfig, "no-config", false, "skip transform config resolution entirely")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")

	return cmd
}

func runRoot(cmd *cobra.Command, args []string) error {
	setupLogging()
	ctx := cmd.Context()

	source := args[0]
	target := source + "-optimized"
	if len(args) == 2 {
		target = args[1]
	}

	log.Header(os.Stdout, fmt.Sprintf("%s → %s", source, target))

	orch := pipeline.New(pipeline.Options{
		Cache: fingerprint.New(fingerprint.Options{
			Disabled: noCache,
			Squash:   squash,
			MapName:  mapName,
		}),
		Hooks:          log.NewReporter(os.Stdout),
		Strict:         strict,
		Concurrent:     concurrent,
		ConfigPath:     configPath,
		ConfigDisabled: noConfig,
	})

	st, err := orch.Run(ctx, source, target)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("run failed")
		return err
	}

	fmt.Fprintln(os.Stdout)
	fmt.Fprintln(os.Stdout, renderSummary(st))
	fmt.Fprintln(os.Stdout)

	if n := st.ErrorCount(); n > 0 {
		log.Warning(os.Stdout, fmt.Sprintf("%d of %d files failed", n, st.Sources))
	} else {
		log.Success(os.Stdout, "all files handled")
	}
	return nil
}

// setupLogging configures zerolog based on flags
func setupLogging() {
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}
	logger := zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = os.Stderr
	})).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger
}
