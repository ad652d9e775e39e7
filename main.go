package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pthm-cable/inkswarm/config"
	"github.com/pthm-cable/inkswarm/device"
	"github.com/pthm-cable/inkswarm/engine"
	"github.com/pthm-cable/inkswarm/gen"
	"github.com/pthm-cable/inkswarm/viewer"
)

var (
	configPath string
	seed       uint32
	logLevel   string
	outputDir  string
)

var rootCmd = &cobra.Command{
	Use:   "inkswarm",
	Short: "Deterministic particle-life renderer",
	Long: `Inkswarm integrates colour-coded particle species under pairwise
attraction and repulsion and renders them as decaying ink trails with glow.`,
	PersistentPreRunE: setup,
	RunE:              runViewer,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open the interactive viewer",
	Args:  cobra.NoArgs,
	RunE:  runViewer,
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List presets",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, p := range gen.Presets() {
			fmt.Fprintf(cmd.OutOrStdout(), "%d  %s\n", p.ID, p.Name)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml (empty = use defaults)")
	rootCmd.PersistentFlags().Uint32Var(&seed, "seed", 0, "Simulation seed (0 = use config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output-dir", "", "Output directory for CSV logs and config snapshot")

	rootCmd.AddCommand(runCmd, headlessCmd, presetsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup installs the JSON logger and loads the config before any command.
func setup(cmd *cobra.Command, args []string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := config.Init(configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		return err
	}
	if seed != 0 {
		config.Cfg().Sim.Seed = seed
	}
	return nil
}

func engineOptions(cfg *config.Config) engine.Options {
	opts := engine.OptionsFromConfig(cfg)
	opts.Logger = slog.Default()
	return opts
}

func runViewer(cmd *cobra.Command, args []string) error {
	cfg := config.Cfg()

	win := viewer.Open(cfg.Screen.Width, cfg.Screen.Height, cfg.Screen.TargetFPS, "Inkswarm")
	defer win.Close()

	dev := device.New(device.Options{Logger: slog.Default(), RowAlignment: cfg.Capture.RowAlignment})
	defer dev.Destroy()

	eng, err := engine.New(dev, win, engineOptions(cfg))
	if err != nil {
		return err
	}
	defer eng.Destroy()

	slog.Info("starting viewer",
		"seed", cfg.Sim.Seed,
		"hero_particles", cfg.Sim.HeroParticles,
		"stress_particles", cfg.Derived.StressParticles,
		"species", cfg.Sim.SpeciesCount,
		"row_alignment", dev.RowAlignment(),
	)
	return viewer.New(win, eng, cfg.Capture.Dir, slog.Default()).Run()
}
