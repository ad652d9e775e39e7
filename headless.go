package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/pthm-cable/inkswarm/capture"
	"github.com/pthm-cable/inkswarm/config"
	"github.com/pthm-cable/inkswarm/device"
	"github.com/pthm-cable/inkswarm/engine"
	"github.com/pthm-cable/inkswarm/telemetry"
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("229"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
)

// headlessRun configures one windowless run.
type headlessRun struct {
	Frames    int
	FPS       float64
	Width     int
	Height    int
	Profile   string
	Preset    int
	CaptureAt int // frame index; negative disables
	OutputDir string
}

var headlessFlags headlessRun

var headlessCmd = &cobra.Command{
	Use:   "headless",
	Short: "Run a fixed number of frames without a window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		run := headlessFlags
		run.OutputDir = outputDir
		return runHeadless(cmd.Context(), cmd.OutOrStdout(), config.Cfg(), run, slog.Default())
	},
}

func init() {
	f := headlessCmd.Flags()
	f.IntVarP(&headlessFlags.Frames, "frames", "n", 600, "Number of frames")
	f.Float64Var(&headlessFlags.FPS, "fps", 60, "Synthetic refresh rate")
	f.IntVar(&headlessFlags.Width, "width", 0, "Surface width (0 = config)")
	f.IntVar(&headlessFlags.Height, "height", 0, "Surface height (0 = config)")
	f.StringVarP(&headlessFlags.Profile, "profile", "p", "hero", "Load profile: hero or stress")
	f.IntVar(&headlessFlags.Preset, "preset", 0, "Preset id")
	f.IntVar(&headlessFlags.CaptureAt, "capture-at", -1, "Request a capture at this frame (-1 = never)")
}

func runHeadless(ctx context.Context, out io.Writer, cfg *config.Config, run headlessRun, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	profile, err := engine.ParseProfile(run.Profile)
	if err != nil {
		return err
	}
	if run.Width <= 0 {
		run.Width = cfg.Screen.Width
	}
	if run.Height <= 0 {
		run.Height = cfg.Screen.Height
	}
	if run.FPS <= 0 {
		run.FPS = 60
	}
	interval := time.Duration(float64(time.Second) / run.FPS)

	om, err := telemetry.NewOutputManager(run.OutputDir)
	if err != nil {
		return err
	}
	defer om.Close()
	if err := om.WriteConfig(cfg); err != nil {
		return err
	}

	dev := device.New(device.Options{Logger: logger, RowAlignment: cfg.Capture.RowAlignment})
	defer dev.Destroy()

	opts := engine.OptionsFromConfig(cfg)
	opts.Logger = logger
	eng, err := engine.New(dev, engine.FixedSurface{W: run.Width, H: run.Height}, opts)
	if err != nil {
		return err
	}
	defer eng.Destroy()

	eng.SetProfile(profile)
	if err := eng.SetPreset(run.Preset); err != nil {
		return err
	}

	logger.Info("starting headless run",
		"seed", cfg.Sim.Seed,
		"frames", run.Frames,
		"fps", run.FPS,
		"profile", profile.String(),
		"preset", eng.Preset(),
		"particles", eng.ActiveParticles(),
		"row_alignment", dev.RowAlignment(),
	)

	var (
		fut    *capture.Future
		totals = make([]time.Duration, 0, run.Frames)
		last   engine.Frame
	)
	for i := 0; i < run.Frames; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i == run.CaptureAt {
			if fut, err = eng.RequestCapture(); err != nil {
				return err
			}
		}

		frame, err := eng.Step(time.Duration(i) * interval)
		if err != nil {
			return err
		}
		last = frame
		s := frame.Stats
		totals = append(totals, s.Timings[engine.TimingTotal])

		if err := om.WriteFrame(frameRecord(i, s)); err != nil {
			return err
		}
		if cfg.Telemetry.LogEvery > 0 && (i+1)%cfg.Telemetry.LogEvery == 0 {
			if err := om.WritePerf(eng.Perf().Stats(), int32(i)); err != nil {
				return err
			}
		}
	}

	var capturePath string
	if fut != nil {
		waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		img, err := fut.Wait(waitCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("capture: %w", err)
		}
		dir := cfg.Capture.Dir
		if run.OutputDir != "" {
			dir = run.OutputDir
		}
		if capturePath, err = img.WritePNG(dir, time.Now()); err != nil {
			return fmt.Errorf("capture: %w", err)
		}
		logger.Info("capture saved", "path", capturePath)
	}

	summary := telemetry.Summarize(totals)
	logger.Info("headless run complete", "summary", summary)
	printSummary(out, last, summary, totals, capturePath, om.Dir())
	return nil
}

func frameRecord(i int, s engine.Stats) telemetry.FrameRecord {
	us := func(phase string) int64 { return s.Timings[phase].Microseconds() }
	return telemetry.FrameRecord{
		Frame:     i,
		Preset:    s.PresetID,
		Profile:   s.Profile.String(),
		Particles: s.Particles,
		DTMS:      float64(s.DT) * 1000,
		TotalUS:   us(engine.TimingTotal),
		ComputeUS: us(telemetry.PhaseCompute),
		TrailsUS:  us(telemetry.PhaseTrails),
		GlowUS:    us(telemetry.PhaseGlow),
		PresentUS: us(telemetry.PhasePresent),
		CaptureUS: us(telemetry.PhaseCapture),
		SubmitUS:  us(telemetry.PhaseSubmit),
	}
}

func printSummary(out io.Writer, last engine.Frame, s telemetry.FrameSummary, totals []time.Duration, capturePath, dir string) {
	row := func(label, value string) string {
		return labelStyle.Render(fmt.Sprintf("%-10s", label)) + " " + valueStyle.Render(value)
	}

	lines := []string{
		titleStyle.Render("Inkswarm headless run"),
		last.HUD,
		"",
		row("frames", fmt.Sprintf("%d", s.Frames)),
		row("mean", fmt.Sprintf("%.3f ms (sd %.3f)", s.MeanMS, s.StdMS)),
		row("p50", fmt.Sprintf("%.3f ms", s.P50MS)),
		row("p95", fmt.Sprintf("%.3f ms", s.P95MS)),
		row("p99", fmt.Sprintf("%.3f ms", s.P99MS)),
		row("range", fmt.Sprintf("%.3f .. %.3f ms", s.MinMS, s.MaxMS)),
	}
	if capturePath != "" {
		lines = append(lines, row("capture", capturePath))
	}
	if dir != "" {
		lines = append(lines, row("output", dir))
	}
	fmt.Fprintln(out, boxStyle.Render(strings.Join(lines, "\n")))

	if len(totals) > 1 {
		graph := asciigraph.Plot(telemetry.Milliseconds(totals),
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption("frame time (ms)"),
		)
		fmt.Fprintln(out, graph)
	}
}
