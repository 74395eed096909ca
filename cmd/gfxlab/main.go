package main

import (
	"fmt"
	"log/slog"
	"maps"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/gfxlab/internal/automation"
	"github.com/san-kum/gfxlab/internal/capability"
	"github.com/san-kum/gfxlab/internal/config"
	"github.com/san-kum/gfxlab/internal/core"
	"github.com/san-kum/gfxlab/internal/experiment"
	"github.com/san-kum/gfxlab/internal/host"
	"github.com/san-kum/gfxlab/internal/lifecycle"
	"github.com/san-kum/gfxlab/internal/quality"
	"github.com/san-kum/gfxlab/internal/resource"
	"github.com/san-kum/gfxlab/internal/shader"
	"github.com/san-kum/gfxlab/internal/storage"
	"github.com/san-kum/gfxlab/internal/telemetry"
	"github.com/san-kum/gfxlab/internal/viz"
	"github.com/spf13/cobra"
)

var (
	configFile string
	verbose    bool
	profile    string
	budget     uint64
	preset     string
	duration   float64
	frameRate  int
	save       bool
	outFile    string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gfxlab",
		Short: "interactive graphics experiments lab",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			core.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "integrated", "simulated device profile")
	rootCmd.PersistentFlags().Uint64Var(&budget, "budget", 0, "device memory budget in bytes (0 uses the profile's)")

	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "list experiments",
		RunE:  listCatalog,
	}

	probeCmd := &cobra.Command{
		Use:   "probe",
		Short: "probe device capability and show baseline quality",
		RunE:  probeDevice,
	}

	runCmd := &cobra.Command{
		Use:   "run [experiment]",
		Short: "run an experiment headless on a simulated clock",
		Args:  cobra.ExactArgs(1),
		RunE:  runHeadless,
	}
	runCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	runCmd.Flags().Float64Var(&duration, "time", 0, "simulated seconds (0 uses config)")
	runCmd.Flags().IntVar(&frameRate, "fps", 0, "simulated frame rate (0 uses config)")
	runCmd.Flags().BoolVar(&save, "save", false, "record the run")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file.yaml]",
		Short: "run a scripted sequence of headless experiments",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}
	scenarioCmd.Flags().BoolVar(&save, "save", false, "record every completed step")

	liveCmd := &cobra.Command{
		Use:   "live [experiment]",
		Short: "run experiments in the terminal",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	liveCmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "list recorded runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot frame rate and frame time of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run metadata and telemetry as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVarP(&outFile, "output", "o", "", "write to file instead of stdout")

	shaderCmd := &cobra.Command{
		Use:   "shader",
		Short: "shader tools",
	}
	compileCmd := &cobra.Command{
		Use:   "compile [file.wgsl]",
		Short: "compile a fragment shader against the sandbox uniforms",
		Args:  cobra.ExactArgs(1),
		RunE:  compileShader,
	}
	shaderCmd.AddCommand(compileCmd)

	presetsCmd := &cobra.Command{
		Use:   "presets [kind]",
		Short: "list available presets for an experiment kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets := config.ListPresets(args[0])
			if len(presets) == 0 {
				fmt.Printf("no presets for kind: %s\n", args[0])
				return nil
			}
			fmt.Printf("presets for %s:\n", args[0])
			for _, p := range presets {
				fmt.Printf("  %s\n", p)
			}
			return nil
		},
	}

	rootCmd.AddCommand(catalogCmd, probeCmd, runCmd, scenarioCmd, liveCmd, runsCmd, plotCmd, exportCmd, shaderCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configFile == "" {
		return config.DefaultConfig(), nil
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// loadCatalog loads the configured catalog and compiles the shader presets
// up front, so a broken preset stops the command before any device work.
func loadCatalog(cfg *config.Config) (experiment.Catalog, error) {
	return experiment.NewRegistry(cfg).Catalog(cfg.Catalog)
}

// setup resolves the experiment and applies any preset for its kind.
func setup(id string) (*config.Config, experiment.Catalog, experiment.Descriptor, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, experiment.Descriptor{}, err
	}
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, nil, experiment.Descriptor{}, err
	}
	var d experiment.Descriptor
	if id != "" {
		if d, err = catalog.Find(id); err != nil {
			return nil, nil, experiment.Descriptor{}, err
		}
	}
	if preset != "" {
		kind := d.Kind.String()
		p := config.GetPreset(kind, preset)
		if p == nil {
			return nil, nil, experiment.Descriptor{}, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(kind))
		}
		cfg.Apply(kind, p)
	}
	return cfg, catalog, d, nil
}

func listCatalog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tDIFFICULTY\tMEMORY\tADVANCED\tTITLE")
	for _, d := range catalog {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
			d.ID, d.Kind, d.Difficulty, d.BaselineMemoryClass, d.RequiresAdvancedShaders, d.Title)
	}
	return w.Flush()
}

func probeDevice(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	h, _, err := host.NewHeadless(profile, budget)
	if err != nil {
		return err
	}
	snap := capability.Probe(h)
	base := quality.Baseline(snap, 0)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "adapter:\t%s (%s)\n", snap.Adapter, snap.Backend)
	fmt.Fprintf(w, "tier:\t%s\n", snap.Tier)
	fmt.Fprintf(w, "advanced shaders:\t%t\n", snap.SupportsAdvancedShaders)
	fmt.Fprintf(w, "max texture:\t%d\n", snap.MaxTextureSize)
	fmt.Fprintf(w, "pixel ratio:\t%.2f\n", snap.PixelRatio)
	fmt.Fprintf(w, "baseline:\t%s\n", base)
	fmt.Fprintf(w, "frame budget:\t%.2f ms (degrade above %.2f ms)\n",
		base.FrameBudgetMs(), base.FrameBudgetMs()*cfg.Quality.DegradeFactor)
	return w.Flush()
}

type session struct {
	host     *host.Host
	dev      *resource.Manager
	sched    *host.ManualScheduler
	registry *experiment.Registry
	ctrl     *lifecycle.Controller
}

func newSession(cfg *config.Config, sink telemetry.Sink, errs lifecycle.ErrorSink) (*session, error) {
	h, dev, err := host.NewHeadless(profile, budget)
	if err != nil {
		return nil, err
	}
	s := &session{
		host:     h,
		dev:      resource.NewManager(dev),
		sched:    host.NewManualScheduler(),
		registry: experiment.NewRegistry(cfg),
	}
	s.ctrl = lifecycle.New(lifecycle.Options{
		Registry:   s.registry,
		Resources:  s.dev,
		Capability: capability.NewCache(h),
		Scheduler:  s.sched,
		Telemetry:  sink,
		Errors:     errs,
		Thresholds: cfg.Quality,
	})
	return s, nil
}

func runHeadless(cmd *cobra.Command, args []string) error {
	cfg, catalog, d, err := setup(args[0])
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("time") {
		cfg.Telemetry.Duration = duration
	}
	if cmd.Flags().Changed("fps") {
		cfg.Telemetry.FrameRate = frameRate
	}
	if save {
		cfg.Telemetry.Record = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	runner := &automation.Runner{
		Config:  cfg,
		Catalog: catalog,
		Sink: telemetry.SinkFunc(func(s core.FrameStats) {
			fmt.Printf("  fps=%3d  frame=%6.2fms  mem=%7.2fMB\n", s.FPS, s.FrameTimeMs, s.MemoryMB)
		}),
		Errors: lifecycle.ErrorSinkFunc(func(e *core.Error) {
			fmt.Fprintf(os.Stderr, "error: %v\n", e)
		}),
	}

	fmt.Printf("running %s on %s...\n", d.ID, profile)
	res, err := runner.Run(cmd.Context(), automation.Step{Experiment: d.ID, Profile: profile, Budget: budget})
	if err != nil {
		return err
	}

	fmt.Printf("\nframes: %d\n", res.Frames)
	fmt.Printf("quality: %s\n", res.Initial)
	if res.Final != res.Initial {
		fmt.Printf("      -> %s\n", res.Final)
	}
	if len(res.Errors) > 0 {
		fmt.Printf("errors: %d\n", len(res.Errors))
	}
	fmt.Println("\nmetrics:")
	for _, name := range slices.Sorted(maps.Keys(res.Metrics)) {
		fmt.Printf("  %s: %.6f\n", name, res.Metrics[name])
	}

	if !cfg.Telemetry.Record {
		return nil
	}
	runID, err := record(cfg, res)
	if err != nil {
		return err
	}
	fmt.Printf("\nrun id: %s\n", runID)
	return nil
}

func record(cfg *config.Config, res *automation.Result) (string, error) {
	st := storage.New(cfg.Telemetry.RunsDir)
	if err := st.Init(); err != nil {
		return "", err
	}
	return st.Save(res.Record(cfg.Seed))
}

func runScenario(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("scenario %s: %d steps\n", sc.Name, len(sc.Steps))
	runner := &automation.Runner{Config: cfg, Catalog: catalog}
	results, runErr := runner.RunScenario(cmd.Context(), sc)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tEXPERIMENT\tPROFILE\tFRAMES\tAVG FPS\tRUNG\tERRORS\tRUN")
	for i, res := range results {
		if res == nil {
			fmt.Fprintf(w, "%d\t%s\t-\t-\t-\t-\tfailed\t-\n", i+1, sc.Steps[i].Experiment)
			continue
		}
		runID := "-"
		if save && res.Frames > 0 {
			if runID, err = record(cfg, res); err != nil {
				return err
			}
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%.1f\t%d\t%d\t%s\n",
			i+1, res.Descriptor.ID, res.Step.Profile, res.Frames, meanFPS(res.Stats), res.Final.Rung, len(res.Errors), runID)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return runErr
}

func meanFPS(stats []core.FrameStats) float64 {
	if len(stats) == 0 {
		return 0
	}
	sum := 0
	for _, s := range stats {
		sum += s.FPS
	}
	return float64(sum) / float64(len(stats))
}

func runLive(cmd *cobra.Command, args []string) error {
	id := ""
	if len(args) > 0 {
		id = args[0]
	}
	cfg, catalog, d, err := setup(id)
	if err != nil {
		return err
	}
	start := 0
	for i, c := range catalog {
		if c.ID == d.ID {
			start = i
		}
	}

	feed := &viz.Feed{}
	sess, err := newSession(cfg, feed, feed)
	if err != nil {
		return err
	}
	return viz.Run(viz.Options{
		Controller: sess.ctrl,
		Scheduler:  sess.sched,
		Registry:   sess.registry,
		Catalog:    catalog,
		Feed:       feed,
		Start:      start,
	})
}

func listRuns(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	runs, err := storage.New(cfg.Telemetry.RunsDir).List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEXPERIMENT\tTIME\tDURATION\tFRAMES\tPROFILE\tLEVEL")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2fs\t%d\t%s\t%s\n",
			run.ID,
			run.Experiment,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Frames,
			run.Profile,
			run.Settings.Level,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st := storage.New(cfg.Telemetry.RunsDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	frames, err := st.LoadFrames(args[0])
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("experiment: %s\n", meta.Experiment)
	fmt.Printf("windows: %d\n\n", len(frames))

	fps := make([]float64, len(frames))
	ms := make([]float64, len(frames))
	for i, f := range frames {
		fps[i] = float64(f.FPS)
		ms[i] = f.FrameTimeMs
	}
	fmt.Println(asciigraph.Plot(fps, asciigraph.Height(10), asciigraph.Width(80), asciigraph.Caption("fps")))
	fmt.Println()
	fmt.Println(asciigraph.Plot(ms, asciigraph.Height(10), asciigraph.Width(80), asciigraph.Caption("frame time (ms)")))
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st := storage.New(cfg.Telemetry.RunsDir)
	if outFile != "" {
		if err := st.ExportFile(outFile, args[0]); err != nil {
			return err
		}
		fmt.Printf("exported to %s\n", outFile)
		return nil
	}
	return st.Export(os.Stdout, args[0])
}

func compileShader(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	src, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	prog, err := shader.NewCompiler().WithDebug(cfg.Shader.Debug).CompileFragment(args[0], string(src))
	if err != nil {
		return err
	}
	fmt.Printf("ok: %s\n", prog.Name)
	fmt.Printf("spirv words: %d\n", len(prog.SPIRV))
	fmt.Printf("hash: %s\n", prog.Hash)
	return nil
}
