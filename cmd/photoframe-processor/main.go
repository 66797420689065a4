package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/sunshineplan/progressbar"
	"github.com/sunshineplan/utils/log"

	photoframe "github.com/sephiroth74/photoframe-processor"
	"github.com/sephiroth74/photoframe-processor/internal/config"
	"github.com/sephiroth74/photoframe-processor/internal/utils"
	"github.com/sephiroth74/photoframe-processor/pkg/batch"
)

var (
	configFile = flag.String("config", config.GetConfigPath(), "configuration file (json or yaml)")
	envFile    = flag.String("env", ".env", "environment file")

	outDir       = flag.String("out", "", "output directory")
	displayType  = flag.String("type", "", "display type: bw|6c|7c")
	formats      = flag.String("format", "", "comma separated output formats: bmp,bin,bin4,jpg,png,webp,h")
	size         = flag.String("size", "", "display size WxH")
	target       = flag.String("orientation", "", "display orientation: landscape|portrait")
	autoSwap     = flag.Bool("auto-swap", false, "swap the canvas for single images of the other orientation")
	method       = flag.String("method", "", "dithering method: floyd-steinberg|atkinson|stucki|jarvis-judice-ninke|ordered")
	strength     = flag.Float64("strength", 0, "dithering strength (0.5..2.0)")
	autoOptimize = flag.Bool("auto-optimize", false, "pick dithering settings per image")
	brightness   = flag.Int("brightness", 0, "brightness adjustment (-100..100)")
	contrast     = flag.Int("contrast", 0, "contrast adjustment (-100..100)")
	autoColor    = flag.Bool("auto-color", false, "automatic color correction")

	detect     = flag.Bool("detect", false, "detect people to aim the crop")
	backend    = flag.String("backend", "", "detection backend: script|ollama|llamacpp")
	script     = flag.String("detector-script", "", "people detection script")
	python     = flag.String("python", "", "python interpreter for the detection script")
	url        = flag.String("url", "", "vision server URL")
	model      = flag.String("model", "", "vision model name")
	confidence = flag.Float64("confidence", 0, "minimum detection confidence (0..1)")

	dividerWidth = flag.Int("divider-width", 0, "divider width between paired images")
	dividerColor = flag.String("divider-color", "", "divider color as #RRGGBB")

	jobs     = flag.Int("jobs", 0, "parallel workers")
	force    = flag.Bool("force", false, "reprocess images that already have outputs")
	dryRun   = flag.Bool("dry-run", false, "process without writing outputs")
	jsonMode = flag.Bool("json", false, "write NDJSON progress to stdout")
	debug    = flag.Bool("debug", false, "write crop debug overlays")
	verbose  = flag.Bool("verbose", false, "verbose logging")
	seed     = flag.Int64("seed", 0, "pairing shuffle seed, 0 for random")
	watch    = flag.Bool("watch", false, "keep running and convert new images in input directories")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Photo frame processor %s\n\n", photoframe.GetVersion())
	fmt.Fprintf(os.Stderr, "usage: %s [options] input...\n\n", filepath.Base(os.Args[0]))
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	os.Exit(run())
}

func run() int {
	inputs := flag.Args()
	if len(inputs) == 0 {
		flag.Usage()
		return 2
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Error("Failed to load configuration", "error", err)
		return 1
	}

	pf, err := photoframe.NewFromConfig(cfg)
	if err != nil {
		log.Error("Failed to initialize", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := process(ctx, pf.Processor(), inputs, cfg.Run.JSONProgress)
	if err != nil {
		log.Error("Failed to read inputs", "error", err)
		return 1
	}
	if !cfg.Run.JSONProgress {
		printSummary(report.Summary)
	}

	if *watch {
		if err := watchInputs(ctx, inputs, cfg.Run.Extensions, func() {
			report, err := process(ctx, pf.Processor(), inputs, cfg.Run.JSONProgress)
			if err != nil {
				log.Error("Failed to read inputs", "error", err)
				return
			}
			if !cfg.Run.JSONProgress {
				printSummary(report.Summary)
			}
		}); err != nil {
			log.Error("Watch failed", "error", err)
			return 1
		}
		return 0
	}

	if report.Summary.Failed > 0 {
		return 1
	}
	return 0
}

// loadConfig layers defaults, the configuration file, the environment and
// finally the flags given on the command line
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	// The default path is optional, an explicit one is not
	if utils.FileExists(*configFile) || isSet("config") {
		loaded, err := config.LoadFromFile(*configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(*envFile); err != nil {
		return nil, err
	}

	var err error
	flag.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "out":
			cfg.Output.Dir = *outDir
		case "type":
			cfg.Display.Type = *displayType
		case "format":
			cfg.Output.Formats = strings.Split(*formats, ",")
		case "size":
			cfg.Display.Width, cfg.Display.Height, err = parseSize(*size)
		case "orientation":
			cfg.Display.Orientation = *target
		case "auto-swap":
			cfg.Display.AutoSwap = *autoSwap
		case "method":
			cfg.Dither.Method = *method
		case "strength":
			cfg.Dither.Strength = *strength
		case "auto-optimize":
			cfg.Dither.AutoOptimize = *autoOptimize
		case "brightness":
			cfg.Adjust.Brightness = *brightness
		case "contrast":
			cfg.Adjust.Contrast = *contrast
		case "auto-color":
			cfg.Adjust.AutoColor = *autoColor
		case "detect":
			cfg.Detection.Enabled = *detect
		case "backend":
			cfg.Detection.Backend = *backend
		case "detector-script":
			cfg.Detection.Script = *script
		case "python":
			cfg.Detection.Python = *python
		case "url":
			if cfg.Detection.Backend == config.BackendLlamaCpp {
				cfg.Detection.LlamaCppURL = *url
			} else {
				cfg.Detection.OllamaURL = *url
			}
		case "model":
			cfg.Detection.Model = *model
		case "confidence":
			cfg.Detection.Confidence = *confidence
		case "divider-width":
			cfg.Combine.DividerWidth = *dividerWidth
		case "divider-color":
			cfg.Combine.DividerColor = *dividerColor
		case "jobs":
			cfg.Run.Jobs = *jobs
		case "force":
			cfg.Run.Force = *force
		case "dry-run":
			cfg.Run.DryRun = *dryRun
		case "json":
			cfg.Run.JSONProgress = *jsonMode
		case "debug":
			cfg.Run.Debug = *debug
		case "verbose":
			cfg.Run.Verbose = *verbose
		case "seed":
			cfg.Run.Seed = *seed
		}
	})
	if err != nil {
		return nil, err
	}

	// A script given on the command line implies detection
	if isSet("detector-script") && !isSet("detect") {
		cfg.Detection.Enabled = true
	}

	return cfg, cfg.Validate()
}

func isSet(name string) (set bool) {
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return
}

func parseSize(s string) (w, h int, err error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid size %q, expected WxH", s)
	}
	if w, err = strconv.Atoi(ws); err != nil {
		return 0, 0, fmt.Errorf("invalid width in %q: %w", s, err)
	}
	if h, err = strconv.Atoi(hs); err != nil {
		return 0, 0, fmt.Errorf("invalid height in %q: %w", s, err)
	}
	return w, h, nil
}

// process runs one batch, reporting progress either as NDJSON on stdout or
// as a progress bar on the terminal
func process(ctx context.Context, proc *batch.Processor, inputs []string, jsonProgress bool) (batch.Report, error) {
	plan, err := proc.Plan(inputs)
	if err != nil {
		return batch.Report{}, err
	}

	if jsonProgress {
		proc.WithEmitter(batch.NewEmitter(os.Stdout)).OnUnit(nil)
		return proc.Execute(ctx, plan), nil
	}

	log.Info("Total units", "count", plan.Units(), "skipped", len(plan.Skipped))
	if plan.Units() == 0 {
		return proc.Execute(ctx, plan), nil
	}

	pb := progressbar.New(plan.Units()).SetRenderInterval(progressInterval)
	if err := pb.Start(); err != nil {
		return batch.Report{}, err
	}
	proc.WithEmitter(nil).OnUnit(func(batch.UnitResult, *batch.State) { pb.Add(1) })
	report := proc.Execute(ctx, plan)
	// Every unit reports, so the bar stops on its own once it reaches the total
	pb.Wait()
	return report, nil
}

// progressInterval is how often the progress bar redraws
const progressInterval = 200 * time.Millisecond

// maxLabelWidth bounds the terminal columns used by an input label
const maxLabelWidth = 72

func printSummary(s batch.Summary) {
	mode := ""
	if s.DryRun {
		mode = " (dry run)"
	}
	fmt.Printf("\nProcessed %d of %d units in %s%s\n", s.Succeeded, s.Units, s.Duration.Round(time.Millisecond), mode)
	fmt.Printf("  discovered: %d (landscape %d, portrait %d)\n", s.Discovered, s.LandscapesFound, s.PortraitsFound)
	fmt.Printf("  combined pairs: %d\n", s.PairsCombined)
	fmt.Printf("  skipped: %d\n", s.Skipped)
	if s.PeopleHits > 0 {
		fmt.Printf("  people: %d in %d units\n", s.PeopleFound, s.PeopleHits)
	}
	fmt.Printf("  success rate: %.1f%%\n", s.SuccessRate())
	if s.Failed > 0 {
		fmt.Printf("  failed: %d\n", s.Failed)
		for _, f := range s.Failures {
			label := runewidth.Truncate(strings.Join(f.Inputs, " + "), maxLabelWidth, "...")
			fmt.Printf("    %s: %s\n", label, f.Error)
		}
	}
}
