// Package batch discovers photos, skips those already converted, pairs
// images that do not match the display orientation and converts everything
// on a worker pool. A failing unit never stops its siblings.
package batch

import (
	"context"
	"fmt"
	"image"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/sunshineplan/utils/log"

	"github.com/sephiroth74/photoframe-processor/internal/utils"
	"github.com/sephiroth74/photoframe-processor/pkg/combine"
	"github.com/sephiroth74/photoframe-processor/pkg/cropper"
	"github.com/sephiroth74/photoframe-processor/pkg/dither"
	"github.com/sephiroth74/photoframe-processor/pkg/encoder"
	"github.com/sephiroth74/photoframe-processor/pkg/optimizer"
	"github.com/sephiroth74/photoframe-processor/pkg/orientation"
	"github.com/sephiroth74/photoframe-processor/pkg/processing"
	"github.com/sephiroth74/photoframe-processor/pkg/types"
)

// Report is the outcome of a run
type Report struct {
	Summary Summary
	Results []UnitResult
}

// Processor runs batches with fixed options
type Processor struct {
	opts      Options
	cropper   *cropper.SmartCropper
	codec     *processing.Processor
	corrector processing.Corrector
	// quantizer is shared by all units unless auto-optimize picks one per unit
	quantizer quantizer
	rng       *rand.Rand
	pool      *Pool

	emitter *Emitter
	onUnit  func(UnitResult, *State)
}

// New validates opts and prepares a processor
func New(opts Options) (*Processor, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	p := &Processor{
		opts:      opts,
		cropper:   cropper.New(),
		codec:     processing.NewProcessor(),
		corrector: opts.Corrector,
		pool:      NewPool(opts.Jobs),
	}
	if p.corrector == nil {
		p.corrector = processing.NewAutoColorCorrector()
	}

	q, err := newQuantizer(opts.Type, opts.Method, opts.Strength)
	if err != nil {
		return nil, err
	}
	p.quantizer = q

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	p.rng = rand.New(rand.NewSource(seed))
	return p, nil
}

// WithEmitter streams JSON progress messages to e
func (p *Processor) WithEmitter(e *Emitter) *Processor {
	p.emitter = e
	return p
}

// OnUnit registers a callback invoked after every unit. It is called from
// worker goroutines.
func (p *Processor) OnUnit(fn func(UnitResult, *State)) *Processor {
	p.onUnit = fn
	return p
}

// Options returns the options of the processor
func (p *Processor) Options() Options {
	return p.opts
}

// Plan is the work of a run after discovery, deduplication and pairing
type Plan struct {
	Discovered []string
	Landscape  []string
	Portrait   []string
	Singles    []string
	SingleKind types.UnitKind
	Pairs      [][2]string
	PairKind   types.UnitKind
	Skipped    []types.SkippedResult
}

// Units returns the number of units to execute
func (pl Plan) Units() int {
	return len(pl.Singles) + len(pl.Pairs)
}

// Plan discovers inputs and decides which units to run
func (p *Processor) Plan(inputs []string) (Plan, error) {
	images, err := Discover(inputs, p.opts.Extensions, p.opts.MaxDepth)
	if err != nil {
		return Plan{}, err
	}
	plan := Plan{Discovered: images}

	candidates := images
	if !p.opts.Force {
		candidates, plan.Skipped = FilterExisting(images, ScanOutputs(p.opts.OutputDir))
		for _, s := range plan.Skipped {
			log.Info("Skip", "path", s.InputPath, "reason", s.Reason, "existing", s.ExistingPath)
		}
	}

	plan.Landscape, plan.Portrait = Split(candidates)

	pairable := plan.Portrait
	plan.Singles, plan.SingleKind, plan.PairKind = plan.Landscape, types.Landscape, types.CombinedPortrait
	if p.opts.Target == TargetPortrait {
		pairable = plan.Landscape
		plan.Singles, plan.SingleKind, plan.PairKind = plan.Portrait, types.Portrait, types.CombinedLandscape
	}

	var unpaired []string
	plan.Pairs, unpaired = combine.Pair(pairable, p.rng)
	for _, u := range unpaired {
		log.Info("Skip", "path", u, "reason", types.SkipUnpaired)
		plan.Skipped = append(plan.Skipped, types.SkippedResult{InputPath: u, Reason: types.SkipUnpaired})
	}
	return plan, nil
}

// Run converts every input. The error is non-nil only when discovery
// fails; unit failures are reported in the returned Report.
func (p *Processor) Run(ctx context.Context, inputs []string) (Report, error) {
	plan, err := p.Plan(inputs)
	if err != nil {
		return Report{}, err
	}
	return p.Execute(ctx, plan), nil
}

// Execute runs the units of plan: single images first, then pairs
func (p *Processor) Execute(ctx context.Context, plan Plan) Report {
	state := NewState(plan.Units(), p.pool.Size())
	results := make([]UnitResult, plan.Units())
	log.Info("Processing", "singles", len(plan.Singles), "pairs", len(plan.Pairs), "skipped", len(plan.Skipped), "workers", p.pool.Size())

	p.pool.Run(len(plan.Singles), func(worker, i int) {
		path := plan.Singles[i]
		state.SetSlot(worker, path)
		results[i] = p.processSingle(ctx, path, plan.SingleKind, p.opts.AutoSwap)
		state.SetSlot(worker, "")
		p.finish(state, results[i])
	})

	offset := len(plan.Singles)
	p.pool.Run(len(plan.Pairs), func(worker, i int) {
		pair := plan.Pairs[i]
		state.SetSlot(worker, pair[0]+" + "+pair[1])
		results[offset+i] = p.processPair(ctx, pair, plan.PairKind)
		state.SetSlot(worker, "")
		p.finish(state, results[offset+i])
	})

	summary := Summarize(results, plan.Skipped)
	summary.Discovered = len(plan.Discovered)
	summary.PortraitsFound = len(plan.Portrait)
	summary.LandscapesFound = len(plan.Landscape)
	summary.Duration = state.Elapsed()
	summary.DryRun = p.opts.DryRun

	if p.emitter != nil {
		if state.Total() == 0 {
			p.emitter.Progress(0, 0, "done")
		}
		p.emitter.Summary(summary)
	}
	return Report{Summary: summary, Results: results}
}

func (p *Processor) finish(state *State, r UnitResult) {
	n := state.Increment()
	if r.OK() {
		if p.opts.Verbose {
			log.Info("Processed", "input", r.Label(), "kind", r.Result.Kind, "elapsed", r.Result.Elapsed)
		}
	} else {
		log.Error("Failed to process image", "input", r.Label(), "error", r.Err)
	}

	if p.emitter != nil {
		if r.OK() {
			outputs := make([]string, 0, len(r.Result.OutputPaths))
			for _, f := range p.opts.Formats {
				if out, ok := r.Result.OutputPaths[string(f)]; ok {
					outputs = append(outputs, out)
				}
			}
			p.emitter.FileCompleted(r.Label(), outputs, r.Result.Elapsed)
		} else {
			p.emitter.FileFailed(r.Label(), r.Err)
		}
		p.emitter.Progress(n, state.Total(), filepath.Base(r.Inputs[len(r.Inputs)-1]))
	}
	if p.onUnit != nil {
		p.onUnit(r, state)
	}
}

// ProcessFile converts one image on its own, without deduplication or
// pairing. The canvas is swapped when the image orientation disagrees with it.
func (p *Processor) ProcessFile(ctx context.Context, path string) UnitResult {
	kind := types.Landscape
	if info, err := orientation.Probe(path); err == nil && info.IsPortrait {
		kind = types.Portrait
	}
	return p.processSingle(ctx, path, kind, true)
}

func (p *Processor) processSingle(ctx context.Context, path string, kind types.UnitKind, autoSwap bool) UnitResult {
	start := time.Now()
	unit := UnitResult{Inputs: []string{path}}

	w, h := p.opts.Canvas()
	r, err := p.render(ctx, path, w, h, autoSwap)
	if err != nil {
		unit.Err = err
		return unit
	}

	outputs, err := p.save(p.finalize(r.img), func(f processing.Format) string {
		return StandaloneName(path, f)
	})
	if err != nil {
		unit.Err = fmt.Errorf("%s: %w", path, err)
		return unit
	}

	unit.Result = &types.ProcessingResult{
		InputPaths:     unit.Inputs,
		OutputPaths:    outputs,
		Kind:           kind,
		Elapsed:        time.Since(start),
		PeopleDetected: r.detection.HasPeople(),
		PeopleCount:    r.detection.PersonCount,
		Reasoning:      r.reasoning,
	}
	return unit
}

func (p *Processor) processPair(ctx context.Context, pair [2]string, kind types.UnitKind) UnitResult {
	start := time.Now()
	unit := UnitResult{Inputs: []string{pair[0], pair[1]}}

	w, h := p.opts.Canvas()
	hw, hh := w/2, h
	if kind == types.CombinedLandscape {
		hw, hh = w, h/2
	}

	var halves [2]rendered
	for i, path := range pair {
		r, err := p.render(ctx, path, hw, hh, false)
		if err != nil {
			unit.Err = err
			return unit
		}
		halves[i] = r
	}

	var composed *image.NRGBA
	if kind == types.CombinedLandscape {
		composed = combine.Stack(halves[0].img, halves[1].img, w, h, p.opts.DividerWidth, p.opts.DividerColor)
	} else {
		composed = combine.Combine(halves[0].img, halves[1].img, w, h, p.opts.DividerWidth, p.opts.DividerColor)
	}

	outputs, err := p.save(p.finalize(composed), func(f processing.Format) string {
		return CombinedName(pair[0], pair[1], f)
	})
	if err != nil {
		unit.Err = fmt.Errorf("%s + %s: %w", pair[0], pair[1], err)
		return unit
	}

	result := &types.ProcessingResult{
		InputPaths:  unit.Inputs,
		OutputPaths: outputs,
		Kind:        kind,
		Elapsed:     time.Since(start),
	}
	for i, half := range halves {
		result.PeopleDetected = result.PeopleDetected || half.detection.HasPeople()
		result.PeopleCount += half.detection.PersonCount
		for _, line := range half.reasoning {
			result.Reasoning = append(result.Reasoning, filepath.Base(pair[i])+": "+line)
		}
	}
	unit.Result = result
	return unit
}

// finalize applies the pre-rotation for portrait-mounted color panels
func (p *Processor) finalize(img *image.NRGBA) *image.NRGBA {
	if p.opts.NeedsPreRotation() {
		return processing.Rotate90(img)
	}
	return img
}

// save encodes img in every output format. In dry-run mode nothing is
// written but the intended paths are still returned.
func (p *Processor) save(img *image.NRGBA, name func(processing.Format) string) (map[string]string, error) {
	outputs := make(map[string]string, len(p.opts.Formats))
	for _, f := range p.opts.Formats {
		path := OutputPath(p.opts.OutputDir, f, name(f))
		data, err := p.codec.Encode(img, f, processing.EncodeOptions{
			Type:       p.opts.Type,
			SourceName: filepath.Base(path),
		})
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", f, err)
		}
		if p.opts.Verbose && f.IsBinary() {
			logStats(path, data)
		}
		if !p.opts.DryRun {
			if err := utils.WriteFileAtomic(path, data); err != nil {
				return nil, fmt.Errorf("%w: %v", processing.ErrWrite, err)
			}
		}
		outputs[string(f)] = path
	}
	return outputs, nil
}

func logStats(path string, data []byte) {
	stats := encoder.Analyze(data)
	value, count, ok := stats.MostCommon()
	if !ok {
		return
	}
	log.Info("Binary statistics", "path", path, "size", utils.FormatFileSize(int64(len(data))), "values", stats.Unique(),
		"dominant", fmt.Sprintf("0x%02X", value), "count", count, "share", fmt.Sprintf("%.1f%%", stats.Percent(value)))
}

// rendered is one image taken through the pipeline up to quantization
type rendered struct {
	img       *image.NRGBA
	detection types.DetectionResult
	reasoning []string
}

// render loads path and runs it through detection, crop, optimization,
// color adjustments and dithering at exactly width x height, or the swapped
// size when autoSwap applies.
func (p *Processor) render(ctx context.Context, path string, width, height int, autoSwap bool) (rendered, error) {
	src, err := p.codec.LoadImage(path)
	if err != nil {
		return rendered{}, fmt.Errorf("%s: %w", path, err)
	}
	img, _ := orientation.Upright(src, path)

	det := p.detect(ctx, path, img)

	crop, err := p.cropper.Resize(img, width, height, autoSwap, &det)
	if err != nil {
		return rendered{}, fmt.Errorf("%s: %w", path, err)
	}
	if crop.Retried {
		log.Warn("Crop window too small, used centered crop", "path", path)
	}
	if p.opts.Debug && !p.opts.DryRun {
		p.writeDebug(path, img, &det, crop.Window)
	}

	out := rendered{detection: det}
	params := p.defaultParams()
	if p.opts.AutoOptimize {
		res := optimizer.Optimize(optimizer.Analyze(crop.Image), det.PersonCount, p.opts.Type.IsColor())
		params = p.optimizedParams(res)
		out.reasoning = res.Reasoning
	}

	var working image.Image = crop.Image
	if params.autoColor {
		corrected, err := p.corrector.Correct(working)
		if err != nil {
			log.Warn("Color correction failed, skipped", "path", path, "error", err)
		} else {
			working = corrected
		}
	}
	if params.brightness != 0 || params.contrast != 0 {
		working = processing.AdjustBrightnessContrast(working, params.brightness, params.contrast)
	}

	q := p.quantizer
	if p.opts.AutoOptimize {
		if q, err = newQuantizer(p.opts.Type, params.method, params.strength); err != nil {
			return rendered{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	out.img = q.Apply(working)
	return out, nil
}

// detect never fails: a missing or failing detector means nobody was found
func (p *Processor) detect(ctx context.Context, path string, img image.Image) types.DetectionResult {
	b := img.Bounds()
	if p.opts.Detector == nil {
		return types.NoPeople(b.Dx(), b.Dy())
	}
	det, err := p.opts.Detector.Detect(ctx, img, p.opts.Confidence)
	if err != nil {
		log.Warn("People detection failed", "path", path, "error", err)
		return types.NoPeople(b.Dx(), b.Dy())
	}
	if p.opts.Verbose {
		log.Info("People detection", "path", path, "people", det.PersonCount, "confidence", det.Confidence)
	}
	return det
}

const debugQuality = 85

func (p *Processor) writeDebug(path string, img image.Image, det *types.DetectionResult, window image.Rectangle) {
	overlay := processing.DebugOverlay(img, det, window)
	out := filepath.Join(p.opts.OutputDir, "debug", "debug_"+Hash(path)+".jpg")
	if err := p.codec.SaveImage(overlay, out, string(processing.FormatJPG), debugQuality, false); err != nil {
		log.Warn("Failed to write debug overlay", "path", out, "error", err)
	}
}

// params are the color settings of one unit
type params struct {
	method     dither.Method
	strength   float64
	brightness int
	contrast   int
	autoColor  bool
}

func (p *Processor) defaultParams() params {
	return params{
		method:     p.opts.Method,
		strength:   p.opts.Strength,
		brightness: p.opts.Brightness,
		contrast:   p.opts.Contrast,
		autoColor:  p.opts.AutoColor,
	}
}

// optimizedParams takes method, strength and auto color from the optimizer.
// An explicit contrast delta wins over the suggested one.
func (p *Processor) optimizedParams(res optimizer.Result) params {
	pr := p.defaultParams()
	pr.method = res.Method
	pr.strength = res.Strength
	pr.autoColor = res.AutoColor
	if pr.contrast == 0 {
		pr.contrast = res.ContrastPercent()
	}
	return pr
}

// quantizer reduces an image to a palette
type quantizer interface {
	Apply(img image.Image) *image.NRGBA
}

// blackWhite is the plain single-channel path for black and white panels
type blackWhite struct {
	strength float64
}

func (q blackWhite) Apply(img image.Image) *image.NRGBA {
	return dither.BlackWhiteDither(img, q.strength)
}

// newQuantizer picks the strategy once: Floyd-Steinberg on a black and
// white panel uses the luma path, everything else the palette ditherer with
// gamma correction on color panels.
func newQuantizer(t types.ProcessingType, method dither.Method, strength float64) (quantizer, error) {
	if t == types.BlackWhite && method == dither.FloydSteinberg {
		if strength < dither.MinStrength || strength > dither.MaxStrength {
			return nil, fmt.Errorf("dither strength %.2f out of range", strength)
		}
		return blackWhite{strength: strength}, nil
	}
	palette, err := dither.ForType(t)
	if err != nil {
		return nil, err
	}
	return dither.New(method, palette, dither.Options{Strength: strength, Gamma: t.IsColor()})
}
