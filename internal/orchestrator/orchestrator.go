package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/GriffinCanCode/snapdiff/internal/baseline"
	"github.com/GriffinCanCode/snapdiff/internal/capture"
	apperrors "github.com/GriffinCanCode/snapdiff/internal/errors"
	"github.com/GriffinCanCode/snapdiff/internal/orchestrator/history"
	"github.com/GriffinCanCode/snapdiff/internal/pixel"
	"github.com/GriffinCanCode/snapdiff/internal/syncx"
	"github.com/GriffinCanCode/snapdiff/internal/trace"
)

// Outcome re-exported for API compatibility
type Outcome = history.Outcome

// Recorder receives every finished outcome, including failures.
type Recorder interface {
	Record(o *Outcome)
}

// Config holds orchestrator settings.
type Config struct {
	Policy                pixel.Policy
	ToleranceDiffPercent  float64 // threshold for the tolerance variant when a request omits one
	ClearArtifactsOnStart bool    // sweep stale actual/diff files before the first comparison
}

// DefaultConfig returns the standard comparison settings.
func DefaultConfig() Config {
	return Config{
		Policy:               pixel.DefaultPolicy(),
		ToleranceDiffPercent: DefaultToleranceDiffPercent,
	}
}

// Request is a generic comparison request.
type Request struct {
	Name    string
	Variant baseline.Variant
	Target  string           // element selector for element and hover variants
	URL     string           // optional page to load before capturing
	Masks   []capture.Region // regions painted uniformly before capture
	// Viewport overrides the capturer's viewport for this capture only.
	Viewport capture.Viewport

	// MaxDiffPercent overrides the policy threshold for this request.
	MaxDiffPercent *float64
}

// Orchestrator coordinates capture, baseline storage and comparison.
type Orchestrator struct {
	store     *baseline.Store
	artifacts *baseline.Artifacts
	capturer  capture.Capturer

	policy       *syncx.RWGuard[pixel.Policy]
	tolerancePct float64
	clearOnStart bool

	locks     *syncx.KeyedMutex
	recorders []Recorder
	sweepOnce sync.Once
}

// New creates an orchestrator over store that captures through capturer.
func New(store *baseline.Store, capturer capture.Capturer, cfg Config, recorders ...Recorder) (*Orchestrator, error) {
	if err := cfg.Policy.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "invalid comparison policy")
	}
	if cfg.ToleranceDiffPercent < 0 || cfg.ToleranceDiffPercent > 100 {
		return nil, apperrors.Newf(apperrors.CodeConfigInvalid, "tolerance percent %v outside [0, 100]", cfg.ToleranceDiffPercent)
	}
	return &Orchestrator{
		store:        store,
		artifacts:    baseline.NewArtifacts(store),
		capturer:     capturer,
		policy:       syncx.NewGuard(cfg.Policy),
		tolerancePct: cfg.ToleranceDiffPercent,
		clearOnStart: cfg.ClearArtifactsOnStart,
		locks:        syncx.NewKeyedMutex(),
		recorders:    recorders,
	}, nil
}

// Policy returns the current comparison policy.
func (o *Orchestrator) Policy() pixel.Policy {
	return o.policy.Get()
}

// SetPolicy replaces the comparison policy for subsequent requests.
func (o *Orchestrator) SetPolicy(p pixel.Policy) error {
	if err := p.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInvalidArgument, "invalid comparison policy")
	}
	old := o.policy.Swap(p)
	trace.Logger(context.Background()).Info("comparison policy changed",
		"channel_tolerance", p.ChannelTolerance, "max_diff_percent", p.MaxDiffPercent,
		"previous_max_diff_percent", old.MaxDiffPercent)
	return nil
}

// Compare runs one request through the state machine. Failed outcomes are
// returned together with the error that ended them.
func (o *Orchestrator) Compare(ctx context.Context, req Request) (*Outcome, error) {
	start := time.Now()
	ctx, span := trace.StartSpan(ctx, "compare")
	span.SetAttr("name", req.Name)
	span.SetAttr("variant", req.Variant.String())

	key, err := baseline.NewKey(req.Name, req.Variant)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "invalid baseline name")
	}
	creq := captureRequest(req)
	if err := creq.Validate(); err != nil {
		return nil, err
	}
	policy, err := o.requestPolicy(req)
	if err != nil {
		return nil, err
	}

	o.ensureSwept(ctx)

	unlock := o.locks.Lock(key.String())
	defer unlock()

	out := history.NewOutcome(key)
	out.MaxDiffPercent = policy.MaxDiffPercent
	out.TraceID = span.Ctx.TraceID
	out.BaselinePath = o.store.Path(key)
	if !req.Viewport.IsZero() {
		out.Viewport = req.Viewport.String()
	}

	state, err := o.execute(ctx, key, creq, policy, out)
	out.Duration = time.Since(start)
	if err != nil {
		state = StateFailed
		out.Status = history.StatusFailed
		out.Error = err.Error()
		out.Code = apperrors.CodeOf(err).String()
		span.RecordError(err)
	}

	span.SetAttr("state", state.String())
	span.SetAttr("diff_percent", out.DiffPercent)
	span.End()
	o.record(ctx, out, span)
	return out, err
}

// execute walks the state machine for one key while its lock is held.
func (o *Orchestrator) execute(ctx context.Context, key baseline.Key, creq capture.Request, policy pixel.Policy, out *Outcome) (State, error) {
	log := trace.Logger(ctx)
	state := StateCheckBaseline

	exists, err := o.store.Exists(key)
	if err != nil {
		return state, apperrors.Wrap(err, apperrors.CodeIOFailed, "check baseline")
	}

	if !exists {
		state = StateCreateBaseline
		log.Debug("no baseline, capturing", "key", key.String(), "state", state)
		grid, err := o.captureGrid(ctx, creq)
		if err != nil {
			return state, err
		}
		if err := ctx.Err(); err != nil {
			return state, apperrors.Wrap(err, apperrors.CodeCancelled, "cancelled before baseline write")
		}
		if err := o.store.Save(key, grid); err != nil {
			return state, apperrors.Wrap(err, apperrors.CodeIOFailed, "save baseline")
		}
		out.Status = history.StatusCreated
		out.TotalPixels = grid.Width * grid.Height
		return state, nil
	}

	state = StateCaptureActual
	base, err := o.store.Load(key)
	if err != nil {
		if errors.Is(err, baseline.ErrNotFound) {
			return state, apperrors.Wrap(err, apperrors.CodeNotFound, "baseline disappeared")
		}
		return state, apperrors.Wrap(err, apperrors.CodeIOFailed, "load baseline")
	}
	actual, err := o.captureGrid(ctx, creq)
	if err != nil {
		return state, err
	}

	state = StateCompare
	res, err := pixel.Compare(base, actual, policy)
	if err != nil {
		return state, apperrors.Wrap(err, apperrors.CodeDecodeFailed, "compare")
	}
	out.DiffPixels = res.DiffPixels
	out.TotalPixels = res.TotalPixels
	out.DiffPercent = res.DiffPercent

	if res.Matched {
		state = StateMatched
		out.Status = history.StatusMatched
		if err := o.artifacts.Remove(key); err != nil {
			return state, apperrors.Wrap(err, apperrors.CodeIOFailed, "remove stale artifacts")
		}
		return state, nil
	}

	state = StateMismatched
	out.Status = history.StatusMismatched
	out.Reason = res.Reason.String()
	log.Debug("mismatch", "key", key.String(), "reason", out.Reason,
		"baseline_size", res.BaselineSize, "actual_size", res.ActualSize)

	if err := ctx.Err(); err != nil {
		return state, apperrors.Wrap(err, apperrors.CodeCancelled, "cancelled before artifact write")
	}
	if out.ActualPath, err = o.artifacts.WriteActual(key, actual); err != nil {
		return state, apperrors.Wrap(err, apperrors.CodeIOFailed, "write actual")
	}
	if vis := res.Visualization(); vis != nil {
		if out.DiffPath, err = o.artifacts.WriteDiff(key, vis); err != nil {
			return state, apperrors.Wrap(err, apperrors.CodeIOFailed, "write diff")
		}
	} else if err := o.artifacts.RemoveDiff(key); err != nil {
		return state, apperrors.Wrap(err, apperrors.CodeIOFailed, "remove stale diff")
	}
	return state, nil
}

// captureGrid asks the collaborator for pixels. Every failure here is a
// capture error and happens before any file is touched.
func (o *Orchestrator) captureGrid(ctx context.Context, req capture.Request) (*pixel.Grid, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCancelled, "cancelled before capture")
	}
	data, err := o.capturer.Capture(ctx, req)
	if err != nil {
		if apperrors.CodeOf(err) != apperrors.CodeUnknown {
			return nil, err
		}
		return nil, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "capture")
	}
	return capture.Decode(data)
}

func (o *Orchestrator) requestPolicy(req Request) (pixel.Policy, error) {
	policy := o.policy.Get()
	switch {
	case req.MaxDiffPercent != nil:
		policy = policy.WithMaxDiffPercent(*req.MaxDiffPercent)
	case req.Variant == baseline.Tolerance:
		policy = policy.WithMaxDiffPercent(o.tolerancePct)
	}
	if err := policy.Validate(); err != nil {
		return policy, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "invalid tolerance")
	}
	return policy, nil
}

// ensureSwept clears leftovers from a previous run once per orchestrator.
func (o *Orchestrator) ensureSwept(ctx context.Context) {
	if !o.clearOnStart {
		return
	}
	o.sweepOnce.Do(func() {
		n, err := o.artifacts.Sweep()
		log := trace.Logger(ctx)
		if err != nil {
			log.Warn("artifact sweep failed", "error", err)
			return
		}
		log.Info("stale artifacts removed", "count", n, "dir", o.store.Dir())
	})
}

func (o *Orchestrator) record(ctx context.Context, out *Outcome, span *trace.Span) {
	log := trace.Logger(ctx)
	switch out.Status {
	case history.StatusFailed:
		log.Error("comparison failed", "span", span, "key", out.Key.String(), "code", out.Code)
	case history.StatusMismatched:
		log.Warn("comparison mismatched", "span", span, "key", out.Key.String(), "reason", out.Reason,
			"diff_pixels", out.DiffPixels, "diff_percent", out.DiffPercent, "diff", out.DiffPath)
	default:
		log.Info("comparison passed", "span", span, "key", out.Key.String(), "status", out.Status.String())
	}
	for _, r := range o.recorders {
		r.Record(out)
	}
}

func captureRequest(req Request) capture.Request {
	return capture.Request{
		Kind:     kindFor(req.Variant),
		Target:   req.Target,
		URL:      req.URL,
		Masks:    req.Masks,
		Viewport: req.Viewport,
	}
}

func kindFor(v baseline.Variant) capture.Kind {
	switch v {
	case baseline.Element:
		return capture.Element
	case baseline.Hover:
		return capture.ElementHover
	default:
		return capture.FullPage
	}
}
