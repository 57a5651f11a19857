package orchestrator

import (
	"context"

	"github.com/GriffinCanCode/snapdiff/internal/baseline"
	"github.com/GriffinCanCode/snapdiff/internal/capture"
	apperrors "github.com/GriffinCanCode/snapdiff/internal/errors"
)

// CompareFullPage compares the whole page against baseline {name}.
func (o *Orchestrator) CompareFullPage(ctx context.Context, name string) (*Outcome, error) {
	return o.Compare(ctx, Request{Name: name, Variant: baseline.Page})
}

// CompareElement compares one element against baseline {name}-element.
func (o *Orchestrator) CompareElement(ctx context.Context, name, target string) (*Outcome, error) {
	return o.Compare(ctx, Request{Name: name, Variant: baseline.Element, Target: target})
}

// CompareMasked compares the page with regions painted out against {name}-masked.
func (o *Orchestrator) CompareMasked(ctx context.Context, name string, regions []capture.Region) (*Outcome, error) {
	return o.Compare(ctx, Request{Name: name, Variant: baseline.Masked, Masks: regions})
}

// CompareHoverState compares an element after hover against {name}-hover.
func (o *Orchestrator) CompareHoverState(ctx context.Context, name, target string) (*Outcome, error) {
	return o.Compare(ctx, Request{Name: name, Variant: baseline.Hover, Target: target})
}

// CompareWithTolerance compares the page against {name}-tolerance, matching
// while at most maxDiffPercent of pixels differ.
func (o *Orchestrator) CompareWithTolerance(ctx context.Context, name string, maxDiffPercent float64) (*Outcome, error) {
	return o.Compare(ctx, Request{Name: name, Variant: baseline.Tolerance, MaxDiffPercent: &maxDiffPercent})
}

// BaselineExists reports whether the full-page baseline {name} exists.
func (o *Orchestrator) BaselineExists(name string) (bool, error) {
	return o.BaselineKeyExists(baseline.Key{Name: name})
}

// DeleteBaseline removes the full-page baseline {name} and its artifacts.
func (o *Orchestrator) DeleteBaseline(name string) error {
	return o.DeleteBaselineKey(baseline.Key{Name: name})
}

// BaselineKeyExists reports whether the baseline for key exists.
func (o *Orchestrator) BaselineKeyExists(key baseline.Key) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, apperrors.Wrap(err, apperrors.CodeInvalidArgument, "invalid baseline name")
	}
	ok, err := o.store.Exists(key)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.CodeIOFailed, "check baseline")
	}
	return ok, nil
}

// DeleteBaselineKey removes the baseline for key together with its actual and
// diff artifacts. Deleting a missing baseline is not an error.
func (o *Orchestrator) DeleteBaselineKey(key baseline.Key) error {
	if err := key.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInvalidArgument, "invalid baseline name")
	}

	unlock := o.locks.Lock(key.String())
	defer unlock()

	if err := o.store.Delete(key); err != nil {
		return apperrors.Wrap(err, apperrors.CodeIOFailed, "delete baseline")
	}
	if err := o.artifacts.Remove(key); err != nil {
		return apperrors.Wrap(err, apperrors.CodeIOFailed, "delete artifacts")
	}
	return nil
}

// BaselineDirectory returns the absolute directory holding baselines and artifacts.
func (o *Orchestrator) BaselineDirectory() string {
	return o.store.Dir()
}
