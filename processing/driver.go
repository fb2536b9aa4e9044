// Package processing drives a geometry operation over a layer, one feature at
// a time, and writes every feature to an output sink whether or not the
// operation succeeded on it.
package processing

import (
	"context"
	"errors"
	"fmt"

	"github.com/bsaid97/go-lwgeom-fixer/codec"
	"github.com/bsaid97/go-lwgeom-fixer/proclog"
)

var (
	ErrNoRunner = errors.New("processing: no runner")
	ErrWrite    = errors.New("processing: cannot write feature")
)

// GeometryRunner transforms a geometry in place.
type GeometryRunner interface {
	Run(g codec.Geometry) error
}

// ProgressFunc receives the completion percentage, from 0 to 100.
type ProgressFunc func(percent int)

// FeatureError is a failure on one feature. The feature was still written.
type FeatureError struct {
	Source string
	ID     int64
	Err    error
}

func (e *FeatureError) Error() string {
	return fmt.Sprintf("layer %s, feature #%d: %v", e.Source, e.ID, e.Err)
}

func (e *FeatureError) Unwrap() error {
	return e.Err
}

// Result summarizes a run.
type Result struct {
	Processed int
	Failed    int
	FailedIDs []int64
	Errors    []*FeatureError
}

// Driver runs one GeometryRunner over layers.
type Driver struct {
	runner GeometryRunner
	log    proclog.Sink
}

// NewDriver returns a driver that reports per feature failures to log.
func NewDriver(r GeometryRunner, log proclog.Sink) *Driver {
	if log == nil {
		log = proclog.Discard
	}
	return &Driver{runner: r, log: log}
}

// Run processes the selected features of layer, or all of them when nothing
// is selected, and writes each one to sink. Per feature failures are logged
// and counted; the error return is reserved for a cancelled context, a
// failing sink or a missing runner.
func (d *Driver) Run(ctx context.Context, layer Layer, sink Sink, progress ProgressFunc) (Result, error) {
	var res Result
	if d.runner == nil {
		return res, ErrNoRunner
	}
	if progress == nil {
		progress = func(int) {}
	}

	features := Selected(layer)
	count := len(features)

	for i, feat := range features {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if err := d.runner.Run(feat.Geometry); err != nil {
			d.log.Append(proclog.Error, fmt.Sprintf("FAILURE: previous failure info: layer %s, feature #%d", layer.Source(), feat.ID))
			res.Failed++
			res.FailedIDs = append(res.FailedIDs, feat.ID)
			res.Errors = append(res.Errors, &FeatureError{Source: layer.Source(), ID: feat.ID, Err: err})
		}

		if err := sink.Write(feat); err != nil {
			return res, fmt.Errorf("%w #%d: %w", ErrWrite, feat.ID, err)
		}
		res.Processed++

		progress((i + 1) * 100 / count)
	}

	progress(100)
	return res, nil
}

// Selected returns the selected features in selection order, or every feature
// when the selection is empty. The selection is a set: unknown and repeated
// ids are ignored.
func Selected(layer Layer) []*Feature {
	all := layer.Features()
	sel := layer.Selection()
	if len(sel) == 0 {
		return all
	}

	byID := make(map[int64]*Feature, len(all))
	for _, f := range all {
		byID[f.ID] = f
	}
	out := make([]*Feature, 0, len(sel))
	seen := make(map[int64]struct{}, len(sel))
	for _, id := range sel {
		f, ok := byID[id]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, f)
	}
	return out
}
