package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bsaid97/go-lwgeom-fixer/processing"
	"github.com/bsaid97/go-lwgeom-fixer/runner"
	"github.com/bsaid97/go-lwgeom-fixer/utils"
)

type runOptions struct {
	selection string
	keepType  bool
	quiet     bool
}

func newRunCommand(a *app) *cobra.Command {
	var o runOptions
	c := &cobra.Command{
		Use:   "run <algorithm> <input> <output>",
		Short: "Run an algorithm over a shapefile or GeoJSON layer",
		Long: `Run makevalid or buildarea over every feature of <input> and write the
result to <output>. Layers are read and written as shapefiles (.shp) or
GeoJSON (.geojson, .json). Features that fail keep their input geometry
and are listed in the log.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := runner.ParseOperation(args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("keep-input-type") {
				a.cfg.Output.KeepInputType = o.keepType
			}
			progress := io.Writer(cmd.ErrOrStderr())
			if o.quiet {
				progress = io.Discard
			}
			return a.run(cmd.Context(), cmd.OutOrStdout(), progress, op, args[1], args[2], o.selection)
		},
	}
	c.Flags().StringVar(&o.selection, "select", "", "comma separated feature ids to process (default all)")
	c.Flags().BoolVar(&o.keepType, "keep-input-type", false, "declare the output with the input geometry type")
	c.Flags().BoolVarP(&o.quiet, "quiet", "q", false, "do not show progress")
	return c
}

// inputLayer is a layer read from disk plus its shapefile schema, if any.
type inputLayer struct {
	*processing.MemoryLayer
	fields []shp.Field
}

func readLayer(path string) (*inputLayer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		l, err := utils.ReadShapefile(path)
		if err != nil {
			return nil, err
		}
		return &inputLayer{MemoryLayer: &l.MemoryLayer, fields: l.Fields}, nil
	case ".geojson", ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		l, err := utils.ReadGeoJSON(data, path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return &inputLayer{MemoryLayer: l}, nil
	}
	return nil, fmt.Errorf("unsupported input format %q", filepath.Ext(path))
}

func (a *app) run(ctx context.Context, stdout, progress io.Writer, op runner.Operation, in, out, selection string) error {
	layer, err := readLayer(in)
	if err != nil {
		return err
	}
	ids, err := utils.ParseSelection(selection)
	if err != nil {
		return err
	}
	layer.Select(ids...)

	p := a.provider()
	defer p.Close()
	r, err := p.Runner(op)
	if err != nil {
		return err
	}

	gt := processing.OutputGeometryType(op, layer.GeometryType(), a.cfg.Output.KeepInputType)
	tracker := utils.NewProgressTracker(progress, op.String())

	var res processing.Result
	switch strings.ToLower(filepath.Ext(out)) {
	case ".shp":
		fields := layer.fields
		if fields == nil && len(layer.Items) > 0 {
			fields = utils.FieldsFromProperties(layer.Items[0].Properties)
		}
		sink, err := utils.CreateShapefile(out, gt, fields, in)
		if err != nil {
			return err
		}
		res, err = processing.NewDriver(r, p.Log()).Run(ctx, layer, sink, tracker.Report)
		if cerr := sink.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		if sink.Nulls > 0 {
			a.logger.Warn("features written without geometry", zap.Int("count", sink.Nulls), zap.Stringer("type", gt))
		}
	case ".geojson", ".json":
		sink := utils.NewGeoJSONSink()
		res, err = processing.NewDriver(r, p.Log()).Run(ctx, layer, sink, tracker.Report)
		if err != nil {
			return err
		}
		data, err := sink.MarshalJSON()
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported output format %q", filepath.Ext(out))
	}

	fmt.Fprintf(stdout, "%s: %d features processed, %d failed\n", op.Name(), res.Processed, res.Failed)
	if res.Failed > 0 {
		fmt.Fprintf(stdout, "failed features: %s\n", joinIDs(res.FailedIDs))
	}
	return nil
}

func joinIDs(ids []int64) string {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = fmt.Sprint(id)
	}
	return strings.Join(s, ",")
}
