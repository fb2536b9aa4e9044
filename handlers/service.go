package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/bsaid97/go-lwgeom-fixer/processing"
	"github.com/bsaid97/go-lwgeom-fixer/proclog"
	"github.com/bsaid97/go-lwgeom-fixer/provider"
	"github.com/bsaid97/go-lwgeom-fixer/runner"
	"github.com/bsaid97/go-lwgeom-fixer/utils"
)

// Service serves the geometry operations over HTTP. Every batch goes
// through one worker so the native library sees one feature at a time.
type Service struct {
	provider *provider.Provider
	pool     *utils.WorkerPool
	logger   *zap.Logger
}

// NewService starts the worker pool. Close stops it.
func NewService(p *provider.Provider, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool := utils.NewWorkerPool(p.Workers(), 64)
	pool.Start()
	return &Service{provider: p, pool: pool, logger: logger.Named("http")}
}

// Close waits for queued batches and stops the pool.
func (s *Service) Close() {
	s.pool.Close()
}

// Routes registers the handlers on mux.
func (s *Service) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/v2/fix-geometry", s.FixGeometry)
	mux.HandleFunc("/build-area", s.BuildArea)
	mux.HandleFunc("/check-geometry", s.CheckGeometry)
	mux.HandleFunc("/algorithms", s.Algorithms)
}

// Request is a decoded processing request.
type Request struct {
	Payload   []byte
	Selection []int64
	Zip       bool
}

// Response is returned by the processing endpoints.
type Response struct {
	Collection json.RawMessage `json:"collection"`
	Processed  int             `json:"processed"`
	Failed     int             `json:"failed"`
	FailedIDs  []int64         `json:"failedIds,omitempty"`
	Log        []proclog.Entry `json:"log"`
}

// batch is what a processing job hands back to the handler.
type batch struct {
	response Response
	layer    *processing.MemoryLayer
	output   processing.GeometryType
}

func readRequest(r *http.Request) (Request, error) {
	if r.Method != http.MethodPost {
		return Request{}, errMethod
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		form, err := utils.ReadMultiPartForm(r, "file")
		if err != nil {
			return Request{}, &badRequest{err}
		}
		payload, err := form.Payload()
		if err != nil {
			return Request{}, err
		}
		return Request{
			Payload:   []byte(payload),
			Selection: form.Properties.Selection,
			Zip:       form.Properties.Format == "zip",
		}, nil
	}

	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, utils.MaxRequestSize))
	if err != nil {
		return Request{}, fmt.Errorf("error reading request body: %w", err)
	}
	if len(body) == 0 {
		return Request{}, utils.ErrNoPayload
	}
	sel, err := utils.ParseSelection(r.URL.Query().Get("select"))
	if err != nil {
		return Request{}, &badRequest{err}
	}
	return Request{Payload: body, Selection: sel, Zip: r.URL.Query().Get("format") == "zip"}, nil
}

var errMethod = errors.New("invalid request method, only POST allowed")

// process runs op over the request's features on the worker.
func (s *Service) process(ctx context.Context, op runner.Operation, req Request) (*batch, error) {
	v, err := s.pool.Submit(ctx, func(ctx context.Context) (any, error) {
		layer, err := utils.ReadGeoJSON(req.Payload, "request")
		if err != nil {
			return nil, &badRequest{err}
		}
		layer.Select(req.Selection...)

		log := s.provider.Log()
		log.Reset()

		r, err := s.provider.Runner(op)
		if err != nil {
			return nil, err
		}

		sink := utils.NewGeoJSONSink()
		res, err := processing.NewDriver(r, log).Run(ctx, layer, sink, func(p int) {
			s.logger.Debug("progress", zap.Stringer("algorithm", op), zap.Int("percent", p))
		})
		if err != nil {
			return nil, err
		}

		collection, err := sink.MarshalJSON()
		if err != nil {
			return nil, err
		}
		keep := s.provider.Config().Output.KeepInputType
		return &batch{
			response: Response{
				Collection: collection,
				Processed:  res.Processed,
				Failed:     res.Failed,
				FailedIDs:  res.FailedIDs,
				Log:        log.Entries(),
			},
			layer:  &processing.MemoryLayer{Name: layer.Name, Type: layer.Type, Items: sink.Features()},
			output: processing.OutputGeometryType(op, layer.Type, keep),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*batch), nil
}

type badRequest struct{ err error }

func (b *badRequest) Error() string { return b.err.Error() }
func (b *badRequest) Unwrap() error { return b.err }

// serveOperation is shared by the processing endpoints.
func (s *Service) serveOperation(w http.ResponseWriter, r *http.Request, op runner.Operation) {
	req, err := readRequest(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.logger.Info("request received", zap.Stringer("algorithm", op), zap.Int("bytes", len(req.Payload)))

	b, err := s.process(r.Context(), op, req)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.logger.Info("request done", zap.Stringer("algorithm", op),
		zap.Int("processed", b.response.Processed), zap.Int("failed", b.response.Failed))

	if req.Zip {
		zipData, err := utils.GenerateShapefileZip(op.String(), b.response.Collection, b.layer.Items, b.output)
		if err != nil {
			s.fail(w, err)
			return
		}
		sendZipResponse(w, op.String()+".zip", zipData)
		return
	}
	sendJSON(w, http.StatusOK, b.response)
}

func (s *Service) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var bad *badRequest
	switch {
	case errors.Is(err, errMethod):
		status = http.StatusMethodNotAllowed
	case errors.As(err, &bad), errors.Is(err, utils.ErrNoPayload):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	s.logger.Warn("request failed", zap.Int("status", status), zap.Error(err))
	sendJSON(w, status, map[string]string{"error": err.Error()})
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sendZipResponse(w http.ResponseWriter, name string, zipData []byte) {
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(zipData)
}
