package handlers

import (
	"context"
	"net/http"

	"github.com/twpayne/go-geos"
	"go.uber.org/zap"

	"github.com/bsaid97/go-lwgeom-fixer/processing"
	"github.com/bsaid97/go-lwgeom-fixer/utils"
)

// Error describes one invalid feature. Ref is the feature id.
type Error struct {
	Ref          int64  `json:"ref"`
	ErrorMessage string `json:"errorMessage"`
}

// CheckGeometry reports every feature GEOS considers invalid. Features
// without a geometry and features that cannot be parsed are reported too.
func CheckGeometry(features []*processing.Feature) []Error {
	errors := []Error{}
	for _, f := range features {
		if f.Geometry == nil {
			errors = append(errors, Error{Ref: f.ID, ErrorMessage: "missing geometry"})
			continue
		}
		data, err := f.Geometry.WKB()
		if err != nil {
			errors = append(errors, Error{Ref: f.ID, ErrorMessage: err.Error()})
			continue
		}
		shape, err := geos.NewGeomFromWKB(data)
		if err != nil {
			errors = append(errors, Error{Ref: f.ID, ErrorMessage: err.Error()})
			continue
		}
		if !shape.IsValid() {
			errors = append(errors, Error{Ref: f.ID, ErrorMessage: shape.IsValidReason()})
		}
		shape.Destroy()
	}
	return errors
}

// CheckGeometry handles POST /check-geometry.
func (s *Service) CheckGeometry(w http.ResponseWriter, r *http.Request) {
	req, err := readRequest(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	v, err := s.pool.Submit(r.Context(), func(context.Context) (any, error) {
		layer, err := utils.ReadGeoJSON(req.Payload, "request")
		if err != nil {
			return nil, &badRequest{err}
		}
		layer.Select(req.Selection...)
		return CheckGeometry(processing.Selected(layer)), nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}

	errs := v.([]Error)
	s.logger.Info("geometry checked", zap.Int("invalid", len(errs)))
	sendJSON(w, http.StatusOK, errs)
}
