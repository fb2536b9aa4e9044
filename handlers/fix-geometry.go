package handlers

import (
	"net/http"

	"github.com/bsaid97/go-lwgeom-fixer/runner"
)

// FixGeometry handles POST /v2/fix-geometry. Every selected feature is
// replaced by its make-valid result; failures keep their input geometry and
// are listed in the response log.
func (s *Service) FixGeometry(w http.ResponseWriter, r *http.Request) {
	s.serveOperation(w, r, runner.MakeValid)
}

// BuildArea handles POST /build-area.
func (s *Service) BuildArea(w http.ResponseWriter, r *http.Request) {
	s.serveOperation(w, r, runner.BuildArea)
}
