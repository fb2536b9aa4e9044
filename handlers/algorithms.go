package handlers

import (
	"net/http"
)

// Algorithms handles GET /algorithms with the list of offered operations.
func (s *Service) Algorithms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Invalid request method, only GET allowed", http.StatusMethodNotAllowed)
		return
	}
	sendJSON(w, http.StatusOK, s.provider.Descriptors())
}
