package api

import (
	"net/http"

	"github.com/stratamed/policymatch/internal/types"
)

// handleDocuments ingests one policy document. The body is the raw document
// text; the optional source query parameter records its origin for
// provenance, defaulting to "http".
func (s *Service) handleDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	source := r.URL.Query().Get("source")
	if source == "" {
		source = "http"
	}

	body := http.MaxBytesReader(w, r.Body, types.MaxDocumentSize+1)
	outcome, err := s.pipeline.Run(r.Context(), body, source)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, outcome)
}
