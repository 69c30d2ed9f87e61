package handlers

import (
	"net/http"
	"strconv"

	"github.com/mwestergaard/hearth/internal/models"
	"github.com/mwestergaard/hearth/internal/services"
	pkghttp "github.com/mwestergaard/hearth/pkg/http"
)

// maxAuditPageSize caps the page size regardless of the caller's request
const maxAuditPageSize = 200

// AuditHandler serves the admin-only audit diagnostics surface
type AuditHandler struct {
	audit *services.AuditService
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(audit *services.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// AuditPageResponse is one page of audit entries, newest first
type AuditPageResponse struct {
	Total   int                 `json:"total"`
	Entries []models.AuditEntry `json:"entries"`
}

// Read handles GET /audit?limit=&offset=
func (h *AuditHandler) Read(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	if limit <= 0 || limit > maxAuditPageSize {
		limit = maxAuditPageSize
	}
	if offset < 0 {
		offset = 0
	}

	total, entries := h.audit.Read(limit, offset)
	pkghttp.WriteJSON(w, http.StatusOK, AuditPageResponse{Total: total, Entries: entries})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
