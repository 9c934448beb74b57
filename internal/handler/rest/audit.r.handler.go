package hrest

import (
	"net/http"
	"time"

	"github.com/lelandsequel/metalledger/internal/domain"
	"github.com/lelandsequel/metalledger/internal/pkg/response"
)

// QueryAudit filters by request_id, or by actor with an optional since.
func (h *LedgerRestHandler) QueryAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		records []*domain.AuditRecord
		err     error
	)
	switch {
	case q.Get("request_id") != "":
		records, err = h.audit.QueryByRequest(r.Context(), q.Get("request_id"))
	case q.Get("actor") != "":
		var since time.Time
		if raw := q.Get("since"); raw != "" {
			if since, err = parseDate(raw); err != nil {
				response.Error(w, http.StatusBadRequest, "invalid since")
				return
			}
		}
		records, err = h.audit.QueryByActor(r.Context(), q.Get("actor"), since)
	default:
		response.Error(w, http.StatusBadRequest, "request_id or actor is required")
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []*domain.AuditRecord{}
	}
	response.JSON(w, http.StatusOK, records)
}

func (h *LedgerRestHandler) VerifyAudit(w http.ResponseWriter, r *http.Request) {
	report, err := h.audit.Verify(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, report)
}
