package hrest

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/lelandsequel/metalledger/internal/domain"
	"github.com/lelandsequel/metalledger/internal/pkg/requestid"
	"github.com/lelandsequel/metalledger/internal/pkg/response"

	"github.com/go-chi/chi/v5"
)

type entryCreatedJSON struct {
	EntryID int64          `json:"entry_id"`
	Verdict domain.Verdict `json:"verdict"`
}

func (h *LedgerRestHandler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var in domain.EntryCreate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entryID, verdict, err := h.ledgerUC.CreateEntry(r.Context(), requestid.From(r.Context()), actor, &in)
	if err != nil {
		writeVerdictError(w, verdict, err)
		return
	}
	response.JSON(w, http.StatusCreated, entryCreatedJSON{EntryID: entryID, Verdict: verdict})
}

func (h *LedgerRestHandler) VoidEntry(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	entryID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	verdict, err := h.ledgerUC.VoidEntry(r.Context(), requestid.From(r.Context()), actor, entryID)
	if err != nil {
		writeVerdictError(w, verdict, err)
		return
	}
	response.JSON(w, http.StatusOK, verdict)
}

func (h *LedgerRestHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	entryID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid entry id")
		return
	}
	entry, err := h.ledgerUC.GetEntry(r.Context(), entryID)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, entry)
}

func (h *LedgerRestHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.ledgerUC.GetAccounts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, accounts)
}

type accountActiveJSON struct {
	Active bool `json:"active"`
}

func (h *LedgerRestHandler) SetAccountActive(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var in accountActiveJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	verdict, err := h.ledgerUC.SetAccountActive(r.Context(), requestid.From(r.Context()), actor, chi.URLParam(r, "code"), in.Active)
	if err != nil {
		writeVerdictError(w, verdict, err)
		return
	}
	response.JSON(w, http.StatusOK, verdict)
}

// GetValuation accepts date as YYYY-MM-DD or RFC3339. Prices and lots up to
// the end of that day count.
func (h *LedgerRestHandler) GetValuation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var asOf time.Time
	if raw := q.Get("date"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "invalid date")
			return
		}
		asOf = t
	}

	v, err := h.ledgerUC.GetValuation(r.Context(), q.Get("metal"), asOf)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, v)
}

func (h *LedgerRestHandler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	rows, err := h.ledgerUC.TrialBalance(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, rows)
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, raw)
}
