package hrest

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/lelandsequel/metalledger/internal/domain"
	"github.com/lelandsequel/metalledger/internal/pkg/requestid"
	"github.com/lelandsequel/metalledger/internal/pkg/response"
	"github.com/lelandsequel/metalledger/internal/usecase"

	"github.com/go-chi/chi/v5"
)

// actionJSON is a raw action submission. The actor always comes from the
// role header.
type actionJSON struct {
	Kind     domain.ActionKind `json:"kind"`
	Resource string            `json:"resource"`
	Payload  json.RawMessage   `json:"payload,omitempty"`
}

// SubmitAction evaluates an action and returns the verdict. A denial is
// still a 200: the verdict is the result.
func (h *LedgerRestHandler) SubmitAction(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var in actionJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	action := domain.Action{Actor: actor, Kind: in.Kind, Resource: in.Resource}
	if len(in.Payload) > 0 {
		action.Payload = in.Payload
	}

	verdict, err := h.engine.Submit(r.Context(), requestid.From(r.Context()), action)
	if err != nil {
		writeVerdictError(w, verdict, err)
		return
	}
	response.JSON(w, http.StatusOK, verdict)
}

func (h *LedgerRestHandler) RecordApproval(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var in usecase.ApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	a, err := h.approvalUC.RecordApproval(r.Context(), requestid.From(r.Context()), actor, in)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, a)
}

func (h *LedgerRestHandler) RevokeApproval(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	approvalID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid approval id")
		return
	}

	a, err := h.approvalUC.Revoke(r.Context(), requestid.From(r.Context()), approvalID, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, a)
}

func (h *LedgerRestHandler) ListApprovals(w http.ResponseWriter, r *http.Request) {
	approvals, err := h.approvalUC.List(r.Context(), r.URL.Query().Get("resource"))
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, approvals)
}

type sourceConfigJSON struct {
	Settings json.RawMessage `json:"settings"`
}

func (h *LedgerRestHandler) UpdateSourceConfig(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var in sourceConfigJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg, verdict, err := h.sourceUC.Update(r.Context(), requestid.From(r.Context()), actor, chi.URLParam(r, "key"), in.Settings)
	if err != nil {
		writeVerdictError(w, verdict, err)
		return
	}
	response.JSON(w, http.StatusOK, cfg)
}

func (h *LedgerRestHandler) GetSourceConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.sourceUC.Get(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, cfg)
}

func (h *LedgerRestHandler) ListSourceConfigs(w http.ResponseWriter, r *http.Request) {
	cfgs, err := h.sourceUC.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, cfgs)
}
