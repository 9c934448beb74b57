package hrest

import (
	"net/http"

	"github.com/lelandsequel/metalledger/internal/domain"
	"github.com/lelandsequel/metalledger/internal/pkg/requestid"
	"github.com/lelandsequel/metalledger/internal/pkg/response"

	"go.uber.org/zap"
)

// actorFrom resolves the caller from the role header.
func actorFrom(r *http.Request) (domain.Actor, error) {
	return domain.ParseActor(r.Header.Get(RoleHeader))
}

// requireHuman rejects any caller whose role header is not exactly HUMAN.
// The rejection is written to the audit trail before the 403 is sent.
func (h *LedgerRestHandler) requireHuman(kind domain.ActionKind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(RoleHeader)
			if token == domain.CreatedByHuman {
				next.ServeHTTP(w, r)
				return
			}

			actor := token
			if a, err := domain.ParseActor(token); err == nil {
				actor = a.String()
			}
			if actor == "" {
				actor = "anonymous"
			}

			rid := requestid.From(r.Context())
			_, err := h.audit.Record(r.Context(), domain.AuditEntry{
				RequestID: rid,
				Actor:     actor,
				Action:    kind,
				Resource:  r.URL.Path,
				Result:    domain.ResultDenied,
				Payload:   map[string]string{"method": r.Method, "path": r.URL.Path},
			})
			if err != nil {
				h.logger.Error("failed to audit rejected caller",
					zap.String("request_id", rid),
					zap.Error(err))
				response.Error(w, http.StatusServiceUnavailable, "audit trail unavailable")
				return
			}

			response.Denied(w, http.StatusForbidden, "HUMAN role required", domain.Verdict{
				Allowed:   false,
				Result:    domain.ResultDenied,
				Reason:    "HUMAN role required",
				Guardrail: domain.GuardrailHumanRoleRequired,
				RequestID: rid,
			})
		})
	}
}
