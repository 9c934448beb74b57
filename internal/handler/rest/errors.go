package hrest

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/lelandsequel/metalledger/internal/domain"
	"github.com/lelandsequel/metalledger/internal/pkg/response"
	"github.com/lelandsequel/metalledger/internal/pkg/xerrors"

	log "github.com/sirupsen/logrus"
)

// handleUsecaseError maps a usecase error to a status code and a message
// that is safe to return to the caller.
func handleUsecaseError(err error) (int, string) {
	logger := log.WithFields(log.Fields{
		"function":   "handleUsecaseError",
		"error":      err.Error(),
		"error_type": fmt.Sprintf("%T", err),
	})

	var (
		authErr       *domain.AuthorizationError
		validationErr *domain.ValidationError
		unbalanced    *domain.UnbalancedEntryError
		policyErr     *domain.PolicyViolation
		egressErr     *domain.EgressViolation
		immutableErr  *domain.ImmutabilityViolation
		approvalErr   *domain.ApprovalExpiredOrMissing
	)

	switch {
	case errors.As(err, &authErr):
		logger.WithField("http_status", http.StatusForbidden).Warn("caller not authorized")
		return http.StatusForbidden, authErr.Error()

	case errors.As(err, &egressErr):
		logger.WithField("http_status", http.StatusForbidden).Warn("egress denied")
		return http.StatusForbidden, egressErr.Error()

	case errors.As(err, &policyErr):
		logger.WithField("http_status", http.StatusForbidden).Warn("policy violation")
		return http.StatusForbidden, policyErr.Error()

	case errors.As(err, &approvalErr):
		logger.WithField("http_status", http.StatusForbidden).Warn("approval missing")
		return http.StatusForbidden, approvalErr.Error()

	case errors.As(err, &validationErr),
		errors.Is(err, xerrors.ErrInvalidRequest):
		logger.WithField("http_status", http.StatusBadRequest).Warn("invalid request")
		return http.StatusBadRequest, err.Error()

	case errors.As(err, &unbalanced):
		logger.WithField("http_status", http.StatusUnprocessableEntity).Warn("unbalanced entry rejected")
		return http.StatusUnprocessableEntity, unbalanced.Error()

	case errors.As(err, &immutableErr):
		logger.WithField("http_status", http.StatusConflict).Warn("immutability violation")
		return http.StatusConflict, immutableErr.Error()

	case errors.Is(err, xerrors.ErrInvalidTransition),
		errors.Is(err, xerrors.ErrDuplicateAccount):
		logger.WithField("http_status", http.StatusConflict).Warn("conflicting state")
		return http.StatusConflict, err.Error()

	case errors.Is(err, xerrors.ErrNotFound),
		errors.Is(err, xerrors.ErrAccountNotFound),
		errors.Is(err, xerrors.ErrEntryNotFound),
		errors.Is(err, xerrors.ErrApprovalNotFound),
		errors.Is(err, xerrors.ErrPriceNotFound),
		errors.Is(err, xerrors.ErrSourceNotFound):
		logger.WithField("http_status", http.StatusNotFound).Warn("resource not found")
		return http.StatusNotFound, err.Error()

	case errors.Is(err, xerrors.ErrAuditUnavailable):
		logger.WithField("http_status", http.StatusServiceUnavailable).Error("audit trail unavailable")
		return http.StatusServiceUnavailable, xerrors.ErrAuditUnavailable.Error()

	case errors.Is(err, xerrors.ErrStoreUnavailable):
		logger.WithField("http_status", http.StatusServiceUnavailable).Error("store unavailable")
		return http.StatusServiceUnavailable, xerrors.ErrStoreUnavailable.Error()
	}

	logger.WithField("http_status", http.StatusInternalServerError).Error("unhandled error")
	return http.StatusInternalServerError, xerrors.ErrInternalServer.Error()
}

func writeError(w http.ResponseWriter, err error) {
	status, msg := handleUsecaseError(err)
	response.Error(w, status, msg)
}

// writeVerdictError responds with the mapped error and, when the policy
// engine produced a verdict, includes it so callers can correlate by
// request id.
func writeVerdictError(w http.ResponseWriter, verdict domain.Verdict, err error) {
	status, msg := handleUsecaseError(err)
	if verdict.Result == "" {
		response.Error(w, status, msg)
		return
	}
	response.Denied(w, status, msg, verdict)
}
