package usecase

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lelandsequel/metalledger/internal/domain"
	"github.com/lelandsequel/metalledger/internal/pkg/id"
	"github.com/lelandsequel/metalledger/internal/repository"

	"go.uber.org/zap"
)

// AuditRecorder is the write side of the audit trail.
type AuditRecorder interface {
	Record(ctx context.Context, in domain.AuditEntry) (int64, error)
}

// AuditTrail is the sole writer of the audit log.
type AuditTrail struct {
	repo   repository.AuditRepository
	logger *zap.Logger
}

func NewAuditTrail(repo repository.AuditRepository, logger *zap.Logger) *AuditTrail {
	return &AuditTrail{repo: repo, logger: logger}
}

// Fingerprint is the hex SHA-256 of the payload's canonical JSON: object
// keys sorted, numbers kept verbatim.
func Fingerprint(payload any) (string, error) {
	canonical, err := canonicalJSON(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("payload is not serializable: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("payload is not serializable: %w", err)
	}
	return json.Marshal(generic)
}

// Record fingerprints the payload and appends one record. A failure here
// must fail the enclosing action.
func (a *AuditTrail) Record(ctx context.Context, in domain.AuditEntry) (int64, error) {
	if in.Action == "" {
		return 0, &domain.ValidationError{Field: "action", Msg: "is required"}
	}
	switch in.Result {
	case domain.ResultAllowed, domain.ResultDenied, domain.ResultError:
	default:
		return 0, &domain.ValidationError{Field: "result", Msg: fmt.Sprintf("unknown result %q", in.Result)}
	}
	if in.RequestID == "" {
		in.RequestID = id.NewRequestID()
	}

	hash, err := Fingerprint(in.Payload)
	if err != nil {
		return 0, err
	}

	rec := &domain.AuditRecord{
		RequestID:   in.RequestID,
		Actor:       in.Actor,
		Action:      in.Action,
		Resource:    in.Resource,
		Result:      in.Result,
		PayloadHash: hash,
	}
	auditID, err := a.repo.AppendAudit(ctx, rec)
	if err != nil {
		a.logger.Error("audit append failed",
			zap.String("request_id", in.RequestID),
			zap.String("action", string(in.Action)),
			zap.Error(err))
		return 0, err
	}
	return auditID, nil
}

func (a *AuditTrail) QueryByRequest(ctx context.Context, requestID string) ([]*domain.AuditRecord, error) {
	if requestID == "" {
		return nil, &domain.ValidationError{Field: "request_id", Msg: "is required"}
	}
	return a.repo.AuditByRequest(ctx, requestID)
}

func (a *AuditTrail) QueryByActor(ctx context.Context, actor string, since time.Time) ([]*domain.AuditRecord, error) {
	if actor == "" {
		return nil, &domain.ValidationError{Field: "actor", Msg: "is required"}
	}
	return a.repo.AuditByActor(ctx, actor, since)
}

// Immutability checks, exposed so operators can confirm the storage
// boundary rejects tampering.
func (a *AuditTrail) TryUpdate(ctx context.Context, auditID int64, result domain.PolicyResult) error {
	return a.repo.UpdateAudit(ctx, auditID, result)
}

func (a *AuditTrail) TryDelete(ctx context.Context, auditID int64) error {
	return a.repo.DeleteAudit(ctx, auditID)
}

const verifyPageSize = 500

// Verify walks the hash chain from the first record and reports the first
// broken link.
func (a *AuditTrail) Verify(ctx context.Context) (*domain.ChainReport, error) {
	report := &domain.ChainReport{Valid: true}
	prevHash := ""
	var afterID int64

	for {
		page, err := a.repo.AuditChain(ctx, afterID, verifyPageSize)
		if err != nil {
			return nil, fmt.Errorf("failed to read audit chain: %w", err)
		}
		for _, rec := range page {
			report.Records++
			switch {
			case rec.PrevHash != prevHash:
				return broken(report, rec.ID, "prev_hash does not match preceding record"), nil
			case rec.ComputeHash() != rec.Hash:
				return broken(report, rec.ID, "record content does not match its hash"), nil
			}
			prevHash = rec.Hash
			afterID = rec.ID
		}
		if len(page) < verifyPageSize {
			return report, nil
		}
	}
}

func broken(r *domain.ChainReport, id int64, problem string) *domain.ChainReport {
	r.Valid = false
	r.BrokenAt = id
	r.Problem = problem
	return r
}
