package worker

import (
	"context"
	"time"

	"github.com/lelandsequel/metalledger/internal/domain"

	"go.uber.org/zap"
)

// ChainVerifier walks the audit hash chain.
type ChainVerifier interface {
	Verify(ctx context.Context) (*domain.ChainReport, error)
}

// AuditVerifier periodically re-verifies the audit chain and logs the first
// broken link it finds.
type AuditVerifier struct {
	verifier ChainVerifier
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
}

func NewAuditVerifier(verifier ChainVerifier, interval time.Duration, logger *zap.Logger) *AuditVerifier {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &AuditVerifier{
		verifier: verifier,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start blocks until Stop is called or ctx is done. It verifies once on
// start and then on every tick.
func (av *AuditVerifier) Start(ctx context.Context) {
	av.logger.Info("starting audit verifier", zap.Duration("interval", av.interval))

	ticker := time.NewTicker(av.interval)
	defer ticker.Stop()

	av.VerifyOnce(ctx)
	for {
		select {
		case <-ticker.C:
			av.VerifyOnce(ctx)

		case <-av.stopChan:
			av.logger.Info("stopping audit verifier")
			return

		case <-ctx.Done():
			av.logger.Info("context cancelled, stopping audit verifier")
			return
		}
	}
}

// VerifyOnce runs a single verification pass and returns its report, or nil
// if the chain could not be read.
func (av *AuditVerifier) VerifyOnce(ctx context.Context) *domain.ChainReport {
	report, err := av.verifier.Verify(ctx)
	if err != nil {
		av.logger.Error("audit chain verification failed", zap.Error(err))
		return nil
	}
	if !report.Valid {
		av.logger.Error("audit chain broken",
			zap.Int64("broken_at", report.BrokenAt),
			zap.String("problem", report.Problem),
			zap.Int("records_checked", report.Records))
	} else {
		av.logger.Debug("audit chain verified", zap.Int("records", report.Records))
	}
	return report
}

func (av *AuditVerifier) Stop() {
	close(av.stopChan)
}
