package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/kirana-commerce/kirana-commerce/internal/ledger"
)

// LedgerScanner replays ledger history against stored balances.
type LedgerScanner interface {
	ScanSubjects(ctx context.Context, subjectType string) ([]ledger.ReplayResult, error)
}

// integritySubjects are the balance families the nightly scan covers.
var integritySubjects = []string{ledger.SubjectStock, ledger.SubjectCODCash}

// NewLedgerIntegrityHandler builds the scheduled integrity scan. Drift is a
// loud error so the job shows up failed in the inspector instead of burying
// the finding in a log line.
func NewLedgerIntegrityHandler(scanner LedgerScanner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var drifted int
		for _, subjectType := range integritySubjects {
			results, err := scanner.ScanSubjects(ctx, subjectType)
			if err != nil {
				return fmt.Errorf("scan %s: %w", subjectType, err)
			}
			for _, r := range results {
				drifted++
				logger.Error("ledger balance drift detected",
					"subject_type", r.SubjectType,
					"subject_id", r.SubjectID,
					"stored", r.Stored,
					"replayed", r.Replayed,
					"entries", r.Entries,
				)
			}
		}
		if drifted > 0 {
			return fmt.Errorf("ledger integrity: %d drifted balances", drifted)
		}
		logger.Info("ledger integrity scan clean")
		return nil
	}
}
