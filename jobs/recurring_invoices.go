package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// RecurringRunner generates invoices from due recurring schedules and
// reports how many documents it produced.
type RecurringRunner interface {
	RunRecurring(ctx context.Context) (int, error)
}

// HandleRecurringInvoices returns the handler for the recurring-invoice run.
func HandleRecurringInvoices(logger *slog.Logger, runner RecurringRunner) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		start := time.Now()
		created, err := runner.RunRecurring(ctx)
		if err != nil {
			return fmt.Errorf("recurring invoices: %w", err)
		}
		logger.Info("recurring invoice run complete",
			slog.Int("created", created),
			slog.Duration("took", time.Since(start)))
		return nil
	}
}
