package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/clarion-qa/clarion/internal/credits"
)

// BalanceScanner lists every balance at or below the alert threshold.
// Satisfied by credits.Service.
type BalanceScanner interface {
	LowBalances(ctx context.Context) ([]credits.Balance, error)
}

// EmailEnqueuer submits alert mails to the queue. Satisfied by Client.
type EmailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// NewLowBalanceScanTask constructs the periodic low-balance scan task.
func NewLowBalanceScanTask() *asynq.Task {
	return asynq.NewTask(TaskTypeLowBalanceScan, nil)
}

// LowBalanceScanHandler returns the handler for TaskTypeLowBalanceScan.
// Alerts are advisory: a balance below threshold is reported, never blocked.
func LowBalanceScanHandler(scanner BalanceScanner, mailer EmailEnqueuer, alertTo string, logger *slog.Logger) asynq.HandlerFunc {
	printer := message.NewPrinter(language.English)
	return func(ctx context.Context, t *asynq.Task) error {
		low, err := scanner.LowBalances(ctx)
		if err != nil {
			if logger != nil {
				logger.Error("low balance scan failed", slog.Any("error", err))
			}
			return err
		}
		for _, balance := range low {
			body := printer.Sprintf("Instance %s has used %d of %d audit credits. Top up to avoid interruption.",
				balance.InstanceID, balance.UsedAudits, balance.TotalAudits)
			if _, err := mailer.EnqueueSendEmail(ctx, SendEmailPayload{
				To:      alertTo,
				Subject: "Credit balance running low: " + balance.InstanceID,
				Body:    body,
			}); err != nil && logger != nil {
				logger.Warn("low balance alert enqueue failed",
					slog.String("instance", balance.InstanceID), slog.Any("error", err))
			}
		}
		if logger != nil {
			logger.Info("low balance scan complete", slog.Int("flagged", len(low)))
		}
		return nil
	}
}
