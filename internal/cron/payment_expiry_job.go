package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/dermashop/dermashop-backend/pkg/db/models"
	"github.com/dermashop/dermashop-backend/pkg/logger"
	"github.com/dermashop/dermashop-backend/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

const defaultExpiryBatchSize = 200

type overduePaymentReader interface {
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]models.Payment, error)
}

type orderExpirer interface {
	Expire(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// PaymentExpiryJobParams configure the payment expiry job.
type PaymentExpiryJobParams struct {
	Logger    *logger.Logger
	Payments  overduePaymentReader
	Orders    orderExpirer
	Metrics   *metrics.CronJobMetrics
	BatchSize int
}

// NewPaymentExpiryJob builds the job that closes orders whose bank transfer
// never arrived and hands their reserved stock back.
func NewPaymentExpiryJob(params PaymentExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments reader required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order expirer required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatchSize
	}
	return &paymentExpiryJob{
		logg:     params.Logger,
		payments: params.Payments,
		orders:   params.Orders,
		metrics:  params.Metrics,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type paymentExpiryJob struct {
	logg     *logger.Logger
	payments overduePaymentReader
	orders   orderExpirer
	metrics  *metrics.CronJobMetrics
	batch    int
	now      func() time.Time
}

func (j *paymentExpiryJob) Name() string { return "payment_expiry" }

// Run expires one batch of overdue payments. A failure on one order does not
// stop the rest; all failures are returned together.
func (j *paymentExpiryJob) Run(ctx context.Context) error {
	overdue, err := j.payments.ListOverdue(ctx, j.now().UTC(), j.batch)
	if err != nil {
		return fmt.Errorf("query overdue payments: %w", err)
	}

	var (
		errs    error
		expired int
		skipped int
	)
	for _, payment := range overdue {
		moved, err := j.orders.Expire(ctx, payment.OrderID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", payment.OrderID, err))
			continue
		}
		if !moved {
			skipped++
			continue
		}
		expired++
	}

	j.metrics.AddAffected(j.Name(), expired)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"overdue": len(overdue),
		"expired": expired,
		"skipped": skipped,
		"failed":  len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "payment expiry loop complete")
	return errs
}
