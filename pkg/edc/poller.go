package edc

import (
	"context"
	"time"

	"github.com/diagnoml/platform/pkg/common/logger"
	"github.com/diagnoml/platform/pkg/common/models"
	"github.com/diagnoml/platform/pkg/common/retry"
	"github.com/diagnoml/platform/pkg/intake"
)

// Poller periodically pulls validated records and pushes them through the
// intake boundary. Records that fail intake validation are logged and
// dropped; the EDC keeps the authoritative copy.
type Poller struct {
	client     *Client
	intake     *intake.Service
	interval   time.Duration
	fetchRetry retry.Policy
	lastPull   time.Time
}

func NewPoller(client *Client, svc *intake.Service, interval time.Duration, fetchRetry retry.Policy) *Poller {
	return &Poller{
		client:     client,
		intake:     svc,
		interval:   interval,
		fetchRetry: fetchRetry,
	}
}

func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pull(ctx)
		}
	}
}

func (p *Poller) pull(ctx context.Context) {
	since := p.lastPull
	pullStart := time.Now().UTC()

	var records []models.RawRecord
	err := p.fetchRetry.Do(ctx, func() error {
		fetched, fetchErr := p.client.FetchValidatedRecords(ctx, since)
		if fetchErr != nil {
			return fetchErr
		}
		records = fetched
		return nil
	})
	if err != nil {
		logger.Log.WithError(err).Error("EDC pull failed")
		return
	}

	accepted := 0
	for _, raw := range records {
		if _, err := p.intake.Accept(ctx, raw); err != nil {
			logger.Log.WithError(err).Warn("EDC record rejected at intake")
			continue
		}
		accepted++
	}
	p.lastPull = pullStart

	logger.Log.WithFields(map[string]interface{}{
		"fetched":  len(records),
		"accepted": accepted,
	}).Info("EDC pull complete")
}
