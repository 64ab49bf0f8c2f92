package infrastructure

import (
	"context"
	"fmt"

	"creatorpay/service"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// LoggingPayoutRail is the stand-in rail used until a banking integration is
// wired: it accepts every positive transfer and logs it.
type LoggingPayoutRail struct{}

// NewLoggingPayoutRail creates a new logging payout rail
func NewLoggingPayoutRail() *LoggingPayoutRail {
	return &LoggingPayoutRail{}
}

// AttemptPayout records the transfer and returns a generated reference
func (r *LoggingPayoutRail) AttemptPayout(ctx context.Context, creatorID int64, amount int64) (*service.PayoutResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if amount < 0 {
		return &service.PayoutResult{
			Success: false,
			Reason:  fmt.Sprintf("negative payout amount %d", amount),
		}, nil
	}

	reference := uuid.New().String()
	log.WithFields(log.Fields{
		"creatorId": creatorID,
		"amount":    amount,
		"reference": reference,
	}).Info("Payout transferred")

	return &service.PayoutResult{
		Success:   true,
		Reference: reference,
	}, nil
}
