package api

import (
	"time"

	"creatorpay/domain/entities"
	"creatorpay/service"
)

type creatorSettlementResponse struct {
	ID                int64      `json:"id"`
	Period            string     `json:"period"`
	TotalSalesAmount  int64      `json:"totalSalesAmount"`
	PlatformFeeAmount int64      `json:"platformFeeAmount"`
	PayoutAmount      *int64     `json:"payoutAmount"`
	Status            string     `json:"status"`
	SettledAt         *time.Time `json:"settledAt"`
}

type detailResponse struct {
	PaymentID int64     `json:"paymentId"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}

type creatorSettlementDetailResponse struct {
	creatorSettlementResponse
	Details   []detailResponse `json:"details"`
	Reversals []detailResponse `json:"reversals"`
}

type adminSettlementResponse struct {
	ID                int64      `json:"id"`
	CreatorID         int64      `json:"creatorId"`
	CreatorName       string     `json:"creatorName"`
	Period            string     `json:"period"`
	TotalSalesAmount  int64      `json:"totalSalesAmount"`
	PlatformFeeAmount int64      `json:"platformFeeAmount"`
	PayoutAmount      int64      `json:"payoutAmount"`
	Status            string     `json:"status"`
	SettledAt         *time.Time `json:"settledAt"`
	RetryCount        int        `json:"retryCount"`
	LastRetryAt       *time.Time `json:"lastRetryAt"`
	CreatedAt         time.Time  `json:"createdAt"`
}

type adminSettlementDetailResponse struct {
	adminSettlementResponse
	Details   []detailResponse `json:"details"`
	Reversals []detailResponse `json:"reversals"`
}

type pageResponse struct {
	Items      []adminSettlementResponse `json:"items"`
	Page       int                       `json:"page"`
	Size       int                       `json:"size"`
	TotalItems int64                     `json:"totalItems"`
	TotalPages int                       `json:"totalPages"`
}

type statsResponse struct {
	CurrentPeriod                string `json:"currentPeriod"`
	TotalCompletedPayout         int64  `json:"totalCompletedPayout"`
	CurrentPeriodCompletedPayout int64  `json:"currentPeriodCompletedPayout"`
	ReadyCount                   int64  `json:"readyCount"`
	CompletedCount               int64  `json:"completedCount"`
	FailedCount                  int64  `json:"failedCount"`
	RetryableCount               int64  `json:"retryableCount"`
	RetryExhaustedCount          int64  `json:"retryExhaustedCount"`
}

type batchRunResponse struct {
	Period             string `json:"period"`
	GroupsSeen         int    `json:"groupsSeen"`
	SettlementsCreated int    `json:"settlementsCreated"`
	SkippedExisting    int    `json:"skippedExisting"`
	GroupsFailed       int    `json:"groupsFailed"`
	PaymentsSettled    int    `json:"paymentsSettled"`
	PaymentsDropped    int64  `json:"paymentsDropped"`
	PayoutsSucceeded   int    `json:"payoutsSucceeded"`
	PayoutsFailed      int    `json:"payoutsFailed"`
	DurationMillis     int64  `json:"durationMillis"`
}

type batchRunRecordResponse struct {
	ID                 int64          `json:"id"`
	Period             string         `json:"period"`
	SettlementsCreated int            `json:"settlementsCreated"`
	PaymentsSettled    int            `json:"paymentsSettled"`
	PaymentsDropped    int64          `json:"paymentsDropped"`
	PayoutsSucceeded   int            `json:"payoutsSucceeded"`
	PayoutsFailed      int            `json:"payoutsFailed"`
	Summary            map[string]any `json:"summary,omitempty"`
	StartedAt          time.Time      `json:"startedAt"`
}

type payoutOutcomeResponse struct {
	SettlementID int64  `json:"settlementId"`
	CreatorID    int64  `json:"creatorId"`
	Period       string `json:"period"`
	Status       string `json:"status"`
	PayoutAmount int64  `json:"payoutAmount"`
	RetryCount   int    `json:"retryCount"`
	Reference    string `json:"reference,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Exhausted    bool   `json:"exhausted"`
}

func toCreatorSettlement(v *service.CreatorSettlementView) creatorSettlementResponse {
	return creatorSettlementResponse{
		ID:                v.ID,
		Period:            v.Period,
		TotalSalesAmount:  v.TotalSalesAmount,
		PlatformFeeAmount: v.PlatformFeeAmount,
		PayoutAmount:      v.PayoutAmount,
		Status:            string(v.Status),
		SettledAt:         v.SettledAt,
	}
}

func toDetails(details []*entities.SettlementDetail) []detailResponse {
	out := make([]detailResponse, 0, len(details))
	for _, d := range details {
		out = append(out, detailResponse{PaymentID: d.PaymentID, Amount: d.Amount, CreatedAt: d.CreatedAt})
	}
	return out
}

func toReversals(reversals []*entities.SettlementReversal) []detailResponse {
	out := make([]detailResponse, 0, len(reversals))
	for _, r := range reversals {
		out = append(out, detailResponse{PaymentID: r.PaymentID, Amount: r.Amount, CreatedAt: r.CreatedAt})
	}
	return out
}

func toAdminSettlement(s *entities.Settlement, creatorName string) adminSettlementResponse {
	return adminSettlementResponse{
		ID:                s.ID,
		CreatorID:         s.CreatorID,
		CreatorName:       creatorName,
		Period:            s.Period,
		TotalSalesAmount:  s.TotalSalesAmount,
		PlatformFeeAmount: s.PlatformFeeAmount,
		PayoutAmount:      s.PayoutAmount,
		Status:            string(s.Status),
		SettledAt:         s.SettledAt,
		RetryCount:        s.RetryCount,
		LastRetryAt:       s.LastRetryAt,
		CreatedAt:         s.CreatedAt,
	}
}

func toPage(p *entities.SettlementPage) pageResponse {
	items := make([]adminSettlementResponse, 0, len(p.Items))
	for _, item := range p.Items {
		items = append(items, toAdminSettlement(&item.Settlement, item.CreatorName))
	}
	return pageResponse{
		Items:      items,
		Page:       p.Page,
		Size:       p.Size,
		TotalItems: p.TotalItems,
		TotalPages: p.TotalPages(),
	}
}

func toStats(s *entities.SettlementStats) statsResponse {
	return statsResponse{
		CurrentPeriod:                s.CurrentPeriod,
		TotalCompletedPayout:         s.TotalCompletedPayout,
		CurrentPeriodCompletedPayout: s.CurrentPeriodCompletedPayout,
		ReadyCount:                   s.ReadyCount,
		CompletedCount:               s.CompletedCount,
		FailedCount:                  s.FailedCount,
		RetryableCount:               s.RetryableCount,
		RetryExhaustedCount:          s.RetryExhaustedCount,
	}
}

func toBatchRun(s *service.BatchRunSummary) batchRunResponse {
	return batchRunResponse{
		Period:             s.Period,
		GroupsSeen:         s.GroupsSeen,
		SettlementsCreated: s.SettlementsCreated,
		SkippedExisting:    s.SkippedExisting,
		GroupsFailed:       s.GroupsFailed,
		PaymentsSettled:    s.PaymentsSettled,
		PaymentsDropped:    s.PaymentsDropped,
		PayoutsSucceeded:   s.PayoutsSucceeded,
		PayoutsFailed:      s.PayoutsFailed,
		DurationMillis:     s.Duration.Milliseconds(),
	}
}

func toBatchRunRecord(run *entities.BatchRun) batchRunRecordResponse {
	return batchRunRecordResponse{
		ID:                 run.ID,
		Period:             run.Period,
		SettlementsCreated: run.SettlementsCreated,
		PaymentsSettled:    run.PaymentsSettled,
		PaymentsDropped:    run.PaymentsDropped,
		PayoutsSucceeded:   run.PayoutsSucceeded,
		PayoutsFailed:      run.PayoutsFailed,
		Summary:            run.ExecutionSummary,
		StartedAt:          run.StartedAt,
	}
}

func toPayoutOutcome(o *service.PayoutOutcome) payoutOutcomeResponse {
	return payoutOutcomeResponse{
		SettlementID: o.SettlementID,
		CreatorID:    o.CreatorID,
		Period:       o.Period,
		Status:       string(o.Status),
		PayoutAmount: o.PayoutAmount,
		RetryCount:   o.RetryCount,
		Reference:    o.Reference,
		Reason:       o.Reason,
		Exhausted:    o.Exhausted,
	}
}
