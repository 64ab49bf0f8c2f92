package entities

// SettlementFilter narrows the admin settlement search. Zero values mean "any".
type SettlementFilter struct {
	CreatorID   *int64
	CreatorName string // case-insensitive substring match on display name
	Period      string
	Status      *SettlementStatus
	Page        int // zero-based
	Size        int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	MaxPage         = 100000
)

// Normalize clamps paging to sane bounds
func (f *SettlementFilter) Normalize() {
	if f.Page < 0 {
		f.Page = 0
	}
	if f.Page > MaxPage {
		f.Page = MaxPage
	}
	if f.Size <= 0 {
		f.Size = DefaultPageSize
	}
	if f.Size > MaxPageSize {
		f.Size = MaxPageSize
	}
}

// Offset returns the row offset for the current page
func (f SettlementFilter) Offset() int {
	return f.Page * f.Size
}

// SettlementSummary is a settlement joined with its creator's display name
type SettlementSummary struct {
	Settlement
	CreatorName string `db:"creator_name"`
}

// SettlementPage is one page of an admin search
type SettlementPage struct {
	Items      []*SettlementSummary
	Page       int
	Size       int
	TotalItems int64
}

// TotalPages returns the number of pages available for the search
func (p *SettlementPage) TotalPages() int {
	if p.Size <= 0 {
		return 0
	}
	return int((p.TotalItems + int64(p.Size) - 1) / int64(p.Size))
}

// SettlementWithDetails bundles a settlement with its applied payments and reversals
type SettlementWithDetails struct {
	Settlement  *Settlement
	CreatorName string
	Details     []*SettlementDetail
	Reversals   []*SettlementReversal
}

// SettlementStats summarizes payout state across all creators
type SettlementStats struct {
	CurrentPeriod                string
	TotalCompletedPayout         int64
	CurrentPeriodCompletedPayout int64
	ReadyCount                   int64
	CompletedCount               int64
	FailedCount                  int64
	RetryableCount               int64 // FAILED with retries remaining
	RetryExhaustedCount          int64 // FAILED with retry ceiling reached
}
