package payouts

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	"github.com/angelmondragon/settlement-backend/pkg/types"
)

// ListParams filter the admin payout list.
type ListParams struct {
	SellerID *uuid.UUID
	Status   *enums.PayoutStatus
	Limit    int
	Cursor   string
}

// ListResult wraps a page of payouts plus the next cursor.
type ListResult struct {
	Payouts    []PayoutView `json:"payouts"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// PayoutView is the API shape of a payout. Bank details are masked.
type PayoutView struct {
	ID                  uuid.UUID               `json:"id"`
	SellerID            uuid.UUID               `json:"seller_id"`
	PeriodStart         time.Time               `json:"period_start"`
	PeriodEnd           time.Time               `json:"period_end"`
	OrderRefs           []uuid.UUID             `json:"order_refs"`
	OrderCount          int                     `json:"order_count"`
	TotalSales          int64                   `json:"total_sales"`
	CommissionDeducted  int64                   `json:"commission_deducted"`
	GatewayFeesDeducted int64                   `json:"gateway_fees_deducted"`
	ShippingDeducted    int64                   `json:"shipping_deducted"`
	NetPayout           int64                   `json:"net_payout"`
	Status              enums.PayoutStatus      `json:"status"`
	HoldReason          *enums.PayoutHoldReason `json:"hold_reason,omitempty"`
	BankDetails         *types.BankDetails      `json:"bank_details,omitempty"`
	TransactionID       *string                 `json:"transaction_id,omitempty"`
	PaidAt              *time.Time              `json:"paid_at,omitempty"`
	FailureReason       *string                 `json:"failure_reason,omitempty"`
	RetryCount          int                     `json:"retry_count"`
	LinkState           enums.PayoutLinkState   `json:"link_state"`
	CreatedAt           time.Time               `json:"created_at"`
	UpdatedAt           time.Time               `json:"updated_at"`
}

// BatchResult reports one CalculatePayouts run.
type BatchResult struct {
	PeriodStart      time.Time    `json:"period_start"`
	PeriodEnd        time.Time    `json:"period_end"`
	Created          []PayoutView `json:"created"`
	Processed        int          `json:"processed"`
	SkippedDuplicate int          `json:"skipped_duplicate"`
	Conflicts        int          `json:"conflicts"`
	Failed           int          `json:"failed"`
	Errors           []string     `json:"errors,omitempty"`
}

// RecoveryResult reports one RecoverLinking run.
type RecoveryResult struct {
	Examined  int      `json:"examined"`
	Completed int      `json:"completed"`
	Partial   int      `json:"partial"`
	Errors    []string `json:"errors,omitempty"`
}

func toView(p models.SellerPayout) PayoutView {
	view := PayoutView{
		ID:                  p.ID,
		SellerID:            p.SellerID,
		PeriodStart:         p.PeriodStart,
		PeriodEnd:           p.PeriodEnd,
		OrderRefs:           p.OrderRefs,
		OrderCount:          len(p.OrderRefs),
		TotalSales:          p.TotalSales,
		CommissionDeducted:  p.CommissionDeducted,
		GatewayFeesDeducted: p.GatewayFeesDeducted,
		ShippingDeducted:    p.ShippingDeducted,
		NetPayout:           p.NetPayout,
		Status:              p.Status,
		HoldReason:          p.HoldReason,
		TransactionID:       p.TransactionID,
		PaidAt:              p.PaidAt,
		FailureReason:       p.FailureReason,
		RetryCount:          p.RetryCount,
		LinkState:           p.LinkState,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
	if view.OrderRefs == nil {
		view.OrderRefs = []uuid.UUID{}
	}
	if p.BankDetailsSnapshot != nil {
		masked := p.BankDetailsSnapshot.Masked()
		view.BankDetails = &masked
	}
	return view
}
