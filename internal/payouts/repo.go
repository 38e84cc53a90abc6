package payouts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/settlement-backend/internal/repo"
	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	"github.com/angelmondragon/settlement-backend/pkg/pagination"
	"github.com/angelmondragon/settlement-backend/pkg/types"
)

// Repository defines persistence operations for payouts and the orders they settle.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	EligibleOrders(ctx context.Context, periodStart, periodEnd time.Time) ([]models.Order, error)
	HasOverlap(ctx context.Context, sellerID uuid.UUID, periodStart, periodEnd time.Time) (bool, error)
	LockSeller(ctx context.Context, sellerID uuid.UUID) error
	FindSellers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Seller, error)
	FindSeller(ctx context.Context, id uuid.UUID) (*models.Seller, error)
	Create(ctx context.Context, payout *models.SellerPayout) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.SellerPayout, error)
	List(ctx context.Context, params listParams) ([]models.SellerPayout, *pagination.Cursor, error)
	LinkOrders(ctx context.Context, payoutID uuid.UUID, orderIDs []uuid.UUID) (int64, error)
	LinkedOrders(ctx context.Context, payoutID uuid.UUID) ([]models.Order, error)
	MarkOrdersPaid(ctx context.Context, payoutID uuid.UUID) (int64, error)
	UpdateIfStatus(ctx context.Context, id uuid.UUID, from []enums.PayoutStatus, updates map[string]any) (bool, error)
	Reopen(ctx context.Context, id uuid.UUID, from []enums.PayoutStatus, bank types.BankDetails) (bool, error)
	ReleaseBankHolds(ctx context.Context, sellerID uuid.UUID, bank types.BankDetails) (int64, error)
	MarkLinked(ctx context.Context, id uuid.UUID) (bool, error)
	SettleLinking(ctx context.Context, payout *models.SellerPayout, from enums.PayoutStatus) (bool, error)
	StaleLinking(ctx context.Context, before time.Time) ([]models.SellerPayout, error)
}

type listParams struct {
	SellerID *uuid.UUID
	Status   *enums.PayoutStatus
	Limit    int
	Cursor   *pagination.Cursor
}

type repository struct {
	repo.Base
}

// NewRepository builds a payouts repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) EligibleOrders(ctx context.Context, periodStart, periodEnd time.Time) ([]models.Order, error) {
	var rows []models.Order
	err := r.DB(ctx).
		Where("payment_status = ?", enums.PaymentStatusPaid).
		Where("order_status = ?", enums.OrderStatusDelivered).
		Where("payout_status = ?", enums.OrderPayoutStatusPending).
		Where("payout_id IS NULL").
		Where("delivered_at >= ? AND delivered_at <= ?", periodStart, periodEnd).
		Order("seller_id ASC, delivered_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) HasOverlap(ctx context.Context, sellerID uuid.UUID, periodStart, periodEnd time.Time) (bool, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.SellerPayout{}).
		Where("seller_id = ?", sellerID).
		Where("period_start <= ? AND period_end >= ?", periodEnd, periodStart).
		Count(&count).Error
	return count > 0, err
}

// LockSeller holds the seller row until the surrounding transaction ends so
// overlap checks and payout inserts for one seller run one at a time.
func (r *repository) LockSeller(ctx context.Context, sellerID uuid.UUID) error {
	var seller models.Seller
	return r.DB(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", sellerID).
		First(&seller).Error
}

func (r *repository) FindSellers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Seller, error) {
	out := make(map[uuid.UUID]models.Seller, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Seller
	if err := r.DB(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

func (r *repository) FindSeller(ctx context.Context, id uuid.UUID) (*models.Seller, error) {
	var seller models.Seller
	if err := r.DB(ctx).Where("id = ?", id).First(&seller).Error; err != nil {
		return nil, err
	}
	return &seller, nil
}

func (r *repository) Create(ctx context.Context, payout *models.SellerPayout) error {
	return r.DB(ctx).Create(payout).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.SellerPayout, error) {
	var payout models.SellerPayout
	if err := r.DB(ctx).Where("id = ?", id).First(&payout).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) List(ctx context.Context, params listParams) ([]models.SellerPayout, *pagination.Cursor, error) {
	query := r.DB(ctx).Model(&models.SellerPayout{})
	if params.SellerID != nil {
		query = query.Where("seller_id = ?", *params.SellerID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	var rows []models.SellerPayout
	if err := pagination.Seek(query, params.Cursor, params.Limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Page(rows, params.Limit, func(row models.SellerPayout) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return page, next, nil
}

// LinkOrders attaches still-unlinked pending orders to the payout and returns how many moved.
func (r *repository) LinkOrders(ctx context.Context, payoutID uuid.UUID, orderIDs []uuid.UUID) (int64, error) {
	if len(orderIDs) == 0 {
		return 0, nil
	}
	result := r.DB(ctx).
		Model(&models.Order{}).
		Where("id IN ?", orderIDs).
		Where("payout_status = ? AND payout_id IS NULL", enums.OrderPayoutStatusPending).
		Updates(map[string]any{
			"payout_status": enums.OrderPayoutStatusIncluded,
			"payout_id":     payoutID,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) LinkedOrders(ctx context.Context, payoutID uuid.UUID) ([]models.Order, error) {
	var rows []models.Order
	err := r.DB(ctx).
		Where("payout_id = ?", payoutID).
		Order("delivered_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) MarkOrdersPaid(ctx context.Context, payoutID uuid.UUID) (int64, error) {
	result := r.DB(ctx).
		Model(&models.Order{}).
		Where("payout_id = ? AND payout_status = ?", payoutID, enums.OrderPayoutStatusIncluded).
		Update("payout_status", enums.OrderPayoutStatusPaid)
	return result.RowsAffected, result.Error
}

func (r *repository) UpdateIfStatus(ctx context.Context, id uuid.UUID, from []enums.PayoutStatus, updates map[string]any) (bool, error) {
	return r.UpdateGuarded(ctx, &models.SellerPayout{}, repo.Guard{Query: "id = ? AND status IN ?", Args: []any{id, from}}, updates)
}

// Reopen moves a payout back to pending with a fresh bank snapshot.
func (r *repository) Reopen(ctx context.Context, id uuid.UUID, from []enums.PayoutStatus, bank types.BankDetails) (bool, error) {
	result := r.DB(ctx).
		Model(&models.SellerPayout{}).
		Where("id = ? AND status IN ?", id, from).
		Select("status", "hold_reason", "bank_details_snapshot", "failure_reason").
		Updates(&models.SellerPayout{
			Status:              enums.PayoutStatusPending,
			BankDetailsSnapshot: &bank,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ReleaseBankHolds flips every missing-bank-details hold of the seller to pending.
func (r *repository) ReleaseBankHolds(ctx context.Context, sellerID uuid.UUID, bank types.BankDetails) (int64, error) {
	result := r.DB(ctx).
		Model(&models.SellerPayout{}).
		Where("seller_id = ? AND status = ? AND hold_reason = ?", sellerID, enums.PayoutStatusOnHold, enums.PayoutHoldMissingBankDetails).
		Select("status", "hold_reason", "bank_details_snapshot").
		Updates(&models.SellerPayout{
			Status:              enums.PayoutStatusPending,
			BankDetailsSnapshot: &bank,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) MarkLinked(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.UpdateGuarded(ctx, &models.SellerPayout{},
		repo.Guard{Query: "id = ? AND link_state = ?", Args: []any{id, enums.PayoutLinkLinking}},
		map[string]any{"link_state": enums.PayoutLinkLinked})
}

func (r *repository) StaleLinking(ctx context.Context, before time.Time) ([]models.SellerPayout, error) {
	var rows []models.SellerPayout
	err := r.DB(ctx).
		Where("link_state = ? AND updated_at <= ?", enums.PayoutLinkLinking, before).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// SettleLinking rewrites a linking payout with the refs, totals and status it
// ends up with and flips it to linked. It matches nothing once the payout has
// left from.
func (r *repository) SettleLinking(ctx context.Context, payout *models.SellerPayout, from enums.PayoutStatus) (bool, error) {
	result := r.DB(ctx).
		Model(&models.SellerPayout{}).
		Where("id = ? AND link_state = ? AND status = ?", payout.ID, enums.PayoutLinkLinking, from).
		Select("order_refs", "total_sales", "commission_deducted", "gateway_fees_deducted",
			"shipping_deducted", "net_payout", "status", "hold_reason", "failure_reason", "link_state").
		Updates(&models.SellerPayout{
			OrderRefs:           payout.OrderRefs,
			TotalSales:          payout.TotalSales,
			CommissionDeducted:  payout.CommissionDeducted,
			GatewayFeesDeducted: payout.GatewayFeesDeducted,
			ShippingDeducted:    payout.ShippingDeducted,
			NetPayout:           payout.NetPayout,
			Status:              payout.Status,
			HoldReason:          payout.HoldReason,
			FailureReason:       payout.FailureReason,
			LinkState:           enums.PayoutLinkLinked,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
