// Package inventory applies conditional stock changes for order line items.
package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
)

const (
	ReasonInsufficientStock = "insufficient stock"
	ReasonUnknownProduct    = "product not found"
)

// Request is one stock movement.
type Request struct {
	ProductID uuid.UUID
	Qty       int
}

// Result reports whether a movement was applied. Shortfalls are not errors.
type Result struct {
	ProductID uuid.UUID
	Qty       int
	Applied   bool
	Reason    string
}

// RequestsFromItems turns order line items into stock movements.
func RequestsFromItems(items []models.OrderItem) []Request {
	out := make([]Request, 0, len(items))
	for _, item := range items {
		out = append(out, Request{ProductID: item.ProductID, Qty: item.Quantity})
	}
	return out
}

// Decrement removes stock only where enough remains. Each row is a single
// conditional UPDATE so concurrent callers can never drive stock negative.
func Decrement(ctx context.Context, tx *gorm.DB, requests []Request) ([]Result, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	results := make([]Result, 0, len(requests))
	for _, req := range requests {
		if req.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid quantity %d for product %s", req.Qty, req.ProductID))
		}
		res := tx.WithContext(ctx).
			Model(&models.Product{}).
			Where("id = ? AND stock >= ?", req.ProductID, req.Qty).
			UpdateColumn("stock", gorm.Expr("stock - ?", req.Qty))
		if res.Error != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement stock")
		}
		result := Result{ProductID: req.ProductID, Qty: req.Qty, Applied: res.RowsAffected == 1}
		if !result.Applied {
			reason, err := shortfallReason(ctx, tx, req.ProductID)
			if err != nil {
				return nil, err
			}
			result.Reason = reason
		}
		results = append(results, result)
	}
	return results, nil
}

// Restore adds stock back, typically after a cancellation or return.
func Restore(ctx context.Context, tx *gorm.DB, requests []Request) ([]Result, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	results := make([]Result, 0, len(requests))
	for _, req := range requests {
		if req.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid quantity %d for product %s", req.Qty, req.ProductID))
		}
		res := tx.WithContext(ctx).
			Model(&models.Product{}).
			Where("id = ?", req.ProductID).
			UpdateColumn("stock", gorm.Expr("stock + ?", req.Qty))
		if res.Error != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "restore stock")
		}
		result := Result{ProductID: req.ProductID, Qty: req.Qty, Applied: res.RowsAffected == 1}
		if !result.Applied {
			result.Reason = ReasonUnknownProduct
		}
		results = append(results, result)
	}
	return results, nil
}

// DecrementItems takes stock for each line item and flags the items whose
// decrement applied, so a later restock only returns what was taken.
func DecrementItems(ctx context.Context, tx *gorm.DB, items []models.OrderItem) ([]Result, error) {
	results, err := Decrement(ctx, tx, RequestsFromItems(items))
	if err != nil {
		return nil, err
	}
	var reserved []uuid.UUID
	for i, r := range results {
		if r.Applied {
			reserved = append(reserved, items[i].ID)
		}
	}
	if len(reserved) == 0 {
		return results, nil
	}
	err = tx.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id IN ?", reserved).
		Update("stock_reserved", true).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag reserved items")
	}
	return results, nil
}

// RestoreItems gives back stock for items flagged by DecrementItems. Each
// flag is cleared before its stock moves, so a replay restores nothing twice.
func RestoreItems(ctx context.Context, tx *gorm.DB, items []models.OrderItem) ([]Result, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	var claimed []models.OrderItem
	for _, item := range items {
		res := tx.WithContext(ctx).
			Model(&models.OrderItem{}).
			Where("id = ? AND stock_reserved = ?", item.ID, true).
			Update("stock_reserved", false)
		if res.Error != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release reserved item")
		}
		if res.RowsAffected == 1 {
			claimed = append(claimed, item)
		}
	}
	if len(claimed) == 0 {
		return nil, nil
	}
	return Restore(ctx, tx, RequestsFromItems(claimed))
}

// Shortfalls filters results that were not applied.
func Shortfalls(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Applied {
			out = append(out, r)
		}
	}
	return out
}

func shortfallReason(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (string, error) {
	var count int64
	if err := tx.WithContext(ctx).Model(&models.Product{}).Where("id = ?", productID).Count(&count).Error; err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check product")
	}
	if count == 0 {
		return ReasonUnknownProduct, nil
	}
	return ReasonInsufficientStock, nil
}
