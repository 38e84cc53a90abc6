package sellers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
	"github.com/angelmondragon/settlement-backend/pkg/types"
)

type bankHoldReleaser interface {
	ReleaseBankHolds(ctx context.Context, sellerID uuid.UUID) (int, error)
}

// SellerView is the API shape of a seller. Bank details are masked.
type SellerView struct {
	ID                 uuid.UUID           `json:"id"`
	UserID             uuid.UUID           `json:"user_id"`
	Name               string              `json:"name"`
	CommissionOverride decimal.NullDecimal `json:"commission_override"`
	BankDetails        types.BankDetails   `json:"bank_details"`
	BankComplete       bool                `json:"bank_complete"`
	TotalSales         int64               `json:"total_sales"`
	TotalOrders        int64               `json:"total_orders"`
	CreatedAt          time.Time           `json:"created_at"`
}

// BankDetailsResult reports a bank details save and the payouts it released.
type BankDetailsResult struct {
	Seller         SellerView `json:"seller"`
	ReleasedHolds  int        `json:"released_holds"`
	ReleaseFailure string     `json:"release_failure,omitempty"`
}

// Service exposes the seller surface of the settlement pipeline.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*SellerView, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*SellerView, error)
	SaveBankDetails(ctx context.Context, sellerID uuid.UUID, bank types.BankDetails) (*BankDetailsResult, error)
}

type service struct {
	repo    Repository
	payouts bankHoldReleaser
	logg    *logger.Logger
}

func NewService(repo Repository, payouts bankHoldReleaser, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("sellers repository required")
	}
	if payouts == nil {
		return nil, fmt.Errorf("payout hold releaser required")
	}
	return &service{repo: repo, payouts: payouts, logg: logg}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*SellerView, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	seller, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err)
	}
	view := toView(*seller)
	return &view, nil
}

func (s *service) GetByUserID(ctx context.Context, userID uuid.UUID) (*SellerView, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	seller, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, mapLookupError(err)
	}
	view := toView(*seller)
	return &view, nil
}

// SaveBankDetails stores complete bank details and releases payouts held for
// missing ones. A release failure is reported but does not undo the save.
func (s *service) SaveBankDetails(ctx context.Context, sellerID uuid.UUID, bank types.BankDetails) (*BankDetailsResult, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	bank = normalizeBank(bank)
	if !bank.IsComplete() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bank details incomplete").
			WithDetails(map[string]any{"missing": missingFields(bank)})
	}

	if err := s.repo.UpdateBankDetails(ctx, sellerID, bank); err != nil {
		return nil, mapLookupError(err)
	}
	seller, err := s.repo.FindByID(ctx, sellerID)
	if err != nil {
		return nil, mapLookupError(err)
	}

	result := &BankDetailsResult{Seller: toView(*seller)}
	released, err := s.payouts.ReleaseBankHolds(ctx, sellerID)
	if err != nil {
		result.ReleaseFailure = err.Error()
		if s.logg != nil {
			s.logg.Error(s.logg.WithSellerID(ctx, sellerID.String()), "release payout bank holds", err)
		}
		return result, nil
	}
	result.ReleasedHolds = released
	return result, nil
}

func normalizeBank(b types.BankDetails) types.BankDetails {
	return types.BankDetails{
		AccountHolder: strings.TrimSpace(b.AccountHolder),
		AccountNumber: strings.ReplaceAll(strings.TrimSpace(b.AccountNumber), " ", ""),
		RoutingCode:   strings.ToUpper(strings.TrimSpace(b.RoutingCode)),
		BankName:      strings.TrimSpace(b.BankName),
	}
}

func missingFields(b types.BankDetails) []string {
	var missing []string
	if b.AccountHolder == "" {
		missing = append(missing, "account_holder")
	}
	if b.AccountNumber == "" {
		missing = append(missing, "account_number")
	}
	if b.RoutingCode == "" {
		missing = append(missing, "routing_code")
	}
	if b.BankName == "" {
		missing = append(missing, "bank_name")
	}
	return missing
}

func toView(s models.Seller) SellerView {
	return SellerView{
		ID:                 s.ID,
		UserID:             s.UserID,
		Name:               s.Name,
		CommissionOverride: s.CommissionOverride,
		BankDetails:        s.Bank.Masked(),
		BankComplete:       s.Bank.IsComplete(),
		TotalSales:         s.TotalSales,
		TotalOrders:        s.TotalOrders,
		CreatedAt:          s.CreatedAt,
	}
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "seller not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller")
}
