// Package settings serves the platform settings singleton through a
// read-through cache. Staleness up to the TTL is accepted; order creation
// snapshots the split so later changes never rewrite history.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-backend/internal/commission"
	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-backend/pkg/errors"
	"github.com/angelmondragon/settlement-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/settlement-backend/pkg/redis"
)

const cacheName = "platform_settings"

// RemoteCache is the shared second-tier cache, normally Redis.
type RemoteCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CacheKey(name string) string
}

// View is the settings shape returned to admins and cached remotely.
type View struct {
	CommissionRate          decimal.Decimal      `json:"commission_rate"`
	NewSellerCommissionRate *decimal.Decimal     `json:"new_seller_commission_rate,omitempty"`
	GrandfatherDate         *time.Time           `json:"grandfather_date,omitempty"`
	GatewayFeeRate          decimal.Decimal      `json:"gateway_fee_rate"`
	PayoutSchedule          enums.PayoutSchedule `json:"payout_schedule"`
	MinimumPayoutAmount     int64                `json:"minimum_payout_amount"`
	UpdatedAt               time.Time            `json:"updated_at"`
}

// Terms converts the view into commission inputs.
func (v View) Terms() commission.Settings {
	out := commission.Settings{
		CommissionRate:  v.CommissionRate,
		GrandfatherDate: v.GrandfatherDate,
		GatewayFeeRate:  v.GatewayFeeRate,
	}
	if v.NewSellerCommissionRate != nil {
		out.NewSellerCommissionRate = decimal.NewNullDecimal(*v.NewSellerCommissionRate)
	}
	return out
}

// UpdateInput replaces the settings row. Nil optional fields clear them.
type UpdateInput struct {
	CommissionRate          decimal.Decimal
	NewSellerCommissionRate *decimal.Decimal
	GrandfatherDate         *time.Time
	GatewayFeeRate          decimal.Decimal
	PayoutSchedule          enums.PayoutSchedule
	MinimumPayoutAmount     int64
}

// Service caches settings in process and in the remote tier.
type Service struct {
	repo   Repository
	remote RemoteCache
	ttl    time.Duration
	logg   *logger.Logger
	now    func() time.Time

	mu      sync.RWMutex
	cached  *View
	expires time.Time
}

// NewService builds the settings cache. remote may be nil.
func NewService(repo Repository, remote RemoteCache, ttl time.Duration, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("settings repository required")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Service{
		repo:   repo,
		remote: remote,
		ttl:    ttl,
		logg:   logg,
		now:    time.Now,
	}, nil
}

// Current returns the cached settings, loading on miss or expiry.
func (s *Service) Current(ctx context.Context) (View, error) {
	s.mu.RLock()
	if s.cached != nil && s.now().Before(s.expires) {
		view := *s.cached
		s.mu.RUnlock()
		return view, nil
	}
	s.mu.RUnlock()

	if view, ok := s.readRemote(ctx); ok {
		s.store(view)
		return view, nil
	}

	row, err := s.repo.Get(ctx)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return View{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "platform settings not initialised")
		}
		return View{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load platform settings")
	}
	view := toView(*row)
	s.store(view)
	s.writeRemote(ctx, view)
	return view, nil
}

// Update validates and persists new settings, then invalidates both tiers.
func (s *Service) Update(ctx context.Context, input UpdateInput) (View, error) {
	if err := validate(input); err != nil {
		return View{}, err
	}
	row := models.PlatformSettings{
		CommissionRate:      input.CommissionRate,
		GrandfatherDate:     input.GrandfatherDate,
		GatewayFeeRate:      input.GatewayFeeRate,
		PayoutSchedule:      input.PayoutSchedule,
		MinimumPayoutAmount: input.MinimumPayoutAmount,
	}
	if input.NewSellerCommissionRate != nil {
		row.NewSellerCommissionRate = decimal.NewNullDecimal(*input.NewSellerCommissionRate)
	}
	if err := s.repo.Save(ctx, &row); err != nil {
		return View{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save platform settings")
	}
	s.Invalidate(ctx)
	return s.Current(ctx)
}

// Invalidate drops the cached copy in both tiers.
func (s *Service) Invalidate(ctx context.Context) {
	s.mu.Lock()
	s.cached = nil
	s.expires = time.Time{}
	s.mu.Unlock()

	if s.remote == nil {
		return
	}
	if err := s.remote.Del(ctx, s.remote.CacheKey(cacheName)); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "settings remote invalidation failed")
	}
}

func (s *Service) store(view View) {
	s.mu.Lock()
	s.cached = &view
	s.expires = s.now().Add(s.ttl)
	s.mu.Unlock()
}

func (s *Service) readRemote(ctx context.Context) (View, bool) {
	if s.remote == nil {
		return View{}, false
	}
	raw, err := s.remote.Get(ctx, s.remote.CacheKey(cacheName))
	if err != nil {
		if !pkgredis.IsMissing(err) && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "settings remote cache read failed")
		}
		return View{}, false
	}
	var view View
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		return View{}, false
	}
	return view, true
}

func (s *Service) writeRemote(ctx context.Context, view View) {
	if s.remote == nil {
		return
	}
	payload, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := s.remote.Set(ctx, s.remote.CacheKey(cacheName), string(payload), s.ttl); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "settings remote cache write failed")
	}
}

func toView(row models.PlatformSettings) View {
	view := View{
		CommissionRate:      row.CommissionRate,
		GrandfatherDate:     row.GrandfatherDate,
		GatewayFeeRate:      row.GatewayFeeRate,
		PayoutSchedule:      row.PayoutSchedule,
		MinimumPayoutAmount: row.MinimumPayoutAmount,
		UpdatedAt:           row.UpdatedAt,
	}
	if row.NewSellerCommissionRate.Valid {
		rate := row.NewSellerCommissionRate.Decimal
		view.NewSellerCommissionRate = &rate
	}
	return view
}

var hundred = decimal.NewFromInt(100)

func validate(input UpdateInput) error {
	var problems []string
	checkRate := func(name string, rate decimal.Decimal) {
		if rate.IsNegative() || rate.GreaterThan(hundred) {
			problems = append(problems, name+" must be between 0 and 100")
		}
	}
	checkRate("commission_rate", input.CommissionRate)
	checkRate("gateway_fee_rate", input.GatewayFeeRate)
	if input.NewSellerCommissionRate != nil {
		checkRate("new_seller_commission_rate", *input.NewSellerCommissionRate)
	}
	if (input.NewSellerCommissionRate == nil) != (input.GrandfatherDate == nil) {
		problems = append(problems, "new_seller_commission_rate and grandfather_date must be set together")
	}
	if !input.PayoutSchedule.IsValid() {
		problems = append(problems, "payout_schedule must be weekly, biweekly or monthly")
	}
	if input.MinimumPayoutAmount < 0 {
		problems = append(problems, "minimum_payout_amount must not be negative")
	}
	if len(problems) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, strings.Join(problems, "; ")).
			WithDetails(map[string]any{"problems": problems})
	}
	return nil
}
