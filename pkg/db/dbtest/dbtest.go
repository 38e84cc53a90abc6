// Package dbtest opens isolated sqlite databases carrying the settlement schema.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/settlement-backend/pkg/db"
	"github.com/angelmondragon/settlement-backend/pkg/db/models"
	"github.com/angelmondragon/settlement-backend/pkg/enums"
)

var seq atomic.Int64

// Models lists every table the settlement services touch.
var Models = []any{
	&models.Seller{},
	&models.Product{},
	&models.PlatformSettings{},
	&models.Order{},
	&models.OrderItem{},
	&models.OrderStatusEvent{},
	&models.Shipment{},
	&models.ShipmentScan{},
	&models.SellerPayout{},
	&models.Coupon{},
	&models.CouponRedemption{},
	&models.OutboxEvent{},
	&models.OutboxDLQ{},
}

// Open returns a fresh in-memory database unique to the calling test.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_busy_timeout=5000", name, seq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, conn.AutoMigrate(Models...))
	return conn
}

// Client wraps Open in the shared db.Client so WithTx is available.
func Client(t *testing.T) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := Open(t)
	return db.NewFromConn(conn), conn
}

// SeedSettings writes the singleton settings row.
func SeedSettings(t *testing.T, conn *gorm.DB, commission, gatewayFee string, minimum int64) models.PlatformSettings {
	t.Helper()
	row := models.PlatformSettings{
		ID:                  models.PlatformSettingsID,
		CommissionRate:      decimal.RequireFromString(commission),
		GatewayFeeRate:      decimal.RequireFromString(gatewayFee),
		PayoutSchedule:      enums.PayoutScheduleWeekly,
		MinimumPayoutAmount: minimum,
	}
	require.NoError(t, conn.Create(&row).Error)
	return row
}
