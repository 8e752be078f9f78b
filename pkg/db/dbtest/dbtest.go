// Package dbtest opens in-memory SQLite databases carrying the settlement
// schema for repository tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const timestamps = `
  created_at DATETIME,
  updated_at DATETIME,
  deleted_at DATETIME`

var schema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  seller_id TEXT NOT NULL,
  currency_code TEXT NOT NULL,` + timestamps + `
);`,
	`CREATE TABLE IF NOT EXISTS order_line_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_type_id TEXT,
  product_category_id TEXT,
  subtotal TEXT NOT NULL,
  tax_total TEXT NOT NULL,` + timestamps + `
);`,
	`CREATE TABLE IF NOT EXISTS order_shipping_lines (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  subtotal TEXT NOT NULL,
  tax_total TEXT NOT NULL,` + timestamps + `
);`,
	`CREATE TABLE IF NOT EXISTS commission_rates (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  target TEXT NOT NULL,
  value TEXT NOT NULL,
  min_amount TEXT,
  max_amount TEXT,
  is_tax_inclusive INTEGER NOT NULL DEFAULT 0,
  is_enabled INTEGER NOT NULL DEFAULT 1,
  priority INTEGER NOT NULL DEFAULT 0,
  currency_code TEXT,` + timestamps + `
);`,
	`CREATE TABLE IF NOT EXISTS commission_rate_prices (
  id TEXT PRIMARY KEY,
  rate_id TEXT NOT NULL,
  currency_code TEXT NOT NULL,
  amount TEXT NOT NULL,` + timestamps + `
);`,
	`CREATE TABLE IF NOT EXISTS commission_rules (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  reference TEXT NOT NULL,
  reference_id TEXT,
  rate_id TEXT NOT NULL,` + timestamps + `
);`,
	`CREATE TABLE IF NOT EXISTS commission_lines (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  item_line_id TEXT NOT NULL,
  rule_id TEXT NOT NULL,
  target TEXT NOT NULL,
  currency_code TEXT NOT NULL,
  value TEXT NOT NULL,` + timestamps + `
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_commission_lines_item_rule
  ON commission_lines (item_line_id, rule_id) WHERE deleted_at IS NULL;`,
	`CREATE TABLE IF NOT EXISTS split_order_payments (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  currency_code TEXT NOT NULL,
  captured_amount TEXT NOT NULL,
  refunded_amount TEXT NOT NULL,
  status TEXT NOT NULL,` + timestamps + `
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_split_order_payments_order ON split_order_payments (order_id);`,
	`CREATE TABLE IF NOT EXISTS payout_accounts (
  id TEXT PRIMARY KEY,
  seller_id TEXT NOT NULL,
  provider TEXT NOT NULL,
  status TEXT NOT NULL,
  reference_id TEXT NOT NULL,
  data TEXT,
  onboarding_url TEXT,` + timestamps + `
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_payout_accounts_seller ON payout_accounts (seller_id) WHERE deleted_at IS NULL;`,
	`CREATE TABLE IF NOT EXISTS payouts (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  order_id TEXT NOT NULL,
  amount TEXT NOT NULL,
  currency_code TEXT NOT NULL,
  data TEXT,` + timestamps + `
);`,
	`CREATE TABLE IF NOT EXISTS payout_reversals (
  id TEXT PRIMARY KEY,
  payout_id TEXT NOT NULL,
  amount TEXT NOT NULL,
  currency_code TEXT NOT NULL,
  reason TEXT,` + timestamps + `
);`,
	`CREATE TABLE IF NOT EXISTS transfers (
  id TEXT PRIMARY KEY,
  payout_id TEXT,
  order_id TEXT NOT NULL,
  account_id TEXT NOT NULL,
  provider TEXT NOT NULL,
  reference_id TEXT,
  status TEXT NOT NULL,
  amount TEXT NOT NULL,
  currency_code TEXT NOT NULL,
  data TEXT,
  failure_reason TEXT,` + timestamps + `
);`,
	`CREATE TABLE IF NOT EXISTS order_payout_links (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  payout_id TEXT NOT NULL,
  seller_id TEXT NOT NULL,` + timestamps + `
);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_order_payout_links_order ON order_payout_links (order_id) WHERE deleted_at IS NULL;`,
	`CREATE TABLE IF NOT EXISTS payout_blocks (
  order_id TEXT PRIMARY KEY,
  reason TEXT NOT NULL,
  message TEXT,
  attempts INTEGER NOT NULL DEFAULT 0,
  blocked_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS account_transactions (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  amount TEXT NOT NULL,
  currency_code TEXT NOT NULL,
  reference TEXT NOT NULL,
  reference_id TEXT NOT NULL,` + timestamps + `
);`,
	`CREATE TABLE IF NOT EXISTS workflow_step_logs (
  id TEXT PRIMARY KEY,
  run_id TEXT NOT NULL,
  workflow TEXT NOT NULL,
  key TEXT NOT NULL,
  step TEXT NOT NULL,
  sequence INTEGER NOT NULL,
  status TEXT NOT NULL,
  state TEXT,
  error TEXT,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  available_at DATETIME NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	`CREATE TABLE IF NOT EXISTS outbox_dlqs (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`,
}

// Open returns a private in-memory database named after the test with every
// settlement table created.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}
