package repositories

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/liuyulin-1024/payment-gateway/internal/domain/entities"
)

// checkConstraints are the invariants GORM's struct tags cannot express:
// positivity and the status/timestamp coupling. Each statement is wrapped
// in a DO block so re-running migration on an already-constrained schema
// is a no-op.
var checkConstraints = []struct {
	table, name, check string
}{
	{"payments", "ck_payments_amount_positive", "amount > 0"},
	{"payments", "ck_payments_paid_at_matches_status", "(status = 'succeeded') = (paid_at IS NOT NULL)"},
	{"refunds", "ck_refunds_amount_positive", "refund_amount > 0"},
	{"refunds", "ck_refunds_refunded_at_matches_status", "(status = 'succeeded') = (refunded_at IS NOT NULL)"},
	{"webhook_deliveries", "ck_webhook_deliveries_attempt_count_nonnegative", "attempt_count >= 0"},
	{"webhook_deliveries", "ck_webhook_deliveries_delivered_at_matches_status", "(status = 'succeeded') = (delivered_at IS NOT NULL)"},
}

// Migrate creates or updates the schema for every entity and installs
// the DB-enforced check constraints. The raw-SQL constraint step only
// runs on postgres; the sqlite test databases rely on AutoMigrate alone.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&entities.App{},
		&entities.Payment{},
		&entities.Refund{},
		&entities.Callback{},
		&entities.WebhookDelivery{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	if db.Dialector.Name() != "postgres" {
		return nil
	}

	for _, c := range checkConstraints {
		stmt := fmt.Sprintf(
			"DO $$ BEGIN ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s); EXCEPTION WHEN duplicate_object THEN NULL; END $$;",
			c.table, c.name, c.check,
		)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("add constraint %s: %w", c.name, err)
		}
	}
	return nil
}
