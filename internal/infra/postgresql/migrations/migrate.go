package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/habitsforgood/reminder-engine/internal/queue"
	"github.com/habitsforgood/reminder-engine/internal/repository"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_enrollment_store",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(
					&repository.RecipientModel{},
					&repository.EnrollmentModel{},
					&repository.SponsorPledgeModel{},
				); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_enrollments_active ON enrollments (campaign_id) WHERE active`,
					`CREATE UNIQUE INDEX IF NOT EXISTS idx_pledges_one_active_per_campaign ON sponsor_pledges (campaign_id) WHERE status = 'active'`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(
					&repository.SponsorPledgeModel{},
					&repository.EnrollmentModel{},
					&repository.RecipientModel{},
				)
			},
		},
		{
			ID: "000002_create_delivery_jobs",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&queue.DeliveryJobModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_jobs_eligible ON delivery_jobs (next_eligible_at) WHERE state = 'eligible'`,
					`CREATE INDEX IF NOT EXISTS idx_jobs_lease_expiry ON delivery_jobs (lease_expires_at) WHERE state = 'leased'`,
					`CREATE INDEX IF NOT EXISTS idx_jobs_failed_at ON delivery_jobs (failed_at) WHERE state = 'failed'`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&queue.DeliveryJobModel{})
			},
		},
		{
			ID: "000003_create_notification_logs",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&repository.NotificationLogModel{}); err != nil {
					return err
				}
				return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_logs_recipient_type_sent ON notification_logs (recipient_id, type, sent_at)`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.NotificationLogModel{})
			},
		},
	})

	return m.Migrate()
}
