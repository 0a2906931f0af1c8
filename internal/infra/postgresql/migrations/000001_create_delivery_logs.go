package migrations

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/notification-platform/internal/domain"
	"github.com/kursadbilgin/notification-platform/internal/repository"
	"gorm.io/gorm"
)

func createEmailLogsTable() *gormigrate.Migration {
	return createLogTable("000001_create_email_logs", domain.ChannelEmail)
}

func createPushLogsTable() *gormigrate.Migration {
	return createLogTable("000002_create_push_logs", domain.ChannelPush)
}

func createLogTable(id string, channel domain.Channel) *gormigrate.Migration {
	table := repository.LogTable(channel)

	return &gormigrate.Migration{
		ID: id,
		Migrate: func(tx *gorm.DB) error {
			if err := tx.Table(table).AutoMigrate(&repository.DeliveryLogModel{}); err != nil {
				return err
			}
			indexes := []string{
				fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS idx_%[1]s_request_id ON %[1]s (request_id)`, table),
				fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_user_created ON %[1]s (user_id, created_at)`, table),
				fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_pending ON %[1]s (updated_at) WHERE status = 'pending'`, table),
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(table)
		},
	}
}
