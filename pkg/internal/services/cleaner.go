package services

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wanderparty/tripchat/pkg/internal/models"
)

// CleanupExpired hard-purges soft-deleted messages past the retention
// window. Rows that live messages still reference as thread root, thread
// parent or reply target stay untouched.
func (l *MessageLog) CleanupExpired(retention time.Duration) {
	deadline := l.clock.Now().Add(-retention)
	log.Debug().Time("deadline", deadline).Msg("Now cleaning up expired deleted messages...")

	referenced := func(column string) any {
		return l.db.Model(&models.Message{}).
			Select(column).
			Where(column+" IS NOT NULL AND deleted = ?", false)
	}

	tx := l.db.Unscoped().
		Where("deleted = ? AND updated_at < ?", true, deadline).
		Where("uuid NOT IN (?)", referenced("thread_id")).
		Where("uuid NOT IN (?)", referenced("parent_id")).
		Where("uuid NOT IN (?)", referenced("reply_to")).
		Delete(&models.Message{})
	if tx.Error != nil {
		log.Error().Err(tx.Error).Msg("An error occurred when running message cleanup...")
		return
	}

	log.Debug().Int64("affected", tx.RowsAffected).Msg("Message cleanup accomplished.")
}
