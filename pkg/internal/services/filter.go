package services

import (
	"iter"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/wanderparty/tripchat/pkg/internal/models"
	"gorm.io/gorm"
)

const filterPageSize = 100

func (l *MessageLog) filterQuery(vacationId string, filter models.MessageFilter) *gorm.DB {
	tx := l.db.Model(&models.Message{}).Where("vacation_id = ?", vacationId)

	if !filter.IncludeDeleted {
		tx = tx.Where("deleted = ?", false)
	}
	if len(filter.Types) > 0 {
		tx = tx.Where("type IN ?", filter.Types)
	}
	if len(filter.UserID) > 0 {
		tx = tx.Where("user_id = ?", filter.UserID)
	}
	if filter.Since != nil {
		tx = tx.Where("timestamp >= ?", *filter.Since)
	}
	if filter.Until != nil {
		tx = tx.Where("timestamp <= ?", *filter.Until)
	}
	if len(filter.Keyword) > 0 {
		tx = tx.Where("content LIKE ?", "%"+filter.Keyword+"%")
	}
	if len(filter.ThreadID) > 0 {
		tx = tx.Where("(thread_id = ? OR parent_id = ? OR uuid = ?)",
			filter.ThreadID, filter.ThreadID, filter.ThreadID)
	}
	if filter.EditedOnly {
		tx = tx.Where("edited = ?", true)
	}
	if filter.PinnedOnly {
		tx = tx.Where("pinned = ?", true)
	}

	return tx.Order("timestamp ASC, id ASC")
}

// matchOverlay applies the predicates that live in JSON columns, which
// stay portable by being checked in Go rather than in dialect-specific
// SQL.
func matchOverlay(message models.Message, filter models.MessageFilter) bool {
	if filter.HasAttachment && len(message.Attachments) == 0 {
		return false
	}
	if len(filter.AttachmentType) > 0 {
		matched := lo.SomeBy([]models.MessageAttachment(message.Attachments), func(item models.MessageAttachment) bool {
			return item.Type == filter.AttachmentType
		})
		if !matched {
			return false
		}
	}
	if filter.HasReaction && len(message.Reactions.Data()) == 0 {
		return false
	}
	return true
}

// Filter produces a lazy, finite, restartable sequence of the room's
// messages matching the filter, in room-local order. Each range over the
// sequence re-runs the query from the start.
func (l *MessageLog) Filter(vacationId string, filter models.MessageFilter) iter.Seq2[models.Message, error] {
	return func(yield func(models.Message, error) bool) {
		offset := 0
		for {
			var page []models.Message
			if err := l.filterQuery(vacationId, filter).
				Limit(filterPageSize).Offset(offset).
				Find(&page).Error; err != nil {
				yield(models.Message{}, err)
				return
			}

			for _, message := range page {
				if !matchOverlay(message, filter) {
					continue
				}
				if !yield(message, nil) {
					return
				}
			}

			if len(page) < filterPageSize {
				return
			}
			offset += filterPageSize
		}
	}
}

const (
	searchDefaultLimit   = 20
	searchDefaultContext = 2
)

// Search returns ranked matches with the fields that matched and the N
// messages immediately around each hit in room-local order.
func (l *MessageLog) Search(vacationId string, query models.SearchQuery) ([]models.SearchResult, error) {
	keyword := strings.TrimSpace(query.Keyword)
	if len(keyword) == 0 {
		return nil, models.ErrValidation("search keyword is required")
	}

	limit := query.Limit
	if limit <= 0 {
		limit = searchDefaultLimit
	}
	contextSize := query.ContextSize
	if contextSize < 0 {
		contextSize = 0
	} else if contextSize == 0 {
		contextSize = searchDefaultContext
	}

	tx := l.db.Model(&models.Message{}).
		Where("vacation_id = ?", vacationId).
		Where("(content LIKE ? OR user_name LIKE ?)", "%"+keyword+"%", "%"+keyword+"%")
	if !query.IncludeDeleted {
		tx = tx.Where("deleted = ?", false)
	}

	var candidates []models.Message
	if err := tx.Order("timestamp ASC, id ASC").Find(&candidates).Error; err != nil {
		return nil, err
	}

	needle := strings.ToLower(keyword)
	results := make([]models.SearchResult, 0, len(candidates))
	for _, message := range candidates {
		var score float64
		var fields []string
		if n := strings.Count(strings.ToLower(message.Content), needle); n > 0 {
			score += 2 * float64(n)
			fields = append(fields, "content")
		}
		if strings.Contains(strings.ToLower(message.UserName), needle) {
			score += 1
			fields = append(fields, "user_name")
		}
		if score == 0 {
			continue
		}

		result := models.SearchResult{
			Message:       message,
			Score:         score,
			MatchedFields: fields,
		}
		if contextSize > 0 {
			before, after, err := l.contextAround(message, contextSize)
			if err != nil {
				return nil, err
			}
			result.Before, result.After = before, after
		}
		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (l *MessageLog) contextAround(message models.Message, size int) ([]models.Message, []models.Message, error) {
	var before []models.Message
	if err := l.db.Model(&models.Message{}).
		Where("vacation_id = ? AND deleted = ?", message.VacationID, false).
		Where("(timestamp < ? OR (timestamp = ? AND id < ?))", message.Timestamp, message.Timestamp, message.ID).
		Order("timestamp DESC, id DESC").
		Limit(size).
		Find(&before).Error; err != nil {
		return nil, nil, err
	}
	lo.Reverse(before)

	var after []models.Message
	if err := l.db.Model(&models.Message{}).
		Where("vacation_id = ? AND deleted = ?", message.VacationID, false).
		Where("(timestamp > ? OR (timestamp = ? AND id > ?))", message.Timestamp, message.Timestamp, message.ID).
		Order("timestamp ASC, id ASC").
		Limit(size).
		Find(&after).Error; err != nil {
		return nil, nil, err
	}

	return before, after, nil
}
