package repository

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"messenger-core/errs"
	"messenger-core/model"
)

const pairCondition = "((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))"

type GormMessages struct {
	db *gorm.DB
}

var _ Messages = (*GormMessages)(nil)

func NewGormMessages(db *gorm.DB) *GormMessages {
	return &GormMessages{db: db}
}

func (r *GormMessages) pair(ctx context.Context, a, b string) *gorm.DB {
	return r.db.WithContext(ctx).Model(&model.Message{}).Where(pairCondition, a, b, b, a)
}

func (r *GormMessages) Create(ctx context.Context, m *model.Message) error {
	prepare(m)
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *GormMessages) Get(ctx context.Context, id string) (*model.Message, error) {
	var m model.Message
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrMessageNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (r *GormMessages) FindConversation(ctx context.Context, a, b string, before *Cursor, limit int) ([]model.Message, error) {
	q := r.pair(ctx, a, b)
	if before != nil {
		at := before.CreatedAt.UTC()
		if before.ID == "" {
			q = q.Where("created_at < ?", at)
		} else {
			q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", at, at, before.ID)
		}
	}
	var out []model.Message
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

type conversationRow struct {
	CounterpartID string
	Unread        int64
}

func (r *GormMessages) ListConversations(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	var rows []conversationRow
	err := r.db.WithContext(ctx).Model(&model.Message{}).
		Select(`CASE WHEN sender_id = ? THEN receiver_id ELSE sender_id END AS counterpart_id,
			SUM(CASE WHEN receiver_id = ? AND NOT is_read THEN 1 ELSE 0 END) AS unread`, userID, userID).
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Group("counterpart_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]model.ConversationSummary, 0, len(rows))
	for _, row := range rows {
		latest, err := r.FindConversation(ctx, userID, row.CounterpartID, nil, 1)
		if err != nil {
			return nil, err
		}
		if len(latest) == 0 {
			continue
		}
		out = append(out, model.ConversationSummary{
			CounterpartID: row.CounterpartID,
			Last:          latest[0],
			Unread:        row.Unread,
		})
	}
	sortSummaries(out)
	return out, nil
}

// MarkRead updates and collects in one statement; a row another caller
// already flipped no longer matches the filter.
func (r *GormMessages) MarkRead(ctx context.Context, senderID, receiverID string) ([]string, error) {
	var changed []model.Message
	err := r.db.WithContext(ctx).Model(&changed).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "id"}}}).
		Where("sender_id = ? AND receiver_id = ? AND NOT is_read", senderID, receiverID).
		Update("is_read", true).Error
	if err != nil {
		return nil, err
	}
	if len(changed) == 0 {
		return nil, nil
	}
	ids := make([]string, len(changed))
	for i := range changed {
		ids[i] = changed[i].ID
	}
	return ids, nil
}

func (r *GormMessages) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Message{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.ErrMessageNotFound
	}
	return nil
}

func (r *GormMessages) ConversationAttachmentKeys(ctx context.Context, a, b string) ([]string, error) {
	var keys []string
	err := r.pair(ctx, a, b).
		Where("voice_storage_key <> ''").
		Pluck("voice_storage_key", &keys).Error
	return keys, err
}

func (r *GormMessages) DeleteConversation(ctx context.Context, a, b string) (int64, error) {
	res := r.db.WithContext(ctx).Where(pairCondition, a, b, b, a).Delete(&model.Message{})
	return res.RowsAffected, res.Error
}

func prepare(m *model.Message) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	m.CreatedAt = m.CreatedAt.UTC()
}

func reverse(ms []model.Message) {
	for i, j := 0, len(ms)-1; i < j; i, j = i+1, j-1 {
		ms[i], ms[j] = ms[j], ms[i]
	}
}

func sortSummaries(out []model.ConversationSummary) {
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Last.CreatedAt.After(out[j].Last.CreatedAt)
	})
}
