package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vedran77/pulseboard/internal/domain"
)

var messageColumns = []string{
	"m.id", "m.channel_id", "m.sender_id", "m.text", "m.reply_to_id",
	"ARRAY(SELECT r.user_id FROM message_reads r WHERE r.message_id = m.id ORDER BY r.read_at) AS read_by",
	"m.is_edited", "m.edited_at", "m.is_deleted", "m.deleted_by", "m.deleted_at",
	"m.created_at", "m.updated_at",
}

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
			INSERT INTO messages (id, channel_id, sender_id, text, reply_to_id, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`
		_, err := tx.Exec(ctx, query,
			msg.ID, msg.ChannelID, msg.SenderID, msg.Text, msg.ReplyToID, msg.CreatedAt, msg.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		_, err = r.insertReads(ctx, tx, []uuid.UUID{msg.ID}, msg.ReadBy, msg.CreatedAt)
		return err
	})
}

func (r *MessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	query, args, err := psql.Select(messageColumns...).
		From("messages m").
		Where(sq.Eq{"m.id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	msg, err := scanMessage(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return msg, err
}

func (r *MessageRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Message, error) {
	out := make(map[uuid.UUID]domain.Message, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := psql.Select(messageColumns...).
		From("messages m").
		Where(sq.Eq{"m.id": ids}).
		ToSql()
	if err != nil {
		return nil, err
	}

	messages, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	for _, m := range messages {
		out[m.ID] = m
	}
	return out, nil
}

func (r *MessageRepo) ListRecent(ctx context.Context, channelID uuid.UUID, limit int) ([]domain.Message, error) {
	query, args, err := psql.Select(messageColumns...).
		From("messages m").
		Where(sq.Eq{"m.channel_id": channelID, "m.is_deleted": false}).
		OrderBy("m.created_at DESC", "m.id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	messages, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	// Query returns newest first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *MessageRepo) UpdateText(ctx context.Context, id uuid.UUID, text string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE messages SET text = $2, is_edited = TRUE, edited_at = $3, updated_at = $3
		WHERE id = $1 AND NOT is_deleted`, id, text, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *MessageRepo) SoftDelete(ctx context.Context, id, deletedBy uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE messages SET is_deleted = TRUE, deleted_by = $2, deleted_at = $3, updated_at = $3
		WHERE id = $1 AND NOT is_deleted`, id, deletedBy, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkRead inserts read receipts; existing ones are left alone, so
// concurrent readers only ever grow the set.
func (r *MessageRepo) MarkRead(ctx context.Context, ids []uuid.UUID, userID uuid.UUID) (int64, error) {
	var changed int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		n, err := r.insertReads(ctx, tx, ids, []uuid.UUID{userID}, time.Now().UTC())
		changed = n
		return err
	})
	return changed, err
}

func (r *MessageRepo) CountUnread(ctx context.Context, channelIDs []uuid.UUID, userID uuid.UUID) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64)
	if len(channelIDs) == 0 {
		return counts, nil
	}

	query, args, err := psql.Select("m.channel_id", "COUNT(*)").
		From("messages m").
		Where(sq.Eq{"m.channel_id": channelIDs, "m.is_deleted": false}).
		Where(sq.NotEq{"m.sender_id": userID}).
		Where("NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.user_id = ?)", userID).
		GroupBy("m.channel_id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var channelID uuid.UUID
		var n int64
		if err := rows.Scan(&channelID, &n); err != nil {
			return nil, err
		}
		counts[channelID] = n
	}
	return counts, rows.Err()
}

func (r *MessageRepo) insertReads(ctx context.Context, tx pgx.Tx, messageIDs, userIDs []uuid.UUID, at time.Time) (int64, error) {
	if len(messageIDs) == 0 || len(userIDs) == 0 {
		return 0, nil
	}
	insert := psql.Insert("message_reads").Columns("message_id", "user_id", "read_at")
	for _, messageID := range messageIDs {
		for _, userID := range userIDs {
			insert = insert.Values(messageID, userID, at)
		}
	}
	query, args, err := insert.Suffix("ON CONFLICT DO NOTHING").ToSql()
	if err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert read receipts: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *MessageRepo) query(ctx context.Context, query string, args ...any) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var msg domain.Message
	err := row.Scan(
		&msg.ID, &msg.ChannelID, &msg.SenderID, &msg.Text, &msg.ReplyToID,
		&msg.ReadBy, &msg.IsEdited, &msg.EditedAt, &msg.IsDeleted,
		&msg.DeletedBy, &msg.DeletedAt, &msg.CreatedAt, &msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
