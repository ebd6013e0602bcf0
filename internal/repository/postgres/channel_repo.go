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

var channelColumns = []string{
	"c.id", "c.name", "c.description", "c.project_id", "c.is_private",
	"ARRAY(SELECT cm.user_id FROM channel_members cm WHERE cm.channel_id = c.id) AS members",
	"c.created_by", "c.created_at", "c.updated_at",
	"c.is_deleted", "c.deleted_by", "c.deleted_at",
}

type ChannelRepo struct {
	pool *pgxpool.Pool
}

func NewChannelRepo(pool *pgxpool.Pool) *ChannelRepo {
	return &ChannelRepo{pool: pool}
}

func (r *ChannelRepo) Create(ctx context.Context, ch *domain.Channel) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
			INSERT INTO channels (id, name, description, project_id, is_private, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
		_, err := tx.Exec(ctx, query,
			ch.ID, ch.Name, ch.Description, ch.ProjectID, ch.IsPrivate,
			ch.CreatedBy, ch.CreatedAt, ch.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert channel: %w", err)
		}
		return insertMembers(ctx, tx, ch.ID, ch.Members)
	})
}

func (r *ChannelRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error) {
	query, args, err := psql.Select(channelColumns...).
		From("channels c").
		Where(sq.Eq{"c.id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	ch, err := scanChannel(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return ch, err
}

func (r *ChannelRepo) ListVisible(ctx context.Context, userID uuid.UUID) ([]domain.Channel, error) {
	query, args, err := visibleChannels(userID).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []domain.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, *ch)
	}
	return channels, rows.Err()
}

func (r *ChannelRepo) Update(ctx context.Context, ch *domain.Channel) (bool, error) {
	updated := false
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		query, args, err := psql.Update("channels").
			SetMap(map[string]any{
				"name":        ch.Name,
				"description": ch.Description,
				"is_private":  ch.IsPrivate,
				"updated_at":  ch.UpdatedAt,
			}).
			Where(sq.Eq{"id": ch.ID, "is_deleted": false}).
			ToSql()
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update channel: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		updated = true

		if _, err := tx.Exec(ctx, `DELETE FROM channel_members WHERE channel_id = $1`, ch.ID); err != nil {
			return fmt.Errorf("clear members: %w", err)
		}
		return insertMembers(ctx, tx, ch.ID, ch.Members)
	})
	return updated, err
}

func (r *ChannelRepo) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE channels SET updated_at = $2 WHERE id = $1 AND updated_at < $2`, id, at)
	return err
}

// SoftDelete flags the channel and its messages in one transaction.
func (r *ChannelRepo) SoftDelete(ctx context.Context, id, deletedBy uuid.UUID, at time.Time) (bool, error) {
	deleted := false
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE channels SET is_deleted = TRUE, deleted_by = $2, deleted_at = $3
			WHERE id = $1 AND NOT is_deleted`, id, deletedBy, at)
		if err != nil {
			return fmt.Errorf("delete channel: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		deleted = true

		_, err = tx.Exec(ctx, `
			UPDATE messages SET is_deleted = TRUE, deleted_by = $2, deleted_at = $3, updated_at = $3
			WHERE channel_id = $1 AND NOT is_deleted`, id, deletedBy, at)
		if err != nil {
			return fmt.Errorf("cascade delete messages: %w", err)
		}
		return nil
	})
	return deleted, err
}

func insertMembers(ctx context.Context, tx pgx.Tx, channelID uuid.UUID, members []uuid.UUID) error {
	if len(members) == 0 {
		return nil
	}
	query, args, err := memberInsert(channelID, members).ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert members: %w", err)
	}
	return nil
}

func visibleChannels(userID uuid.UUID) sq.SelectBuilder {
	return psql.Select(channelColumns...).
		From("channels c").
		Where("NOT c.is_deleted").
		Where(sq.Or{
			sq.Expr("NOT c.is_private"),
			sq.Expr("EXISTS (SELECT 1 FROM channel_members m WHERE m.channel_id = c.id AND m.user_id = ?)", userID),
		}).
		OrderBy("c.updated_at DESC")
}

func memberInsert(channelID uuid.UUID, members []uuid.UUID) sq.InsertBuilder {
	insert := psql.Insert("channel_members").Columns("channel_id", "user_id")
	for _, userID := range members {
		insert = insert.Values(channelID, userID)
	}
	return insert.Suffix("ON CONFLICT DO NOTHING")
}

func scanChannel(row pgx.Row) (*domain.Channel, error) {
	var ch domain.Channel
	err := row.Scan(
		&ch.ID, &ch.Name, &ch.Description, &ch.ProjectID, &ch.IsPrivate,
		&ch.Members, &ch.CreatedBy, &ch.CreatedAt, &ch.UpdatedAt,
		&ch.IsDeleted, &ch.DeletedBy, &ch.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}
