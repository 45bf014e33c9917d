package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/KipkuruiYegon/MPESA-Telegram-Bot/app/entity"
)

type ChatUserRepository struct {
	db DBTX
}

func NewChatUserRepository(db DBTX) *ChatUserRepository {
	return &ChatUserRepository{db: db}
}

// Upsert keeps the display name fresh and never touches the subscription flag.
func (r *ChatUserRepository) Upsert(ctx context.Context, user *entity.ChatUser) error {
	query := `
		INSERT INTO chat_users (user_id, username, last_known_subscribed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			username = COALESCE(VALUES(username), username),
			updated_at = VALUES(updated_at)
	`

	_, err := r.db.ExecContext(ctx, query,
		user.UserID,
		nullableStringValue(user.Username),
		user.LastKnownSubscribed,
		user.CreatedAt,
		user.UpdatedAt,
	)
	return err
}

func (r *ChatUserRepository) FindByID(ctx context.Context, userID int64) (*entity.ChatUser, error) {
	query := `
		SELECT user_id, username, last_known_subscribed, created_at, updated_at
		FROM chat_users
		WHERE user_id = ?
	`

	user := &entity.ChatUser{}
	var username sql.NullString
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&user.UserID,
		&username,
		&user.LastKnownSubscribed,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user.Username = stringPtrFromNull(username)

	return user, nil
}

func (r *ChatUserRepository) SetLastKnownSubscribed(ctx context.Context, userID int64, subscribed bool, now time.Time) error {
	query := `UPDATE chat_users SET last_known_subscribed = ?, updated_at = ? WHERE user_id = ?`
	_, err := r.db.ExecContext(ctx, query, subscribed, now, userID)
	return err
}
