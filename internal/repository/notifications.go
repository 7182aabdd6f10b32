package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/rating-disputes/internal/domain"
)

// NotificationsRepository is the recipient mailbox. Rows are only ever
// inserted, or have read/disputed flipped to true.
type NotificationsRepository struct {
	pool *pgxpool.Pool
}

const notificationColumns = `id, recipient_ref, type, message, data, read, disputed, created_at`

// NotificationCreateParams bundles the fields required to store a notification.
type NotificationCreateParams struct {
	ID           string
	RecipientRef string
	Type         domain.NotificationType
	Message      string
	Data         json.RawMessage
}

// NotificationListFilters selects a recipient's notifications.
type NotificationListFilters struct {
	RecipientRef string
	Stream       *domain.Stream
	UnreadOnly   bool
	Limit        int
}

// Create inserts a notification and returns the stored entity.
func (r *NotificationsRepository) Create(ctx context.Context, params NotificationCreateParams) (domain.Notification, error) {
	data := params.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}

	query := fmt.Sprintf(`
        INSERT INTO notifications (id, recipient_ref, type, message, data)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING %s
    `, notificationColumns)

	row := r.pool.QueryRow(ctx, query, params.ID, params.RecipientRef, string(params.Type), params.Message, []byte(data))
	n, err := scanNotification(row)
	if err != nil {
		if isUniqueViolation(err, "notifications_pkey") {
			return domain.Notification{}, ErrDuplicate
		}
		return domain.Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

// Get fetches a notification by id.
func (r *NotificationsRepository) Get(ctx context.Context, id string) (domain.Notification, error) {
	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE id = $1`, notificationColumns)
	n, err := scanNotification(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Notification{}, ErrNotFound
		}
		return domain.Notification{}, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

// List returns a recipient's notifications newest first.
func (r *NotificationsRepository) List(ctx context.Context, filters NotificationListFilters) ([]domain.Notification, error) {
	limit := clampLimit(filters.Limit, 100, 500)

	where := []string{"recipient_ref = $1"}
	args := []interface{}{filters.RecipientRef}
	if filters.Stream != nil {
		op := "= ANY"
		if *filters.Stream == domain.StreamSystem {
			op = "<> ALL"
		}
		args = append(args, domain.RatingStreamTypes())
		where = append(where, fmt.Sprintf("type %s($%d)", op, len(args)))
	}
	if filters.UnreadOnly {
		where = append(where, "NOT read")
	}

	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d`,
		notificationColumns, strings.Join(where, " AND "), limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// MarkRead flips read to true. Repeating it is a no-op. Notifications that
// do not belong to the recipient are reported as ErrNotFound.
func (r *NotificationsRepository) MarkRead(ctx context.Context, id, recipientRef string) (domain.Notification, error) {
	return r.flip(ctx, `read = true`, `id = $1 AND recipient_ref = $2`, id, recipientRef)
}

// MarkDisputed flips disputed to true on a new_rating notification.
func (r *NotificationsRepository) MarkDisputed(ctx context.Context, id, recipientRef string) (domain.Notification, error) {
	return r.flip(ctx, `disputed = true`,
		fmt.Sprintf(`id = $1 AND recipient_ref = $2 AND type = '%s'`, domain.TypeNewRating), id, recipientRef)
}

func (r *NotificationsRepository) flip(ctx context.Context, set, where string, args ...interface{}) (domain.Notification, error) {
	query := fmt.Sprintf(`UPDATE notifications SET %s WHERE %s RETURNING %s`, set, where, notificationColumns)
	n, err := scanNotification(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Notification{}, ErrNotFound
		}
		return domain.Notification{}, fmt.Errorf("update notification: %w", err)
	}
	return n, nil
}

// MarkRatingDisputed sets disputed on every new_rating notification the
// recipient holds for ratingID and returns how many rows changed.
func (r *NotificationsRepository) MarkRatingDisputed(ctx context.Context, recipientRef, ratingID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
        UPDATE notifications
        SET disputed = true
        WHERE recipient_ref = $1 AND type = $2 AND data->>'ratingId' = $3 AND NOT disputed
    `, recipientRef, string(domain.TypeNewRating), ratingID)
	if err != nil {
		return 0, fmt.Errorf("mark rating disputed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UnreadCount returns the number of unread notifications for a recipient.
func (r *NotificationsRepository) UnreadCount(ctx context.Context, recipientRef string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM notifications WHERE recipient_ref = $1 AND NOT read`, recipientRef).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

func scanNotification(row pgx.Row) (domain.Notification, error) {
	var (
		n     domain.Notification
		ntype string
		data  []byte
	)
	err := row.Scan(&n.ID, &n.RecipientRef, &ntype, &n.Message, &data, &n.Read, &n.Disputed, &n.CreatedAt)
	if err != nil {
		return domain.Notification{}, err
	}
	n.Type = domain.NotificationType(ntype)
	if len(data) > 0 {
		n.Data = json.RawMessage(data)
	}
	return n, nil
}
