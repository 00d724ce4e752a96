package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

type notificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository создаёт PostgreSQL-реализацию NotificationRepository.
func NewNotificationRepository(store *Store) domain.NotificationRepository {
	return &notificationRepository{db: store.DB()}
}

// GetOrCreate вставляет уведомление; при конфликте по ключу (тип, субъект)
// возвращает уже существующую запись. Второй результат true для новой записи.
func (r *notificationRepository) GetOrCreate(notification domain.Notification) (domain.Notification, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (
			id, type, subject_kind, subject_id, title, message, priority, is_read, read_at, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		notification.ID, string(notification.Type),
		string(notification.Subject.Kind), notification.Subject.ID,
		notification.Title, notification.Message, string(notification.Priority),
		notification.IsRead, nullTime(notification.ReadAt), notification.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			existing, getErr := r.getByKey(ctx, notification.Type, notification.Subject)
			if getErr != nil {
				return domain.Notification{}, false, fmt.Errorf("fetch existing notification: %w", getErr)
			}
			return existing, false, nil
		}
		return domain.Notification{}, false, fmt.Errorf("insert notification: %w", err)
	}

	return notification, true, nil
}

func (r *notificationRepository) Get(id string) (domain.Notification, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	notification, err := scanNotification(r.db.QueryRowContext(ctx, `
		SELECT id, type, subject_kind, subject_id, title, message, priority, is_read, read_at, created_at
		FROM notifications
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Notification{}, fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
		}
		return domain.Notification{}, fmt.Errorf("select notification: %w", err)
	}

	return notification, nil
}

func (r *notificationRepository) ListUnread(limit int) ([]domain.Notification, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, subject_kind, subject_id, title, message, priority, is_read, read_at, created_at
		FROM notifications
		WHERE NOT is_read
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unread notifications: %w", err)
	}
	defer rows.Close()

	notifications := make([]domain.Notification, 0, limit)
	for rows.Next() {
		notification, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification row: %w", err)
		}
		notifications = append(notifications, notification)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notification rows: %w", err)
	}

	return notifications, nil
}

// MarkRead помечает уведомление прочитанным. Для уже прочитанного — no-op.
func (r *notificationRepository) MarkRead(id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET is_read = TRUE,
		    read_at = $2
		WHERE id = $1
		  AND NOT is_read
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := r.Get(id); err != nil {
			return err
		}
	}

	return nil
}

func (r *notificationRepository) DeleteReadBefore(before time.Time, limit int) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		res sql.Result
		err error
	)

	if limit > 0 {
		res, err = r.db.ExecContext(ctx, `
			DELETE FROM notifications
			WHERE id IN (
				SELECT id
				FROM notifications
				WHERE is_read
				  AND created_at < $1
				ORDER BY created_at ASC
				LIMIT $2
			)
		`, before, limit)
	} else {
		res, err = r.db.ExecContext(ctx, `
			DELETE FROM notifications
			WHERE is_read
			  AND created_at < $1
		`, before)
	}
	if err != nil {
		return 0, fmt.Errorf("delete read notifications: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("notification rows affected: %w", err)
	}

	return int(affected), nil
}

func (r *notificationRepository) getByKey(ctx context.Context, notificationType domain.NotificationType, subject domain.SubjectRef) (domain.Notification, error) {
	return scanNotification(r.db.QueryRowContext(ctx, `
		SELECT id, type, subject_kind, subject_id, title, message, priority, is_read, read_at, created_at
		FROM notifications
		WHERE type = $1 AND subject_kind = $2 AND subject_id = $3
	`, string(notificationType), string(subject.Kind), subject.ID))
}

func scanNotification(row rowScanner) (domain.Notification, error) {
	var (
		notification     domain.Notification
		notificationType string
		subjectKind      string
		priority         string
		readAt           sql.NullTime
	)
	if err := row.Scan(
		&notification.ID, &notificationType, &subjectKind, &notification.Subject.ID,
		&notification.Title, &notification.Message, &priority,
		&notification.IsRead, &readAt, &notification.CreatedAt,
	); err != nil {
		return domain.Notification{}, err
	}

	notification.Type = domain.NotificationType(notificationType)
	notification.Subject.Kind = domain.SubjectKind(subjectKind)
	notification.Priority = domain.Priority(priority)
	if readAt.Valid {
		notification.ReadAt = readAt.Time.UTC()
	}

	return notification, nil
}

var _ domain.NotificationRepository = (*notificationRepository)(nil)
