package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ledgerRepo журнал доставки писем и уведомления продавцов.
// Уникальные ключи в БД гарантируют отправку не более одного раза.
type ledgerRepo struct {
	postgresRepo
}

func NewLedgerRepo(db *sqlx.DB) *ledgerRepo {
	return &ledgerRepo{postgresRepo: newPostgresRepo(db)}
}

// ClaimDelivery занимает ключ доставки. Возвращает false, если письмо уже
// отправлено или отправляется. Запись в статусе failed можно занять повторно.
func (r *ledgerRepo) ClaimDelivery(ctx context.Context, d entities.EmailDelivery) (bool, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}

	query, args := r.qb.Insert("email_deliveries").
		Columns("id", "dedupe_key", "type", "order_id", "recipient", "status").
		Values(d.ID, d.DedupeKey, d.Type, nullString(d.OrderID), d.Recipient, entities.DeliveryProcessing).
		Suffix("ON CONFLICT (dedupe_key) DO UPDATE SET status = EXCLUDED.status, error = NULL, updated_at = NOW() " +
			"WHERE email_deliveries.status = 'failed' RETURNING id").
		MustSql()

	var id string
	err := r.getContext(ctx, &id, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to claim delivery: %w", err)
	}
	return true, nil
}

func (r *ledgerRepo) MarkDelivery(ctx context.Context, dedupeKey string, status entities.DeliveryStatus, deliveryErr string) error {
	query, args := r.qb.Update("email_deliveries").
		Set("status", status).
		Set("error", nullString(deliveryErr)).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"dedupe_key": dedupeKey}).
		MustSql()

	if _, err := r.execContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to mark delivery: %w", err)
	}
	return nil
}

// InsertNotification возвращает false, если уведомление по этому объекту уже есть.
func (r *ledgerRepo) InsertNotification(ctx context.Context, n entities.Notification) (bool, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	query, args := r.qb.Insert("notifications").
		Columns("id", "shop_id", "type", "subject_id", "title", "body").
		Values(n.ID, n.ShopID, n.Type, n.SubjectID, n.Title, n.Body).
		Suffix("ON CONFLICT (shop_id, type, subject_id) DO NOTHING").
		MustSql()

	res, err := r.execContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to insert notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

func (r *ledgerRepo) ListNotifications(ctx context.Context, shopID string, unreadOnly bool) ([]entities.Notification, error) {
	q := r.qb.Select("id", "shop_id", "type", "subject_id", "title", "body", "read", "created_at").
		From("notifications").
		Where(sq.Eq{"shop_id": shopID}).
		OrderBy("created_at DESC")
	if unreadOnly {
		q = q.Where(sq.Eq{"read": false})
	}
	query, args := q.MustSql()

	var rows []Notification
	if err := r.selectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select notifications: %w", err)
	}

	result := make([]entities.Notification, 0, len(rows))
	for _, n := range rows {
		result = append(result, NotificationToEntity(n))
	}
	return result, nil
}

func (r *ledgerRepo) MarkNotificationRead(ctx context.Context, shopID, id string) error {
	query, args := r.qb.Update("notifications").
		Set("read", true).
		Where(sq.Eq{"id": id, "shop_id": shopID}).
		MustSql()

	res, err := r.execContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return entities.ErrNotFound
	}
	return nil
}
