package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

var orderColumns = []string{
	"id", "number", "checkout_id", "shop_id", "user_id", "guest_token", "customer_email",
	"subtotal", "discount", "tax", "shipping", "total", "currency",
	"status", "payment_status", "fulfillment_status", "shipping_method_id", "coupon_code",
	"cancel_reason", "admin_note", "shipping_address", "billing_address", "created_at", "updated_at",
}

var itemColumns = []string{
	"id", "order_id", "product_id", "name", "sku", "image_url", "variant",
	"unit_price", "quantity", "total_price", "stock_restored",
}

var paymentColumns = []string{
	"id", "order_id", "authorization_id", "connected_account_id", "application_fee",
	"amount", "currency", "status", "refund_id", "created_at",
}

type orderRepo struct {
	postgresRepo
}

func NewOrderRepo(db *sqlx.DB) *orderRepo {
	return &orderRepo{postgresRepo: newPostgresRepo(db)}
}

func (r *orderRepo) NextOrderNumber(ctx context.Context) (string, error) {
	var n int64
	if err := r.getContext(ctx, &n, "SELECT nextval('order_number_seq')"); err != nil {
		return "", fmt.Errorf("failed to get order number: %w", err)
	}
	return fmt.Sprintf("ORD-%06d", n), nil
}

func (r *orderRepo) CreateOrder(ctx context.Context, o entities.Order) error {
	shipping, err := jsonParam(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to encode shipping address: %w", err)
	}
	billing, err := jsonParam(o.BillingAddress)
	if err != nil {
		return fmt.Errorf("failed to encode billing address: %w", err)
	}

	query, args := r.qb.Insert("orders").
		Columns(
			"id", "number", "checkout_id", "shop_id", "user_id", "guest_token", "customer_email",
			"subtotal", "discount", "tax", "shipping", "total", "currency",
			"status", "payment_status", "fulfillment_status", "shipping_method_id", "coupon_code",
			"shipping_address", "billing_address",
		).
		Values(
			o.ID, o.Number, o.CheckoutID, o.ShopID, nullString(o.UserID), nullString(o.GuestToken), o.CustomerEmail,
			o.Subtotal, o.Discount, o.Tax, o.Shipping, o.Total, o.Currency,
			o.Status, o.PaymentStatus, o.FulfillmentStatus, nullString(o.ShippingMethodID), nullString(o.CouponCode),
			shipping, billing,
		).
		MustSql()

	if _, err := r.execContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	if len(o.Items) == 0 {
		return nil
	}

	q := r.qb.Insert("order_items").
		Columns("id", "order_id", "product_id", "name", "sku", "image_url", "variant",
			"unit_price", "quantity", "total_price")

	for _, it := range o.Items {
		variant, err := variantParam(it.Variant)
		if err != nil {
			return fmt.Errorf("failed to encode variant: %w", err)
		}
		q = q.Values(
			it.ID, o.ID, it.ProductID, it.Name, it.SKU, nullString(it.ImageURL), variant,
			it.UnitPrice, it.Quantity, it.TotalPrice,
		)
	}

	query, args = q.MustSql()
	if _, err := r.execContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert order items: %w", err)
	}
	return nil
}

func (r *orderRepo) GetOrder(ctx context.Context, id string) (entities.Order, error) {
	query, args := r.qb.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"id": id}).
		MustSql()

	var order Order
	err := r.getContext(ctx, &order, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Order{}, entities.ErrOrderNotFound
	}
	if err != nil {
		return entities.Order{}, fmt.Errorf("failed to get order: %w", err)
	}

	items, err := r.itemsByOrders(ctx, []string{id})
	if err != nil {
		return entities.Order{}, err
	}
	return OrderToEntity(order, items[id]), nil
}

func (r *orderRepo) GetOrders(ctx context.Context, ids []string) ([]entities.Order, error) {
	if len(ids) == 0 {
		return []entities.Order{}, nil
	}
	return r.listOrders(ctx, sq.Eq{"id": ids})
}

func (r *orderRepo) OrdersByCheckout(ctx context.Context, checkoutID string) ([]entities.Order, error) {
	return r.listOrders(ctx, sq.Eq{"checkout_id": checkoutID})
}

func (r *orderRepo) listOrders(ctx context.Context, where sq.Sqlizer) ([]entities.Order, error) {
	query, args := r.qb.Select(orderColumns...).
		From("orders").
		Where(where).
		OrderBy("created_at", "number").
		MustSql()

	var orders []Order
	if err := r.selectContext(ctx, &orders, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select orders: %w", err)
	}
	if len(orders) == 0 {
		return []entities.Order{}, nil
	}

	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}

	items, err := r.itemsByOrders(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]entities.Order, 0, len(orders))
	for _, o := range orders {
		result = append(result, OrderToEntity(o, items[o.ID]))
	}
	return result, nil
}

func (r *orderRepo) itemsByOrders(ctx context.Context, ids []string) (map[string][]Item, error) {
	query, args := r.qb.Select(itemColumns...).
		From("order_items").
		Where(sq.Eq{"order_id": ids}).
		OrderBy("id").
		MustSql()

	var items []Item
	if err := r.selectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select order items: %w", err)
	}

	result := make(map[string][]Item, len(ids))
	for _, it := range items {
		result[it.OrderID] = append(result[it.OrderID], it)
	}
	return result, nil
}

// TransitionOrder обновляет заказ только если его текущий статус входит в from.
// false означает, что заказ уже в другом статусе и ничего не изменено.
func (r *orderRepo) TransitionOrder(ctx context.Context, id string, from []entities.OrderStatus, upd entities.OrderUpdate) (bool, error) {
	q := r.qb.Update("orders").
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id, "status": statusStrings(from)})

	if len(upd.PaymentFrom) > 0 {
		q = q.Where(sq.Eq{"payment_status": paymentStrings(upd.PaymentFrom)})
	}
	if upd.Status != "" {
		q = q.Set("status", upd.Status)
	}
	if upd.PaymentStatus != "" {
		q = q.Set("payment_status", upd.PaymentStatus)
	}
	if upd.FulfillmentStatus != "" {
		q = q.Set("fulfillment_status", upd.FulfillmentStatus)
	}
	if upd.CancelReason != "" {
		q = q.Set("cancel_reason", upd.CancelReason)
	}
	if upd.AdminNote != "" {
		q = q.Set("admin_note", upd.AdminNote)
	}

	query, args := q.MustSql()
	res, err := r.execContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// SetPaymentStatus меняет payment_status у pending-заказов без смены основного статуса.
func (r *orderRepo) SetPaymentStatus(ctx context.Context, ids []string, from, to entities.PaymentStatus) error {
	if len(ids) == 0 {
		return nil
	}
	query, args := r.qb.Update("orders").
		Set("payment_status", to).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": ids, "payment_status": from, "status": entities.OrderStatusPending}).
		MustSql()

	if _, err := r.execContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	return nil
}

// MarkItemStockRestored переключает флаг ровно один раз.
func (r *orderRepo) MarkItemStockRestored(ctx context.Context, itemID string) (bool, error) {
	query, args := r.qb.Update("order_items").
		Set("stock_restored", true).
		Where(sq.Eq{"id": itemID, "stock_restored": false}).
		MustSql()

	res, err := r.execContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to mark item restored: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

func (r *orderRepo) CreatePayments(ctx context.Context, payments []entities.Payment) error {
	if len(payments) == 0 {
		return nil
	}

	q := r.qb.Insert("payments").
		Columns("id", "order_id", "authorization_id", "connected_account_id",
			"application_fee", "amount", "currency", "status")

	for _, p := range payments {
		q = q.Values(p.ID, p.OrderID, p.AuthorizationID, nullString(p.ConnectedAccountID),
			p.ApplicationFee, p.Amount, p.Currency, p.Status)
	}

	query, args := q.MustSql()
	if _, err := r.execContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert payments: %w", err)
	}
	return nil
}

func (r *orderRepo) PaymentsByAuthorization(ctx context.Context, authorizationID string) ([]entities.Payment, error) {
	return r.listPayments(ctx, sq.Eq{"authorization_id": authorizationID})
}

func (r *orderRepo) PaymentsByOrder(ctx context.Context, orderID string) ([]entities.Payment, error) {
	return r.listPayments(ctx, sq.Eq{"order_id": orderID})
}

func (r *orderRepo) listPayments(ctx context.Context, where sq.Eq) ([]entities.Payment, error) {
	query, args := r.qb.Select(paymentColumns...).
		From("payments").
		Where(where).
		OrderBy("created_at", "id").
		MustSql()

	var rows []Payment
	if err := r.selectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select payments: %w", err)
	}

	result := make([]entities.Payment, 0, len(rows))
	for _, p := range rows {
		result = append(result, PaymentToEntity(p))
	}
	return result, nil
}

// UpdatePayments переводит платежи из статусов from в to.
// filter: authorization_id или order_id.
func (r *orderRepo) UpdatePayments(ctx context.Context, filter map[string]any, from []entities.PaymentStatus, to entities.PaymentStatus, refundID string) (int64, error) {
	where := sq.Eq{"status": paymentStrings(from)}
	for k, v := range filter {
		where[k] = v
	}

	q := r.qb.Update("payments").Set("status", to).Where(where)
	if refundID != "" {
		q = q.Set("refund_id", refundID)
	}

	query, args := q.MustSql()
	res, err := r.execContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update payments: %w", err)
	}
	return res.RowsAffected()
}

func statusStrings(statuses []entities.OrderStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func paymentStrings(statuses []entities.PaymentStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
