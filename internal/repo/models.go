package repo

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"
)

type Product struct {
	ID             string         `db:"id"`
	ShopID         string         `db:"shop_id"`
	Name           string         `db:"name"`
	SKU            string         `db:"sku"`
	ImageURL       sql.NullString `db:"image_url"`
	Price          int64          `db:"price"`
	Stock          int            `db:"stock"`
	TrackInventory bool           `db:"track_inventory"`
	Active         bool           `db:"active"`
}

type Shop struct {
	ID                 string         `db:"id"`
	Name               string         `db:"name"`
	Email              string         `db:"email"`
	ConnectedAccountID sql.NullString `db:"connected_account_id"`
	CommissionBP       int64          `db:"commission_bp"`
}

type ShippingMethod struct {
	ID     string `db:"id"`
	ShopID string `db:"shop_id"`
	Name   string `db:"name"`
	Price  int64  `db:"price"`
}

type Cart struct {
	ID         string         `db:"id"`
	UserID     sql.NullString `db:"user_id"`
	GuestToken sql.NullString `db:"guest_token"`
	TotalItems int            `db:"total_items"`
	Subtotal   int64          `db:"subtotal"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

type CartLine struct {
	ID          string `db:"id"`
	CartID      string `db:"cart_id"`
	ProductID   string `db:"product_id"`
	Variant     []byte `db:"variant"`
	Quantity    int    `db:"quantity"`
	UnitPrice   int64  `db:"unit_price"`
	ProductName string `db:"product_name"`
}

type Order struct {
	ID                string         `db:"id"`
	Number            string         `db:"number"`
	CheckoutID        string         `db:"checkout_id"`
	ShopID            string         `db:"shop_id"`
	UserID            sql.NullString `db:"user_id"`
	GuestToken        sql.NullString `db:"guest_token"`
	CustomerEmail     string         `db:"customer_email"`
	Subtotal          int64          `db:"subtotal"`
	Discount          int64          `db:"discount"`
	Tax               int64          `db:"tax"`
	Shipping          int64          `db:"shipping"`
	Total             int64          `db:"total"`
	Currency          string         `db:"currency"`
	Status            string         `db:"status"`
	PaymentStatus     string         `db:"payment_status"`
	FulfillmentStatus string         `db:"fulfillment_status"`
	ShippingMethodID  sql.NullString `db:"shipping_method_id"`
	CouponCode        sql.NullString `db:"coupon_code"`
	CancelReason      sql.NullString `db:"cancel_reason"`
	AdminNote         sql.NullString `db:"admin_note"`
	ShippingAddress   []byte         `db:"shipping_address"`
	BillingAddress    []byte         `db:"billing_address"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

type Item struct {
	ID            string         `db:"id"`
	OrderID       string         `db:"order_id"`
	ProductID     string         `db:"product_id"`
	Name          string         `db:"name"`
	SKU           string         `db:"sku"`
	ImageURL      sql.NullString `db:"image_url"`
	Variant       []byte         `db:"variant"`
	UnitPrice     int64          `db:"unit_price"`
	Quantity      int            `db:"quantity"`
	TotalPrice    int64          `db:"total_price"`
	StockRestored bool           `db:"stock_restored"`
}

type Payment struct {
	ID                 string         `db:"id"`
	OrderID            string         `db:"order_id"`
	AuthorizationID    string         `db:"authorization_id"`
	ConnectedAccountID sql.NullString `db:"connected_account_id"`
	ApplicationFee     int64          `db:"application_fee"`
	Amount             int64          `db:"amount"`
	Currency           string         `db:"currency"`
	Status             string         `db:"status"`
	RefundID           sql.NullString `db:"refund_id"`
	CreatedAt          time.Time      `db:"created_at"`
}

type Notification struct {
	ID        string    `db:"id"`
	ShopID    string    `db:"shop_id"`
	Type      string    `db:"type"`
	SubjectID string    `db:"subject_id"`
	Title     string    `db:"title"`
	Body      string    `db:"body"`
	Read      bool      `db:"read"`
	CreatedAt time.Time `db:"created_at"`
}

func ProductToEntity(p Product) entities.Product {
	return entities.Product{
		ID:             p.ID,
		ShopID:         p.ShopID,
		Name:           p.Name,
		SKU:            p.SKU,
		ImageURL:       nullStringToString(p.ImageURL),
		Price:          p.Price,
		Stock:          p.Stock,
		TrackInventory: p.TrackInventory,
		Active:         p.Active,
	}
}

func ShopToEntity(s Shop) entities.Shop {
	return entities.Shop{
		ID:                 s.ID,
		Name:               s.Name,
		Email:              s.Email,
		ConnectedAccountID: nullStringToString(s.ConnectedAccountID),
		CommissionBP:       s.CommissionBP,
	}
}

func CartToEntity(c Cart, lines []CartLine) entities.Cart {
	cart := entities.Cart{
		ID: c.ID,
		Owner: entities.CartOwner{
			UserID:     nullStringToString(c.UserID),
			GuestToken: nullStringToString(c.GuestToken),
		},
		TotalItems: c.TotalItems,
		Subtotal:   c.Subtotal,
		UpdatedAt:  c.UpdatedAt,
	}

	if len(lines) > 0 {
		cart.Lines = make([]entities.CartLine, 0, len(lines))
		for _, l := range lines {
			cart.Lines = append(cart.Lines, entities.CartLine{
				ID:          l.ID,
				ProductID:   l.ProductID,
				Quantity:    l.Quantity,
				Variant:     parseVariant(l.Variant),
				UnitPrice:   l.UnitPrice,
				ProductName: l.ProductName,
			})
		}
	}
	return cart
}

func ItemToEntity(i Item) entities.OrderItem {
	return entities.OrderItem{
		ID:            i.ID,
		OrderID:       i.OrderID,
		ProductID:     i.ProductID,
		Name:          i.Name,
		SKU:           i.SKU,
		ImageURL:      nullStringToString(i.ImageURL),
		Variant:       parseVariant(i.Variant),
		UnitPrice:     i.UnitPrice,
		Quantity:      i.Quantity,
		TotalPrice:    i.TotalPrice,
		StockRestored: i.StockRestored,
	}
}

func OrderToEntity(o Order, items []Item) entities.Order {
	order := entities.Order{
		ID:                o.ID,
		Number:            o.Number,
		CheckoutID:        o.CheckoutID,
		ShopID:            o.ShopID,
		UserID:            nullStringToString(o.UserID),
		GuestToken:        nullStringToString(o.GuestToken),
		CustomerEmail:     o.CustomerEmail,
		Subtotal:          o.Subtotal,
		Discount:          o.Discount,
		Tax:               o.Tax,
		Shipping:          o.Shipping,
		Total:             o.Total,
		Currency:          o.Currency,
		Status:            entities.OrderStatus(o.Status),
		PaymentStatus:     entities.PaymentStatus(o.PaymentStatus),
		FulfillmentStatus: entities.FulfillmentStatus(o.FulfillmentStatus),
		ShippingMethodID:  nullStringToString(o.ShippingMethodID),
		CouponCode:        nullStringToString(o.CouponCode),
		CancelReason:      nullStringToString(o.CancelReason),
		AdminNote:         nullStringToString(o.AdminNote),
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
	// битый снимок адреса не должен ломать чтение заказа
	_ = json.Unmarshal(o.ShippingAddress, &order.ShippingAddress)
	_ = json.Unmarshal(o.BillingAddress, &order.BillingAddress)

	if len(items) > 0 {
		order.Items = make([]entities.OrderItem, 0, len(items))
		for _, it := range items {
			order.Items = append(order.Items, ItemToEntity(it))
		}
	}
	return order
}

func PaymentToEntity(p Payment) entities.Payment {
	return entities.Payment{
		ID:                 p.ID,
		OrderID:            p.OrderID,
		AuthorizationID:    p.AuthorizationID,
		ConnectedAccountID: nullStringToString(p.ConnectedAccountID),
		ApplicationFee:     p.ApplicationFee,
		Amount:             p.Amount,
		Currency:           p.Currency,
		Status:             entities.PaymentStatus(p.Status),
		RefundID:           nullStringToString(p.RefundID),
		CreatedAt:          p.CreatedAt,
	}
}

func NotificationToEntity(n Notification) entities.Notification {
	return entities.Notification{
		ID:        n.ID,
		ShopID:    n.ShopID,
		Type:      entities.EventType(n.Type),
		SubjectID: n.SubjectID,
		Title:     n.Title,
		Body:      n.Body,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}
