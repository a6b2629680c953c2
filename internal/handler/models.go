package handler

import (
	"time"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/service"
)

// AddLineRequest добавление товара в корзину
type AddLineRequest struct {
	ProductID string            `json:"product_id" validate:"required"`
	Quantity  int               `json:"quantity" validate:"required,gte=1,lte=1000"`
	Variant   map[string]string `json:"variant,omitempty" validate:"omitempty,dive,keys,required,endkeys,required"`
}

// UpdateLineRequest новое количество строки корзины
type UpdateLineRequest struct {
	Quantity int `json:"quantity" validate:"required,gte=1,lte=1000"`
}

// MergeRequest перенос гостевой корзины при входе
type MergeRequest struct {
	GuestToken string `json:"guest_token" validate:"required"`
}

// Address адрес доставки или плательщика
type Address struct {
	Name       string `json:"name" validate:"required"`
	Phone      string `json:"phone,omitempty" validate:"omitempty,e164"`
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" validate:"required"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required,iso3166_1_alpha2"`
}

// Coupon купон магазина
type Coupon struct {
	ShopID string `json:"shop_id" validate:"required"`
	Code   string `json:"code" validate:"required"`
}

// CheckoutRequest оформление корзины
type CheckoutRequest struct {
	ShippingMethodID string   `json:"shipping_method_id" validate:"required"`
	Coupons          []Coupon `json:"coupons,omitempty" validate:"dive"`
	Email            string   `json:"email" validate:"required,email"`
	ShippingAddress  Address  `json:"shipping_address" validate:"required"`
	BillingAddress   *Address `json:"billing_address,omitempty"`
}

// PayRequest повторная оплата неоплаченных заказов
type PayRequest struct {
	OrderIDs []string `json:"order_ids" validate:"required,min=1,dive,required"`
}

// ConfirmRequest подтверждение оплаты клиентом после авторизации
type ConfirmRequest struct {
	AuthorizationID string   `json:"authorization_id" validate:"required"`
	OrderIDs        []string `json:"order_ids,omitempty" validate:"dive,required"`
}

// CancelRequest отмена заказа
type CancelRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// StatusRequest перевод заказа по цепочке выполнения
type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=processing shipped delivered"`
}

// CartLine строка корзины
type CartLine struct {
	ID          string            `json:"id"`
	ProductID   string            `json:"product_id"`
	ProductName string            `json:"product_name"`
	Quantity    int               `json:"quantity"`
	UnitPrice   int64             `json:"unit_price"`
	Variant     map[string]string `json:"variant,omitempty"`
}

// Cart корзина покупателя
type Cart struct {
	ID         string     `json:"id,omitempty"`
	TotalItems int        `json:"total_items"`
	Subtotal   int64      `json:"subtotal"`
	Lines      []CartLine `json:"lines"`
}

// OrderItem позиция заказа
type OrderItem struct {
	ID         string            `json:"id"`
	ProductID  string            `json:"product_id"`
	Name       string            `json:"name"`
	SKU        string            `json:"sku,omitempty"`
	ImageURL   string            `json:"image_url,omitempty"`
	Variant    map[string]string `json:"variant,omitempty"`
	UnitPrice  int64             `json:"unit_price"`
	Quantity   int               `json:"quantity"`
	TotalPrice int64             `json:"total_price"`
}

// Order заказ одного магазина
type Order struct {
	ID                string      `json:"id"`
	Number            string      `json:"number"`
	CheckoutID        string      `json:"checkout_id"`
	ShopID            string      `json:"shop_id"`
	Status            string      `json:"status"`
	PaymentStatus     string      `json:"payment_status"`
	FulfillmentStatus string      `json:"fulfillment_status"`
	Subtotal          int64       `json:"subtotal"`
	Discount          int64       `json:"discount"`
	Tax               int64       `json:"tax"`
	Shipping          int64       `json:"shipping"`
	Total             int64       `json:"total"`
	Currency          string      `json:"currency"`
	CouponCode        string      `json:"coupon_code,omitempty"`
	ShippingMethodID  string      `json:"shipping_method_id,omitempty"`
	CancelReason      string      `json:"cancel_reason,omitempty"`
	AdminNote         string      `json:"admin_note,omitempty"`
	ShippingAddress   Address     `json:"shipping_address"`
	BillingAddress    Address     `json:"billing_address"`
	Items             []OrderItem `json:"items"`
	CreatedAt         time.Time   `json:"created_at"`
}

// CheckoutResponse результат оформления или повторной оплаты
type CheckoutResponse struct {
	CheckoutID      string  `json:"checkout_id"`
	AuthorizationID string  `json:"authorization_id,omitempty"`
	ClientSecret    string  `json:"client_secret,omitempty"`
	ChargeMode      string  `json:"charge_mode,omitempty"`
	Amount          int64   `json:"amount"`
	Orders          []Order `json:"orders"`
}

// PaymentErrorResponse заказы созданы, но авторизация не прошла
type PaymentErrorResponse struct {
	Message    string   `json:"message"`
	CheckoutID string   `json:"checkout_id,omitempty"`
	OrderIDs   []string `json:"order_ids"`
}

// OutOfStockResponse товар закончился
type OutOfStockResponse struct {
	Message   string `json:"message"`
	ProductID string `json:"product_id"`
}

// SettleResponse результат подтверждения оплаты
type SettleResponse struct {
	AuthorizationID string  `json:"authorization_id"`
	Confirmed       int     `json:"confirmed"`
	Orders          []Order `json:"orders"`
}

// Notification уведомление продавца
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	SubjectID string    `json:"subject_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// PaymentEvent сообщение топика payment-events
type PaymentEvent struct {
	Type            string   `json:"type" validate:"required,oneof=payment_intent.succeeded payment_intent.payment_failed"`
	AuthorizationID string   `json:"authorization_id" validate:"required"`
	OrderIDs        []string `json:"order_ids,omitempty"`
}

func AddressJSONToEntity(a Address) entities.Address {
	return entities.Address{
		Name:       a.Name,
		Phone:      a.Phone,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		Region:     a.Region,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

func AddressEntityToJSON(a entities.Address) Address {
	return Address{
		Name:       a.Name,
		Phone:      a.Phone,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		Region:     a.Region,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

func CheckoutJSONToRequest(r CheckoutRequest) service.CheckoutRequest {
	coupons := make([]service.CouponRequest, 0, len(r.Coupons))
	for _, c := range r.Coupons {
		coupons = append(coupons, service.CouponRequest{ShopID: c.ShopID, Code: c.Code})
	}

	shipping := AddressJSONToEntity(r.ShippingAddress)
	billing := shipping
	if r.BillingAddress != nil {
		billing = AddressJSONToEntity(*r.BillingAddress)
	}

	return service.CheckoutRequest{
		ShippingMethodID: r.ShippingMethodID,
		Coupons:          coupons,
		Email:            r.Email,
		ShippingAddress:  shipping,
		BillingAddress:   billing,
	}
}

func CartEntityToJSON(c entities.Cart) Cart {
	lines := make([]CartLine, 0, len(c.Lines))
	for _, l := range c.Lines {
		lines = append(lines, CartLine{
			ID:          l.ID,
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Variant:     l.Variant,
		})
	}
	return Cart{
		ID:         c.ID,
		TotalItems: c.TotalItems,
		Subtotal:   c.Subtotal,
		Lines:      lines,
	}
}

func ItemEntityToJSON(i entities.OrderItem) OrderItem {
	return OrderItem{
		ID:         i.ID,
		ProductID:  i.ProductID,
		Name:       i.Name,
		SKU:        i.SKU,
		ImageURL:   i.ImageURL,
		Variant:    i.Variant,
		UnitPrice:  i.UnitPrice,
		Quantity:   i.Quantity,
		TotalPrice: i.TotalPrice,
	}
}

func OrderEntityToJSON(o entities.Order) Order {
	items := make([]OrderItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, ItemEntityToJSON(it))
	}

	return Order{
		ID:                o.ID,
		Number:            o.Number,
		CheckoutID:        o.CheckoutID,
		ShopID:            o.ShopID,
		Status:            string(o.Status),
		PaymentStatus:     string(o.PaymentStatus),
		FulfillmentStatus: string(o.FulfillmentStatus),
		Subtotal:          o.Subtotal,
		Discount:          o.Discount,
		Tax:               o.Tax,
		Shipping:          o.Shipping,
		Total:             o.Total,
		Currency:          o.Currency,
		CouponCode:        o.CouponCode,
		ShippingMethodID:  o.ShippingMethodID,
		CancelReason:      o.CancelReason,
		AdminNote:         o.AdminNote,
		ShippingAddress:   AddressEntityToJSON(o.ShippingAddress),
		BillingAddress:    AddressEntityToJSON(o.BillingAddress),
		Items:             items,
		CreatedAt:         o.CreatedAt,
	}
}

func OrdersEntityToJSON(orders []entities.Order) []Order {
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, OrderEntityToJSON(o))
	}
	return out
}

func CheckoutResultToJSON(r service.CheckoutResult) CheckoutResponse {
	return CheckoutResponse{
		CheckoutID:      r.CheckoutID,
		AuthorizationID: r.AuthorizationID,
		ClientSecret:    r.ClientSecret,
		ChargeMode:      string(r.Mode),
		Amount:          r.Amount,
		Orders:          OrdersEntityToJSON(r.Orders),
	}
}

func NotificationEntityToJSON(n entities.Notification) Notification {
	return Notification{
		ID:        n.ID,
		Type:      string(n.Type),
		SubjectID: n.SubjectID,
		Title:     n.Title,
		Body:      n.Body,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}
