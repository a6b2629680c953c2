package entities

import (
	"bytes"
	"encoding/gob"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled || s == OrderStatusRefunded
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

type FulfillmentStatus string

const (
	FulfillmentUnfulfilled FulfillmentStatus = "unfulfilled"
	FulfillmentFulfilled   FulfillmentStatus = "fulfilled"
)

type Address struct {
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type OrderItem struct {
	ID            string
	OrderID       string
	ProductID     string
	Name          string
	SKU           string
	ImageURL      string
	Variant       map[string]string
	UnitPrice     int64
	Quantity      int
	TotalPrice    int64
	StockRestored bool
}

type Order struct {
	ID                string
	Number            string
	CheckoutID        string
	ShopID            string
	UserID            string
	GuestToken        string
	CustomerEmail     string
	Subtotal          int64
	Discount          int64
	Tax               int64
	Shipping          int64
	Total             int64
	Currency          string
	Status            OrderStatus
	PaymentStatus     PaymentStatus
	FulfillmentStatus FulfillmentStatus
	ShippingMethodID  string
	CouponCode        string
	CancelReason      string
	AdminNote         string
	CreatedAt         time.Time
	UpdatedAt         time.Time

	// адреса копируются при создании заказа и больше не пересчитываются
	ShippingAddress Address
	BillingAddress  Address
	Items           []OrderItem
}

// ItemsTotal суммирует TotalPrice позиций.
func (o Order) ItemsTotal() int64 {
	var sum int64
	for _, it := range o.Items {
		sum += it.TotalPrice
	}
	return sum
}

// Balanced проверяет инвариант total = Σitems − discount + tax + shipping.
func (o Order) Balanced() bool {
	if o.Subtotal < 0 || o.Discount < 0 || o.Tax < 0 || o.Shipping < 0 || o.Total < 0 {
		return false
	}
	return o.Total == o.ItemsTotal()-o.Discount+o.Tax+o.Shipping
}

type Payment struct {
	ID                 string
	OrderID            string
	AuthorizationID    string
	ConnectedAccountID string
	ApplicationFee     int64
	Amount             int64
	Currency           string
	Status             PaymentStatus
	RefundID           string
	CreatedAt          time.Time
}

// OwnedBy сообщает, создан ли заказ из корзины этого владельца.
func (o Order) OwnedBy(owner CartOwner) bool {
	if owner.UserID != "" {
		return o.UserID == owner.UserID
	}
	return owner.GuestToken != "" && o.GuestToken == owner.GuestToken
}

func (o *Order) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(o); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (o *Order) Unmarshal(data []byte) error {
	buf := bytes.NewBuffer(data)
	dec := gob.NewDecoder(buf)
	if err := dec.Decode(o); err != nil {
		return ErrInvalidOrder
	}
	return nil
}

func init() {
	gob.Register(Order{})
	gob.Register(OrderItem{})
	gob.Register(Address{})
}

// OrderUpdate изменение заказа при переходе статуса; пустые поля не трогаются.
type OrderUpdate struct {
	Status        OrderStatus
	PaymentStatus PaymentStatus
	// PaymentFrom дополнительное условие: текущий payment_status заказа должен входить в список
	PaymentFrom       []PaymentStatus
	FulfillmentStatus FulfillmentStatus
	CancelReason      string
	AdminNote         string
}
