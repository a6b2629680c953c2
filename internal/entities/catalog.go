package entities

import (
	"sort"
	"strings"
	"time"
)

type Product struct {
	ID             string
	ShopID         string
	Name           string
	SKU            string
	ImageURL       string
	Price          int64
	Stock          int
	TrackInventory bool
	Active         bool
}

type Shop struct {
	ID                 string
	Name               string
	Email              string
	ConnectedAccountID string
	// CommissionBP переопределяет платформенную комиссию, 0 значит использовать по умолчанию
	CommissionBP int64
}

type ShippingMethod struct {
	ID     string
	ShopID string
	Name   string
	Price  int64
}

// CartOwner идентифицирует корзину: либо пользователь, либо гостевой токен.
type CartOwner struct {
	UserID     string
	GuestToken string
}

func (o CartOwner) IsGuest() bool {
	return o.UserID == ""
}

func (o CartOwner) Key() string {
	if o.UserID != "" {
		return "user:" + o.UserID
	}
	return "guest:" + o.GuestToken
}

func (o CartOwner) Valid() bool {
	return (o.UserID == "") != (o.GuestToken == "")
}

type CartLine struct {
	ID        string
	ProductID string
	Quantity  int
	Variant   map[string]string
	// заполняются при чтении корзины, в строке не хранятся
	UnitPrice   int64
	ProductName string
}

type Cart struct {
	ID         string
	Owner      CartOwner
	TotalItems int
	Subtotal   int64
	Lines      []CartLine
	UpdatedAt  time.Time
}

// VariantKey строит канонический ключ варианта: пары отсортированы по имени.
func VariantKey(variant map[string]string) string {
	if len(variant) == 0 {
		return ""
	}
	keys := make([]string, 0, len(variant))
	for k := range variant {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(variant[k])
	}
	return b.String()
}
