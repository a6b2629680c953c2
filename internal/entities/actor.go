package entities

type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleAdmin    Role = "admin"
)

// Actor уже аутентифицированный инициатор операции.
type Actor struct {
	Role       Role
	UserID     string
	GuestToken string
	ShopID     string
	Email      string
}

func (a Actor) Owner() CartOwner {
	if a.UserID != "" {
		return CartOwner{UserID: a.UserID}
	}
	return CartOwner{GuestToken: a.GuestToken}
}

// CanManageShop: вендор только свой магазин, админ любой.
func (a Actor) CanManageShop(shopID string) bool {
	switch a.Role {
	case RoleAdmin:
		return true
	case RoleVendor:
		return a.ShopID != "" && a.ShopID == shopID
	default:
		return false
	}
}
