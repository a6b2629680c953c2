package entities

type CouponItem struct {
	ProductID string
	Quantity  int
	UnitPrice int64
}

type CouponResult struct {
	Valid          bool
	DiscountAmount int64
	DiscountType   string
	Reason         string
}
