package repositories

// Document paths shared by the store implementations.

func RestaurantPath(restaurantID string) string {
	return "restaurants/" + restaurantID
}

func MenuPath(restaurantID, menuID string) string {
	return RestaurantPath(restaurantID) + "/menus/" + menuID
}

func OrderPath(restaurantID, orderID string) string {
	return RestaurantPath(restaurantID) + "/orders/" + orderID
}

func PaymentRecordPath(restaurantID, orderID string) string {
	return OrderPath(restaurantID, orderID) + "/system/stripe"
}

// OrderTotalPath addresses the per-day counter; date is formatted YYYYMMDD.
func OrderTotalPath(restaurantID, menuID, date string) string {
	return MenuPath(restaurantID, menuID) + "/orderTotal/" + date
}

func CustomerLogPath(restaurantID, uid string) string {
	return RestaurantPath(restaurantID) + "/userLog/" + uid
}

func PaymentAccountPath(ownerUID string) string {
	return "admins/" + ownerUID + "/public/payment"
}
