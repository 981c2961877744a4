package models

// All lists every persisted model in dependency order.
func All() []any {
	return []any{
		&Product{},
		&InventoryItem{},
		&Order{},
		&OrderItem{},
		&Payment{},
		&Shipment{},
		&ShipmentEvent{},
		&Review{},
		&WithdrawalRequest{},
		&SkinAnalysis{},
		&Notification{},
	}
}
