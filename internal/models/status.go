package models

const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
)

// OrderStatuses lists every status an order may hold, in lifecycle order.
var OrderStatuses = []string{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

func IsValidOrderStatus(status string) bool {
	for _, s := range OrderStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func IsTerminalOrderStatus(status string) bool {
	return status == OrderStatusCompleted || status == OrderStatusCancelled
}

// IsCancellable reports whether an order in status may still be cancelled.
func IsCancellable(status string) bool {
	return status == OrderStatusPending || status == OrderStatusProcessing
}

// CanTransition reports whether an order may move from one status to another.
// Cancellation follows IsCancellable; terminal orders never change.
func CanTransition(from, to string) bool {
	if !IsValidOrderStatus(to) || IsTerminalOrderStatus(from) {
		return false
	}
	if to == OrderStatusCancelled {
		return IsCancellable(from)
	}
	return true
}
