package orders

const (
	TopicOrderCreated       = "pickup.order.created"
	TopicOrderStatusChanged = "pickup.order.status_changed"
	TopicOrderExpired       = "pickup.order.expired"
)

// Partition key = order id, so all events for one order stay ordered.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
