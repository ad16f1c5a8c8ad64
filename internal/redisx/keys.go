package redisx

import "time"

const (
	// Order document: order:{id} -> JSON PickupOrder
	KeyOrder = "order:%s"

	// Order number lookup: order:number:{n} -> order id
	KeyOrderNumber = "order:number:%d"

	// Shared counter behind order numbers. INCR only; never set from app code.
	KeyOrderCounter = "orders:counter"

	// Master set of all order ids.
	KeyAllOrders = "orders:all"

	// Secondary indices: sets of order ids.
	KeyStatusIndex   = "orders:status:%s"
	KeyLocationIndex = "orders:location:%s"
	KeyPhoneIndex    = "orders:phone:%s"

	// Dedup event processing: dedup:{service}:{id} (id = event_id)
	KeyDedup = "dedup:%s:%s"
)

var TTLDedup = 48 * time.Hour
