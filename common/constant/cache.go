package constant

import "time"

const (
	EventAvailabilityKey = "event:%d:availability"
	PaymentEmailLock     = "payment:email_lock:%s"
)

const (
	EventAvailabilityTTL       = 30 * time.Second
	PaymentEmailLockDefaultTTL = 10 * time.Second
)
