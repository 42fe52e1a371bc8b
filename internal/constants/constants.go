package constants

import "time"

const (
	ShutdownTimeout = 30 * time.Second

	ServiceNameConsumer  = "notification-consumer"
	ServiceNamePublisher = "notification-publisher"

	LockCollection   = "message_locks"
	DeviceCollection = "devices"

	CacheKeyPrefixDevices = "devices:"

	// HeaderContentType values the push gateway is known to return.
	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain"
)
