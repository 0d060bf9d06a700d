package server

import "time"

// Rate limiting for inbound WebSocket commands.
const (
	RateLimitMessages = 10
	RateLimitWindow   = 10 * time.Second
)

// Preview thumbnails are bounded to this width; height scales with aspect.
const PreviewMaxWidth = 640
