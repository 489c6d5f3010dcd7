// mopchan/config/config.go
package config

const (
	AppVersion = "0.9.2"

	// Form & Post Limits
	MaxNameLen    = 75
	MaxSubjectLen = 128
	MaxContentLen = 8000

	// Chat Limits
	MaxChatMessageLen = 1000
	ChatHistorySize   = 50
	// Per-connection outbound buffer. A client that falls this many
	// messages behind is disconnected rather than stalling the room.
	ChatSendBuffer = 32

	// File Upload Limits
	MaxFileSize     = 15 * 1024 * 1024 // 15MB
	MaxWidth        = 8000
	MaxHeight       = 8000
	ThumbnailWidth  = 250
	ThumbnailHeight = 250

	// Rate Limiting Defaults
	DefaultRateLimitEvery  = "30s"
	DefaultRateLimitBurst  = 3
	DefaultRateLimitPrune  = "1h"
	DefaultRateLimitExpire = "24h"

	// Admin session token lifetime
	DefaultTokenTTL = "168h"
)
