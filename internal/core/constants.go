package core

import "time"

// Timeout defaults for archiving operations
const (
	DefaultArchiveTimeout   = 40 * time.Second
	DefaultResourceTimeout  = 10 * time.Second
	DefaultNetworkIdleDelay = 500 * time.Millisecond
	// MaxNetworkIdleWait bounds how long capture waits for the page to go quiet.
	MaxNetworkIdleWait = 15 * time.Second
)

// Resource limits
const (
	MaxResourceSize = 5 * 1024 * 1024 // 5MB
)

// ScreenshotQuality is the JPEG quality of full-page screenshots.
const ScreenshotQuality = 80
