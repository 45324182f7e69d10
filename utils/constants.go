package utils

import (
	"time"
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)

// Campaign execution constants
const (
	// LinkPlaceholder is substituted with each audience row's link when rendering a message
	LinkPlaceholder = "%s"

	// DefaultTestNumber receives test sends when neither the request nor the campaign names one
	DefaultTestNumber = "989024004940"

	// DefaultDisplayTimezone is the zone used when rendering run instants for operators
	DefaultDisplayTimezone = "Asia/Tehran"

	// DefaultWatchdogInterval matches the poll cadence operators are used to (20 seconds)
	DefaultWatchdogInterval = 20 * time.Second

	// MinWatchdogInterval and MaxWatchdogInterval bound the configurable poll interval
	MinWatchdogInterval = 15 * time.Second
	MaxWatchdogInterval = 60 * time.Second

	// DefaultRunListLimit caps dashboard run listings when no limit is requested
	DefaultRunListLimit = 200

	// MaxRunListLimit is the hard upper bound for dashboard run listings
	MaxRunListLimit = 1000

	// DefaultScheduledRunListLimit caps scheduled run listings
	DefaultScheduledRunListLimit = 300

	// AudiencePreviewRows is the number of rows returned as an upload preview
	AudiencePreviewRows = 20
)

// Lock key prefixes
const (
	RunLockPrefix      = "lock:scheduled_run:"
	CampaignLockPrefix = "lock:campaign_run:"
)

// Context keys for request-scoped values
type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	UserAgentKey contextKey = "user_agent"
	IPAddressKey contextKey = "ip_address"
	EndpointKey  contextKey = "endpoint"
)
