package constants

import (
	"time"
)

// Redis cache keys and TTL values.
// Pattern: ontology:{module}:{operation}:{identifier}

// ================== CACHE TTL DURATIONS ==================

const (
	TTL_SEMI_STATIC_SHORT = 1 * time.Hour    // 1 hour - for finished run rows
	TTL_DYNAMIC_MEDIUM    = 10 * time.Minute // 10 minutes - for latest analytics
	TTL_REALTIME_SHORT    = 30 * time.Second // 30 seconds - for in-flight runs
)

// ================== REDIS KEY PREFIXES ==================

const (
	CACHE_PREFIX = "ontology"
)

// ================== ANALYTICS MODULE ==================

const (
	CACHE_KEY_ANALYTICS_LATEST = CACHE_PREFIX + ":analytics:latest:org:" // + org-id
	CACHE_KEY_ANALYTICS_RUN    = CACHE_PREFIX + ":analytics:run:org:"    // + org-id:run:run-id
)

const (
	TTL_ANALYTICS_LATEST  = TTL_DYNAMIC_MEDIUM    // 10 minutes
	TTL_ANALYTICS_RUN     = TTL_SEMI_STATIC_SHORT // 1 hour
	TTL_ANALYTICS_RUNNING = TTL_REALTIME_SHORT    // 30 seconds

	TTL_ANALYTICS_RUN_LOCK = 15 * time.Minute // upper bound on one pipeline run
)

// ================== RUN LOCK ==================

const (
	CACHE_KEY_ANALYTICS_RUN_LOCK = CACHE_PREFIX + ":lock:analytics:org:" // + org-id
)

// ================== RATE LIMIT MODULE ==================

const (
	CACHE_KEY_RATE_LIMIT = CACHE_PREFIX + ":ratelimit:" // + type:client
)

// ================== CACHE INVALIDATION PATTERNS ==================

// ================== HELPER FUNCTIONS ==================

func BuildAnalyticsLatestKey(orgID string) string {
	return CACHE_KEY_ANALYTICS_LATEST + orgID
}

func BuildAnalyticsRunKey(orgID, runID string) string {
	return CACHE_KEY_ANALYTICS_RUN + orgID + ":run:" + runID
}

func BuildAnalyticsRunLockKey(orgID string) string {
	return CACHE_KEY_ANALYTICS_RUN_LOCK + orgID
}

func BuildAnalyticsOrgPattern(orgID string) string {
	return CACHE_PREFIX + ":analytics:*:org:" + orgID + "*"
}
