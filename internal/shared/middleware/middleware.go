package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ontology/internal/shared/utils/response"
	"ontology/pkg/logger"
)

const (
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	organizationKey = "organization_id"
)

// RequestID propagates the caller's X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestLogger logs every request once it has been served.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		if len(c.Errors) > 0 {
			log.LogHTTPError(c, c.Errors.Last(), c.Writer.Status())
			return
		}
		log.LogHTTPRequest(c, duration)
	}
}

// OrgScope resolves the :orgId path parameter. Requests with a malformed id
// stop here with 400.
func OrgScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, err := uuid.Parse(c.Param("orgId"))
		if err != nil || orgID == uuid.Nil {
			response.RespondError(c, http.StatusBadRequest, "invalid organization id", err)
			c.Abort()
			return
		}
		c.Set(organizationKey, orgID)
		c.Next()
	}
}

// OrganizationID returns the organization OrgScope resolved.
func OrganizationID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(organizationKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
