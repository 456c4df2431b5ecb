// Read-only inspection handlers. Operators query the effective policy of a
// group and its restriction history; writes happen only through the chat
// platform's admin commands.
package httpops

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/osokin/go-group-warden/internal/policy"
	"github.com/osokin/go-group-warden/internal/repo"
	"github.com/osokin/go-group-warden/internal/utils"
)

// Error codes returned by the inspection API.
const (
	codeBadRequest = "bad_request"
	codeInternal   = "internal_error"
)

const (
	defaultRestrictionLimit = 50
	maxRestrictionLimit     = 200
)

// ErrorResponse is the error envelope returned by every endpoint.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// fail aborts the request with a structured error, logging server errors.
func fail(c *gin.Context, status int, code, msg string) {
	reqID := c.Writer.Header().Get(requestIDHeader)
	if status >= http.StatusInternalServerError {
		log.Error().Str("request_id", reqID).Str("code", code).Msg(msg)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{RequestID: reqID, Code: code, Message: msg})
}

// getPolicy handles GET /api/v1/groups/:id/policy.
func getPolicy(policies *policy.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		groupID, ok := utils.ParseInt64(c.Param("id"))
		if !ok {
			fail(c, http.StatusBadRequest, codeBadRequest, "group id must be an integer")
			return
		}
		pol, err := policies.Get(c.Request.Context(), groupID)
		if err != nil {
			fail(c, http.StatusInternalServerError, codeInternal, "loading policy failed")
			return
		}
		c.JSON(http.StatusOK, pol)
	}
}

// listRestrictions handles GET /api/v1/groups/:id/restrictions?limit=N.
func listRestrictions(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		groupID, ok := utils.ParseInt64(c.Param("id"))
		if !ok {
			fail(c, http.StatusBadRequest, codeBadRequest, "group id must be an integer")
			return
		}
		limit := utils.ClampLimit(
			utils.AtoiDefault(c.Query("limit"), defaultRestrictionLimit),
			defaultRestrictionLimit, maxRestrictionLimit)

		recs, err := repo.ListRestrictions(c.Request.Context(), db, groupID, limit)
		if err != nil {
			fail(c, http.StatusInternalServerError, codeInternal, "listing restrictions failed")
			return
		}
		c.JSON(http.StatusOK, gin.H{"restrictions": recs, "count": len(recs)})
	}
}
