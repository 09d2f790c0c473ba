package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/seclane/authgate/core"
	"github.com/seclane/authgate/ports"
)

// ResumeGuard creates middleware that runs the resume check before any
// protected handler. Its decision is authoritative; handlers behind it must
// not apply their own fallback heuristics.
func ResumeGuard(factory AuthorityFactory, tokenizer ports.Tokenizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		binding, err := sessionFromRequest(c, tokenizer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid session token"})
			return
		}

		authority := factory(binding.ID, binding.UserID, binding.MFARequired)

		decision, err := authority.ResumeCheck(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Resume check unavailable"})
			return
		}

		if !decision.Allowed() {
			status := http.StatusUnauthorized
			if decision.Outcome == core.OutcomeRejected {
				status = http.StatusForbidden
			}
			c.AbortWithStatusJSON(status, gin.H{
				"error":   "Not authenticated",
				"outcome": decision.Outcome.String(),
				"reason":  decision.Reason.String(),
			})
			return
		}

		c.Set("userID", binding.UserID)
		c.Set("sessionID", binding.ID)

		c.Next()
	}
}

// sessionFromRequest extracts the session binding from the Authorization
// header.
func sessionFromRequest(c *gin.Context, tokenizer ports.Tokenizer) (*core.SessionBinding, error) {
	auth := c.GetHeader("Authorization")

	if len(auth) < 8 || auth[:7] != "Bearer " {
		return nil, core.ErrInvalidToken
	}

	binding, err := tokenizer.TokenToSession(auth[7:])
	if err != nil {
		if errors.Is(err, core.ErrTokenExpired) {
			return nil, core.ErrTokenExpired
		}
		return nil, core.ErrInvalidToken
	}

	return binding, nil
}
