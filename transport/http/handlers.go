package http

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/seclane/authgate/core"
	"github.com/seclane/authgate/ports"
	"github.com/seclane/authgate/service"
)

// AuthorityFactory builds the Authority bound to one session and user.
// Callers supply it so the handler layer stays ignorant of which tier
// backends are in play.
type AuthorityFactory func(sessionID, userID string, mfaRequired bool) *service.Authority

// AuthHandlers contains HTTP handlers for the session authority endpoints.
type AuthHandlers struct {
	newAuthority AuthorityFactory
	tokenizer    ports.Tokenizer

	// dropSession destroys a session's ephemeral tier. May be nil.
	dropSession func(sessionID string)

	// upstreamKey authenticates the identity layer calling Login. Empty
	// means the endpoint trusts the network, for deployments where it is
	// not reachable from outside.
	upstreamKey string

	// bindingTTL bounds how long a session token identifies its session.
	bindingTTL time.Duration
}

// NewAuthHandlers creates new auth handlers.
func NewAuthHandlers(factory AuthorityFactory, tokenizer ports.Tokenizer, dropSession func(string), upstreamKey string) *AuthHandlers {
	return &AuthHandlers{
		newAuthority: factory,
		tokenizer:    tokenizer,
		dropSession:  dropSession,
		upstreamKey:  upstreamKey,
		bindingTTL:   24 * time.Hour,
	}
}

// Login records a credential validation performed by the upstream identity
// layer and, when a second factor is enrolled, issues the challenge markers.
// It never grants access by itself. The caller asserts who the user is and
// whether a second factor is enrolled, so it must be the trusted identity
// layer: when an upstream key is configured, callers have to present it.
func (h *AuthHandlers) Login(c *gin.Context) {
	if h.upstreamKey != "" {
		presented := c.GetHeader("X-Upstream-Key")
		if subtle.ConstantTimeCompare([]byte(presented), []byte(h.upstreamKey)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid upstream key"})
			return
		}
	}

	var req struct {
		UserID      string `json:"user_id" binding:"required"`
		MFARequired *bool  `json:"mfa_required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	// Absent means enrolled; skipping the second factor must be explicit.
	mfaRequired := true
	if req.MFARequired != nil {
		mfaRequired = *req.MFARequired
	}

	sessionID := uuid.New().String()
	authority := h.newAuthority(sessionID, req.UserID, mfaRequired)

	if err := authority.BeginLogin(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to begin login"})
		return
	}

	if mfaRequired {
		if err := authority.RequireMFA(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue challenge"})
			return
		}
	}

	now := time.Now()
	binding := &core.SessionBinding{
		ID:          sessionID,
		UserID:      req.UserID,
		MFARequired: mfaRequired,
		IssuedAt:    now,
		ExpiresAt:   now.Add(h.bindingTTL),
	}

	token, err := h.tokenizer.SessionToToken(binding)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_token": token,
		"mfa_required":  mfaRequired,
	})
}

// CompleteMFA submits a second-factor code for the caller's session.
func (h *AuthHandlers) CompleteMFA(c *gin.Context) {
	binding, ok := h.binding(c)
	if !ok {
		return
	}

	var req struct {
		Code string `json:"code" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	authority := h.newAuthority(binding.ID, binding.UserID, binding.MFARequired)

	decision, err := authority.CompleteMFA(c.Request.Context(), req.Code)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Verification unavailable"})
		return
	}

	switch {
	case decision.Allowed():
		c.JSON(http.StatusOK, gin.H{"authenticated": true})
	case decision.Reason == core.ReasonChallengeFailed:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid code"})
	default:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "No active challenge"})
	}
}

// CancelMFA abandons the caller's pending challenge.
func (h *AuthHandlers) CancelMFA(c *gin.Context) {
	binding, ok := h.binding(c)
	if !ok {
		return
	}

	authority := h.newAuthority(binding.ID, binding.UserID, binding.MFARequired)

	if _, err := authority.CancelMFA(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel challenge"})
		return
	}

	if h.dropSession != nil {
		h.dropSession(binding.ID)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Challenge canceled"})
}

// Logout clears the caller's markers in both tiers. Idempotent.
func (h *AuthHandlers) Logout(c *gin.Context) {
	binding, ok := h.binding(c)
	if !ok {
		return
	}

	authority := h.newAuthority(binding.ID, binding.UserID, binding.MFARequired)

	if err := authority.Logout(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to logout"})
		return
	}

	if h.dropSession != nil {
		h.dropSession(binding.ID)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Resume runs the resume check for the caller's session and reports the
// decision. The guard middleware is the enforcement point; this endpoint
// lets clients learn their state after a restart.
func (h *AuthHandlers) Resume(c *gin.Context) {
	binding, ok := h.binding(c)
	if !ok {
		return
	}

	authority := h.newAuthority(binding.ID, binding.UserID, binding.MFARequired)

	decision, err := authority.ResumeCheck(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Resume check unavailable"})
		return
	}

	status := http.StatusOK
	switch decision.Outcome {
	case core.OutcomeRejected:
		status = http.StatusForbidden
	case core.OutcomeUnauthenticated:
		status = http.StatusUnauthorized
	}

	c.JSON(status, gin.H{
		"authenticated": decision.Allowed(),
		"outcome":       decision.Outcome.String(),
		"reason":        decision.Reason.String(),
	})
}

// Me returns information about the authenticated user.
func (h *AuthHandlers) Me(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "User not found in context"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id": userID,
	})
}

// Authorize reports that the caller passed the resume guard.
func (h *AuthHandlers) Authorize(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "User not found in context"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authorized": true,
		"user_id":    userID,
	})
}

// binding extracts and verifies the session binding from the request. On
// failure it writes the error response and returns ok=false.
func (h *AuthHandlers) binding(c *gin.Context) (*core.SessionBinding, bool) {
	binding, err := sessionFromRequest(c, h.tokenizer)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid session token"})
		return nil, false
	}
	return binding, true
}
