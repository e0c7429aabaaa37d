package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/questland/heimdall/core"
	"github.com/questland/heimdall/ports"
	"github.com/questland/heimdall/service"
)

// Handlers contains the HTTP handlers for the auth and confirmation
// endpoints.
type Handlers struct {
	auth    *service.AuthService
	confirm *service.ConfirmService
	markers ports.MarkerStore
}

// NewHandlers creates the handler set.
func NewHandlers(auth *service.AuthService, confirm *service.ConfirmService, markers ports.MarkerStore) *Handlers {
	return &Handlers{auth: auth, confirm: confirm, markers: markers}
}

// Nonce returns the identity's live challenge, minting one when needed.
func (h *Handlers) Nonce(c *gin.Context) {
	identity := c.Param("identity")

	nonce, err := h.auth.IssueNonce(c.Request.Context(), identity)
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp := gin.H{"nonce": nonce.Value}
	if nonce.VerifiedAt != nil {
		resp["verified_at"] = nonce.VerifiedAt.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

type signRequest struct {
	Identity  string `json:"identity" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// SignUp completes first-time registration.
func (h *Handlers) SignUp(c *gin.Context) {
	var req signRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	token, err := h.auth.SignUp(c.Request.Context(), req.Identity, req.Signature)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token})
}

// SignIn authenticates a registered identity.
func (h *Handlers) SignIn(c *gin.Context) {
	var req signRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	token, err := h.auth.SignIn(c.Request.Context(), req.Identity, req.Signature)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Me returns the authenticated caller's claims.
func (h *Handlers) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"identity": c.GetString(ContextIdentity),
		"role":     c.GetString(ContextRole),
	})
}

type registerConfirmationRequest struct {
	TransactionID string            `json:"transaction_id" binding:"required"`
	Kind          string            `json:"kind" binding:"required"`
	Auxiliary     map[string]string `json:"auxiliary"`
}

// RegisterConfirmation registers a transaction for confirmation polling.
func (h *Handlers) RegisterConfirmation(c *gin.Context) {
	var req registerConfirmationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	aux := req.Auxiliary
	if aux == nil {
		aux = make(map[string]string)
	}
	if aux["identity"] == "" {
		aux["identity"] = c.GetString(ContextIdentity)
	}

	err := h.confirm.Register(c.Request.Context(), req.TransactionID, core.JobKind(req.Kind), aux)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"transaction_id": req.TransactionID})
}

// PendingPurchase reports whether a purchase confirmation is still in flight
// for the caller and resource. This is optimistic-UI state only; the
// authoritative answer is the terminal event.
func (h *Handlers) PendingPurchase(c *gin.Context) {
	identity := c.GetString(ContextIdentity)
	resource := c.Param("resource")

	_, pending, err := h.markers.GetMarker(c.Request.Context(), service.PurchaseMarkerKey(identity, resource))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": pending})
}

// abortWithError maps domain errors to status codes. Authentication failures
// stay opaque: the body never says whether the nonce or the signature was the
// problem.
func abortWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrNonceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, core.ErrNonceExpired),
		errors.Is(err, core.ErrNonceConsumed),
		errors.Is(err, core.ErrClaimExpired),
		errors.Is(err, core.ErrClaimInvalid):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
	case errors.Is(err, core.ErrSignatureInvalid):
		c.JSON(http.StatusForbidden, gin.H{"error": "authentication failed"})
	case errors.Is(err, core.ErrIdentityInvalid), errors.Is(err, core.ErrClaimMalformed):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
	case errors.Is(err, core.ErrIdentityRegistered):
		c.JSON(http.StatusConflict, gin.H{"error": "identity already registered"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
