package http

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/questland/heimdall/adapters/secrets"
	"github.com/questland/heimdall/adapters/store"
	"github.com/questland/heimdall/core"
	"github.com/questland/heimdall/internal/sol"
	"github.com/questland/heimdall/ports"
	"github.com/questland/heimdall/service"
)

type acceptingQueue struct {
	enqueued int
}

func (q *acceptingQueue) Enqueue(ctx context.Context, job *core.ConfirmationJob, delay time.Duration) error {
	q.enqueued++
	return nil
}

type idleLedger struct{}

func (idleLedger) GetTransaction(ctx context.Context, transactionID, commitment string) (*ports.TransactionStatus, error) {
	return nil, nil
}

type discardPublisher struct{}

func (discardPublisher) PublishConfirmed(ctx context.Context, event core.TransactionEvent) error {
	return nil
}
func (discardPublisher) PublishFailed(ctx context.Context, event core.TransactionEvent) error {
	return nil
}
func (discardPublisher) PublishSkipped(ctx context.Context, event core.TransactionEvent) error {
	return nil
}

type testServer struct {
	router *gin.Engine
	queue  *acceptingQueue
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	serverKey, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	st := store.NewMemoryStore()
	keys := secrets.NewEnvKeypairSource(serverKey.PublicKey().String(), hex.EncodeToString(serverKey))
	auth := service.NewAuthService(st, keys, zap.NewNop(), service.AuthConfig{})

	queue := &acceptingQueue{}
	confirm := service.NewConfirmService(queue, idleLedger{}, discardPublisher{}, st, zap.NewNop(), service.ConfirmConfig{})

	return &testServer{router: SetupRouter(auth, confirm, st), queue: queue}
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// signUp walks the whole challenge-response round trip and returns the bearer
// token.
func (s *testServer) signUp(t *testing.T, identity, secretHex string) string {
	t.Helper()

	rec := s.do(http.MethodGet, "/auth/nonce/"+identity, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	nonce, _ := decodeBody(t, rec)["nonce"].(string)
	require.NotEmpty(t, nonce)

	sig, err := sol.Sign(nonce, secretHex)
	require.NoError(t, err)

	rec = s.do(http.MethodPost, "/auth/sign-up", "", gin.H{"identity": identity, "signature": sig})
	require.Equal(t, http.StatusCreated, rec.Code)
	token, _ := decodeBody(t, rec)["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func newWallet(t *testing.T) (string, string) {
	t.Helper()
	priv, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return priv.PublicKey().String(), hex.EncodeToString(priv)
}

func TestSignUpAndMe(t *testing.T) {
	srv := newTestServer(t)
	identity, secretHex := newWallet(t)

	token := srv.signUp(t, identity, secretHex)

	rec := srv.do(http.MethodGet, "/api/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, identity, body["identity"])
	assert.Equal(t, "user", body["role"])
}

func TestNonceRejectsInvalidIdentity(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodGet, "/auth/nonce/not-a-key!!", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignUpTwiceConflicts(t *testing.T) {
	srv := newTestServer(t)
	identity, secretHex := newWallet(t)

	srv.signUp(t, identity, secretHex)

	rec := srv.do(http.MethodGet, "/auth/nonce/"+identity, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	nonce, _ := body["nonce"].(string)
	assert.NotEmpty(t, body["verified_at"])

	sig, err := sol.Sign(nonce, secretHex)
	require.NoError(t, err)

	rec = srv.do(http.MethodPost, "/auth/sign-up", "", gin.H{"identity": identity, "signature": sig})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSignInAfterSignUp(t *testing.T) {
	srv := newTestServer(t)
	identity, secretHex := newWallet(t)

	srv.signUp(t, identity, secretHex)

	rec := srv.do(http.MethodGet, "/auth/nonce/"+identity, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	nonce, _ := decodeBody(t, rec)["nonce"].(string)

	sig, err := sol.Sign(nonce, secretHex)
	require.NoError(t, err)

	rec = srv.do(http.MethodPost, "/auth/sign-in", "", gin.H{"identity": identity, "signature": sig})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decodeBody(t, rec)["token"])
}

func TestSignUpBadSignatureForbidden(t *testing.T) {
	srv := newTestServer(t)
	identity, _ := newWallet(t)

	rec := srv.do(http.MethodGet, "/auth/nonce/"+identity, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(http.MethodPost, "/auth/sign-up", "", gin.H{"identity": identity, "signature": "deadbeef"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSignUpWithoutNonce(t *testing.T) {
	srv := newTestServer(t)
	identity, _ := newWallet(t)

	rec := srv.do(http.MethodPost, "/auth/sign-up", "", gin.H{"identity": identity, "signature": "deadbeef"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Basic abc")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegisterConfirmationAndPendingPurchase(t *testing.T) {
	srv := newTestServer(t)
	identity, secretHex := newWallet(t)
	token := srv.signUp(t, identity, secretHex)

	rec := srv.do(http.MethodPost, "/api/confirmations", token, gin.H{
		"transaction_id": "tx-77",
		"kind":           "payment",
		"auxiliary":      gin.H{"resource": "sword"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, srv.queue.enqueued)

	// The marker is keyed by the authenticated identity, filled in from the
	// claim, so the caller cannot spoof someone else's pending state.
	rec = srv.do(http.MethodGet, "/api/purchases/sword/pending", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["pending"])

	rec = srv.do(http.MethodGet, "/api/purchases/shield/pending", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["pending"])
}

func TestRegisterConfirmationValidatesBody(t *testing.T) {
	srv := newTestServer(t)
	identity, secretHex := newWallet(t)
	token := srv.signUp(t, identity, secretHex)

	rec := srv.do(http.MethodPost, "/api/confirmations", token, gin.H{"kind": "payment"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConcurrentSignUpsAreIndependent(t *testing.T) {
	srv := newTestServer(t)

	for i := 0; i < 3; i++ {
		identity, secretHex := newWallet(t)
		token := srv.signUp(t, identity, secretHex)

		rec := srv.do(http.MethodGet, "/api/me", token, nil)
		require.Equal(t, http.StatusOK, rec.Code, fmt.Sprintf("wallet %d", i))
		assert.Equal(t, identity, decodeBody(t, rec)["identity"])
	}
}
