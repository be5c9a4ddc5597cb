package app

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/night131rd/referensiku.ai-sub000/app/models"

	"github.com/gin-gonic/gin"
)

func signPayload(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func newWebhookRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/payment/notification", PaymentWebhook)
	return r
}

func postWebhook(t *testing.T, r *gin.Engine, payload map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/payment/notification", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func setWebhookEnv(t *testing.T, serverKey string) {
	t.Helper()
	t.Setenv("SEARCH_BACKEND_URL", "http://backend.invalid")
	t.Setenv("PAYMENT_SERVER_KEY", serverKey)
}

func TestVerifySignature(t *testing.T) {
	note := models.PaymentNotification{
		OrderID:      "user:abc:123",
		StatusCode:   "200",
		GrossAmount:  "15000",
		SignatureKey: signPayload("user:abc:123", "200", "15000", "S"),
	}
	if !verifySignature(note, "S") {
		t.Fatal("valid signature rejected")
	}

	mutated := note
	mutated.SignatureKey = "0" + mutated.SignatureKey[1:]
	if mutated.SignatureKey != note.SignatureKey && verifySignature(mutated, "S") {
		t.Fatal("mutated signature accepted")
	}
	if verifySignature(note, "wrong-key") {
		t.Fatal("signature accepted under wrong server key")
	}
}

func TestWebhookMissingFields(t *testing.T) {
	setWebhookEnv(t, "S")
	ms := newMemStore()
	withMemStore(t, ms)
	r := newWebhookRouter()

	w := postWebhook(t, r, map[string]any{
		"order_id":           "user:abc:123",
		"transaction_status": "settlement",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if len(ms.txs) != 0 {
		t.Fatal("transaction persisted despite missing fields")
	}
}

func TestWebhookBadSignature(t *testing.T) {
	setWebhookEnv(t, "S")
	ms := newMemStore()
	withMemStore(t, ms)
	r := newWebhookRouter()

	w := postWebhook(t, r, map[string]any{
		"order_id":           "user:abc:123",
		"transaction_status": "settlement",
		"status_code":        "200",
		"gross_amount":       "15000",
		"signature_key":      "deadbeef",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if len(ms.txs) != 0 || ms.roleMutations != 0 {
		t.Fatal("side effects despite signature mismatch")
	}
}

func TestWebhookSettlementGrantsPremium(t *testing.T) {
	setWebhookEnv(t, "S")
	ms := newMemStore()
	withMemStore(t, ms)
	if _, err := ms.GetQuota(context.Background(), models.Authenticated("abc")); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	r := newWebhookRouter()

	orderID := "user:abc:123"
	payload := map[string]any{
		"order_id":           orderID,
		"transaction_status": models.TxSettlement,
		"status_code":        "200",
		"gross_amount":       "15000",
		"payment_type":       "qris",
		"signature_key":      signPayload(orderID, "200", "15000", "S"),
	}

	w := postWebhook(t, r, payload)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	tx, ok := ms.txs[orderID]
	if !ok {
		t.Fatal("transaction not persisted")
	}
	if tx.TransactionStatus != models.TxSettlement {
		t.Fatalf("persisted status = %q", tx.TransactionStatus)
	}
	rec, _ := ms.GetQuota(context.Background(), models.Authenticated("abc"))
	if rec.Role != models.RolePremium {
		t.Fatalf("role = %q, want premium", rec.Role)
	}

	// Replays are acknowledged and leave the state unchanged.
	before := ms.roleMutations
	w = postWebhook(t, r, payload)
	if w.Code != http.StatusOK {
		t.Fatalf("replay status = %d", w.Code)
	}
	if len(ms.txs) != 1 {
		t.Fatalf("tx rows = %d, want 1", len(ms.txs))
	}
	if ms.roleMutations != before {
		t.Fatal("replay mutated role again")
	}
	rec, _ = ms.GetQuota(context.Background(), models.Authenticated("abc"))
	if rec.Role != models.RolePremium {
		t.Fatal("replay changed role")
	}
}

// Gateways send gross_amount as a JSON number on some channels. The signature
// is computed over its string form either way.
func TestWebhookNumericGrossAmount(t *testing.T) {
	setWebhookEnv(t, "S")
	ms := newMemStore()
	withMemStore(t, ms)
	if _, err := ms.GetQuota(context.Background(), models.Authenticated("abc")); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	r := newWebhookRouter()

	orderID := "user:abc:456"
	w := postWebhook(t, r, map[string]any{
		"order_id":           orderID,
		"transaction_status": models.TxCapture,
		"status_code":        200,
		"gross_amount":       15000,
		"signature_key":      signPayload(orderID, "200", "15000", "S"),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	rec, _ := ms.GetQuota(context.Background(), models.Authenticated("abc"))
	if rec.Role != models.RolePremium {
		t.Fatalf("role = %q, want premium", rec.Role)
	}
}

func TestWebhookPendingPersistsOnly(t *testing.T) {
	setWebhookEnv(t, "S")
	ms := newMemStore()
	withMemStore(t, ms)
	if _, err := ms.GetQuota(context.Background(), models.Authenticated("abc")); err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	r := newWebhookRouter()

	orderID := "user:abc:789"
	w := postWebhook(t, r, map[string]any{
		"order_id":           orderID,
		"transaction_status": models.TxPending,
		"status_code":        "201",
		"gross_amount":       "15000",
		"signature_key":      signPayload(orderID, "201", "15000", "S"),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if _, ok := ms.txs[orderID]; !ok {
		t.Fatal("pending transaction not persisted")
	}
	rec, _ := ms.GetQuota(context.Background(), models.Authenticated("abc"))
	if rec.Role != models.RoleFree {
		t.Fatalf("role = %q, pending must not upgrade", rec.Role)
	}
}

func TestWebhookSettlementUnknownOwnerRetries(t *testing.T) {
	setWebhookEnv(t, "S")
	ms := newMemStore()
	withMemStore(t, ms)
	r := newWebhookRouter()

	// Valid signature over an order id whose owner has no profile row; the
	// gateway should retry once the profile exists.
	orderID := "user:ghost:123"
	w := postWebhook(t, r, map[string]any{
		"order_id":           orderID,
		"transaction_status": models.TxSettlement,
		"status_code":        "200",
		"gross_amount":       "15000",
		"signature_key":      signPayload(orderID, "200", "15000", "S"),
	})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if _, ok := ms.txs[orderID]; !ok {
		t.Fatal("transaction should persist before the role update is attempted")
	}
}

func TestCreatePaymentRequiresAuth(t *testing.T) {
	setWebhookEnv(t, "S")
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/payment/create", CreatePayment)

	req := httptest.NewRequest(http.MethodPost, "/api/payment/create", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}
