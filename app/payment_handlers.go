package app

import (
	"bytes"
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/night131rd/referensiku.ai-sub000/app/config"
	"github.com/night131rd/referensiku.ai-sub000/app/models"
	"github.com/night131rd/referensiku.ai-sub000/auth"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// Gateway create calls get a hard deadline; past it the user is told to retry
// rather than left hanging.
const paymentCreateTimeout = 30 * time.Second

var paymentc = &http.Client{Timeout: paymentCreateTimeout}

type createPaymentRequest struct {
	Description string `json:"description"`
}

// CreatePayment starts a gateway transaction for the authenticated user.
func CreatePayment(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok || claims.Subject == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil || cfg.Payment.GatewayURL == "" {
		log.Error().Err(err).Msg("payment create: gateway not configured")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "payment service not configured"})
		return
	}

	var req createPaymentRequest
	// Body is optional; the default description covers the empty case.
	_ = c.ShouldBindJSON(&req)
	description := req.Description
	if description == "" {
		description = cfg.Payment.Description
	}

	intent := models.PaymentIntent{
		OrderID:     EncodeOrderID(claims.Subject, time.Now()),
		Description: description,
		UserID:      claims.Subject,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), paymentCreateTimeout)
	defer cancel()

	resp, err := postPaymentCreate(ctx, cfg.Payment.GatewayURL, intent)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
			log.Warn().Str("order_id", intent.OrderID).Msg("payment create timed out")
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "payment service timeout, please try again"})
			return
		}
		log.Error().Str("order_id", intent.OrderID).Err(err).Msg("payment create failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to contact payment gateway"})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func postPaymentCreate(ctx context.Context, gatewayURL string, intent models.PaymentIntent) (models.PaymentIntentResponse, error) {
	body, err := json.Marshal(intent)
	if err != nil {
		return models.PaymentIntentResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, gatewayURL+"/payment/create", bytes.NewReader(body))
	if err != nil {
		return models.PaymentIntentResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := paymentc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return models.PaymentIntentResponse{}, ErrTimeout
		}
		return models.PaymentIntentResponse{}, errors.Join(ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.PaymentIntentResponse{}, errors.Join(ErrUpstream, errors.New(resp.Status))
	}

	var out models.PaymentIntentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.PaymentIntentResponse{}, err
	}
	return out, nil
}

// PaymentWebhook handles server-to-server payment notifications.
//
// Every rejection maps to what the gateway should do next: 4xx for payloads
// no retry can fix (missing fields, bad signature), 5xx for transient local
// failures where a retry is useful (persistence, role update).
func PaymentWebhook(c *gin.Context) {
	const maxBodyBytes = int64(65536)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		log.Warn().Err(err).Msg("payment webhook read failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if !gjson.ValidBytes(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	// The gateway sends status_code and gross_amount as either strings or
	// numbers depending on the channel; gjson reads both forms as strings.
	note := models.PaymentNotification{
		OrderID:           gjson.GetBytes(body, "order_id").String(),
		StatusCode:        gjson.GetBytes(body, "status_code").String(),
		GrossAmount:       gjson.GetBytes(body, "gross_amount").String(),
		TransactionStatus: gjson.GetBytes(body, "transaction_status").String(),
		SignatureKey:      gjson.GetBytes(body, "signature_key").String(),
		PaymentType:       gjson.GetBytes(body, "payment_type").String(),
	}

	if note.OrderID == "" || note.StatusCode == "" || note.GrossAmount == "" || note.SignatureKey == "" {
		log.Warn().Str("order_id", note.OrderID).Msg("payment webhook missing required fields")
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing required fields"})
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil || cfg.Payment.ServerKey == "" {
		log.Error().Err(err).Msg("payment webhook: server key not configured")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}

	if !verifySignature(note, cfg.Payment.ServerKey) {
		log.Warn().Str("order_id", note.OrderID).Msg("payment webhook signature mismatch")
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
		return
	}

	tx := models.Transaction{
		OrderID:           note.OrderID,
		TransactionStatus: note.TransactionStatus,
		StatusCode:        note.StatusCode,
		GrossAmount:       note.GrossAmount,
		PaymentType:       note.PaymentType,
		SignatureKey:      note.SignatureKey,
		Raw:               body,
		ReceivedAt:        time.Now().UTC(),
	}
	if err := store.UpsertTransaction(c.Request.Context(), tx); err != nil {
		log.Error().Str("order_id", note.OrderID).Err(err).Msg("payment webhook persistence failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
		return
	}

	switch note.TransactionStatus {
	case models.TxSettlement, models.TxCapture:
		userID, err := DecodeOrderID(note.OrderID)
		if err != nil {
			// Settled money we cannot attribute: let the gateway retry while
			// someone looks at the order id format.
			log.Error().Str("order_id", note.OrderID).Err(err).Msg("payment webhook cannot decode owner")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve order owner"})
			return
		}
		if err := store.SetRole(c.Request.Context(), userID, models.RolePremium); err != nil {
			log.Error().Str("order_id", note.OrderID).Str("user_id", userID).Err(err).Msg("premium upgrade failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user role"})
			return
		}
		log.Info().Str("order_id", note.OrderID).Str("user_id", userID).Msg("premium granted")
	default:
		// pending/deny/cancel/expire: persisted above, no role change.
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// verifySignature recomputes sha512(order_id + status_code + gross_amount +
// serverKey) and compares it to the supplied signature in constant time.
func verifySignature(note models.PaymentNotification, serverKey string) bool {
	sum := sha512.Sum512([]byte(note.OrderID + note.StatusCode + note.GrossAmount + serverKey))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(expected), []byte(note.SignatureKey)) == 1
}
