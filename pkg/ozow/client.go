/**
 * @description
 * This package provides a client for the Ozow hosted-payment gateway. It
 * encapsulates request construction, the SHA-512 request signature, the
 * hosted-payment redirect URL, and verification of webhook notification
 * hashes.
 *
 * Key features:
 * - Payment requests are signed by concatenating the lowercased field values
 *   in a fixed order and appending the shared private key before hashing.
 * - Webhook hashes are recomputed over the deterministic payload subset
 *   (site code, transaction id, transaction reference, amount, status) and
 *   compared in constant time.
 *
 * @dependencies
 * - crypto/sha512, crypto/subtle, encoding/hex: For request signing and
 *   constant-time hash verification.
 * - net/http, net/url, time: For the outbound client and URL construction.
 */
package ozow

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	countryCode  = "ZA"
	currencyCode = "ZAR"

	// Admin fee rule: R375 or 15% of rent, whichever is less. Values in cents.
	adminFeeCapCents         = 37500
	cancellationPenaltyCents = 30000
)

// Config holds the gateway credentials and endpoints.
type Config struct {
	SiteCode   string
	PrivateKey string
	APIKey     string
	RequestURL string // hosted payment request endpoint
	AppBaseURL string // base URL for redirect/notify callbacks
	IsTest     bool
}

// Configured reports whether the gateway credentials are usable. Placeholder
// API keys provisioned before go-live do not count as configured.
func (c Config) Configured() bool {
	if strings.TrimSpace(c.SiteCode) == "" || strings.TrimSpace(c.PrivateKey) == "" {
		return false
	}
	key := strings.TrimSpace(c.APIKey)
	if key == "" || strings.HasPrefix(key, "PLACEHOLDER") {
		return false
	}
	return true
}

// Client is a client for the Ozow hosted-payment gateway.
type Client struct {
	Config     Config
	HTTPClient *http.Client
}

// NewClient creates a new Ozow gateway client with a bounded request timeout.
func NewClient(cfg Config) *Client {
	return &Client{
		Config: cfg,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// PaymentRequest represents an outbound hosted-payment request.
type PaymentRequest struct {
	SiteCode             string
	CountryCode          string
	CurrencyCode         string
	Amount               int64 // in cents
	TransactionReference string
	BankReference        string
	Customer             string
	CancelURL            string
	ErrorURL             string
	SuccessURL           string
	NotifyURL            string
	IsTest               bool
}

// BuildPaymentRequest assembles a signed-ready payment request for the given
// reference and amount.
func (c *Client) BuildPaymentRequest(reference, bankReference, customer string, amount int64) PaymentRequest {
	base := strings.TrimRight(c.Config.AppBaseURL, "/")
	return PaymentRequest{
		SiteCode:             c.Config.SiteCode,
		CountryCode:          countryCode,
		CurrencyCode:         currencyCode,
		Amount:               amount,
		TransactionReference: reference,
		BankReference:        bankReference,
		Customer:             customer,
		CancelURL:            base + "/payments/cancel",
		ErrorURL:             base + "/payments/error",
		SuccessURL:           base + "/payments/success",
		NotifyURL:            base + "/api/payments/notify",
		IsTest:               c.Config.IsTest,
	}
}

// RequestHash computes the SHA-512 signature over the request's field values,
// lowercased and concatenated in the gateway's canonical field order, with the
// private key appended.
func (c *Client) RequestHash(req PaymentRequest) string {
	fields := []string{
		strconv.FormatInt(req.Amount, 10),
		req.BankReference,
		req.CancelURL,
		req.CountryCode,
		req.CurrencyCode,
		req.Customer,
		req.ErrorURL,
		strconv.FormatBool(req.IsTest),
		req.NotifyURL,
		req.SiteCode,
		req.SuccessURL,
		req.TransactionReference,
	}
	input := strings.ToLower(strings.Join(fields, "")) + c.Config.PrivateKey
	sum := sha512.Sum512([]byte(input))
	return hex.EncodeToString(sum[:])
}

// HostedPaymentURL returns the full redirect URL for the hosted payment page,
// including the request signature.
func (c *Client) HostedPaymentURL(req PaymentRequest) string {
	params := url.Values{}
	params.Set("SiteCode", req.SiteCode)
	params.Set("CountryCode", req.CountryCode)
	params.Set("CurrencyCode", req.CurrencyCode)
	params.Set("Amount", strconv.FormatInt(req.Amount, 10))
	params.Set("TransactionReference", req.TransactionReference)
	params.Set("BankReference", req.BankReference)
	params.Set("Customer", req.Customer)
	params.Set("CancelUrl", req.CancelURL)
	params.Set("ErrorUrl", req.ErrorURL)
	params.Set("SuccessUrl", req.SuccessURL)
	params.Set("NotifyUrl", req.NotifyURL)
	params.Set("IsTest", strconv.FormatBool(req.IsTest))
	params.Set("HashCheck", c.RequestHash(req))
	return fmt.Sprintf("%s?%s", c.Config.RequestURL, params.Encode())
}

// NotificationHash computes the expected webhook hash over the deterministic
// payload subset: site code, transaction id, transaction reference, amount and
// status, lowercased, with the private key appended.
func (c *Client) NotificationHash(siteCode, transactionID, transactionReference, amount, status string) string {
	input := strings.ToLower(siteCode+transactionID+transactionReference+amount+status) + c.Config.PrivateKey
	sum := sha512.Sum512([]byte(input))
	return hex.EncodeToString(sum[:])
}

// VerifyNotificationHash recomputes the expected hash for a webhook payload
// and compares it against the received hash in constant time.
func (c *Client) VerifyNotificationHash(siteCode, transactionID, transactionReference, amount, status, receivedHash string) bool {
	if strings.TrimSpace(receivedHash) == "" {
		return false
	}
	expected := c.NotificationHash(siteCode, transactionID, transactionReference, amount, status)
	received := strings.ToLower(strings.TrimSpace(receivedHash))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}

// CalculateAdminFee returns the once-off admin fee for a move-in payment:
// R375 or 15% of the monthly rent, whichever is less. Amounts in cents.
func CalculateAdminFee(rentAmount int64) int64 {
	fifteenPercent := rentAmount * 15 / 100
	if fifteenPercent < adminFeeCapCents {
		return fifteenPercent
	}
	return adminFeeCapCents
}

// CancellationPenalty returns the flat lease-cancellation penalty in cents.
func CancellationPenalty() int64 {
	return cancellationPenaltyCents
}
