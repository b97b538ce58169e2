package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dogevents/platform/internal/domain"
	"github.com/google/uuid"
)

// DefaultAPIEndpoint is the production Paytrail services endpoint.
const DefaultAPIEndpoint = "https://services.paytrail.com"

// HmacKeyPrefix marks the callback/request parameters included in the
// signature payload.
const HmacKeyPrefix = "checkout-"

// Credentials is the merchant routing configuration for gateway calls.
// It is constructed explicitly and passed in; there is no ambient
// credential state.
type Credentials struct {
	MerchantID string
	Secret     string
}

// CredentialSource resolves the current gateway credentials. Sources
// may refresh on their own schedule; see infra.NewCachedCredentialSource.
type CredentialSource func(ctx context.Context) (Credentials, error)

// StaticCredentials returns a CredentialSource that always yields the
// given credentials.
func StaticCredentials(c Credentials) CredentialSource {
	return func(context.Context) (Credentials, error) { return c, nil }
}

// Customer is the payer passed to the gateway when creating a payment.
type Customer struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// PaymentProvider is one payment method offered by the gateway.
type PaymentProvider struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Group string `json:"group"`
	URL   string `json:"url,omitempty"`
	Icon  string `json:"icon,omitempty"`
	Svg   string `json:"svg,omitempty"`
}

// ProviderGroup is a gateway grouping of payment methods.
type ProviderGroup struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
	Svg  string `json:"svg,omitempty"`
}

// CreatePaymentResponse is the gateway's answer to a payment creation.
type CreatePaymentResponse struct {
	TransactionID string            `json:"transactionId"`
	Href          string            `json:"href"`
	Reference     string            `json:"reference"`
	Terms         string            `json:"terms"`
	Groups        []ProviderGroup   `json:"groups"`
	Providers     []PaymentProvider `json:"providers"`
}

// RefundResponse is the gateway's answer to a refund creation.
type RefundResponse struct {
	TransactionID string `json:"transactionId"`
	Provider      string `json:"provider"`
	Status        string `json:"status"`
}

// CallbackParams are the fields parsed from an inbound gateway
// callback.
type CallbackParams struct {
	EventID        string
	RegistrationID string
	TransactionID  string
	Provider       string
	Status         domain.TransactionStatus
	AmountMinor    int64
}

// PaytrailClient is a thin adapter over the Paytrail checkout API.
type PaytrailClient struct {
	endpoint string
	creds    CredentialSource
	httpc    *http.Client
	logger   *slog.Logger
}

// NewPaytrailClient creates a gateway client. An empty endpoint uses
// the production API.
func NewPaytrailClient(endpoint string, creds CredentialSource, logger *slog.Logger) *PaytrailClient {
	if endpoint == "" {
		endpoint = DefaultAPIEndpoint
	}
	return &PaytrailClient{
		endpoint: endpoint,
		creds:    creds,
		httpc:    &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

// CalculateHmac computes the request/callback signature: all checkout-
// headers as "key:value" lines in alphabetical order, followed by the
// body (or an empty line), HMAC-SHA256 hex encoded.
func CalculateHmac(secret string, params map[string]string, body []byte) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		lines = append(lines, k+":"+params[k])
	}
	lines = append(lines, string(body))

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseCallbackParams extracts the reconciliation fields from callback
// query or body parameters. Pure parsing, no I/O.
func ParseCallbackParams(params url.Values) CallbackParams {
	eventID, registrationID := domain.SplitReference(params.Get("checkout-reference"))
	amount, _ := strconv.ParseInt(params.Get("checkout-amount"), 10, 64)
	return CallbackParams{
		EventID:        eventID,
		RegistrationID: registrationID,
		TransactionID:  params.Get("checkout-transaction-id"),
		Provider:       params.Get("checkout-provider"),
		Status:         domain.TransactionStatus(params.Get("checkout-status")),
		AmountMinor:    amount,
	}
}

// VerifyCallback checks the authenticity of an inbound callback. It
// must pass before any state is trusted from the callback.
func (c *PaytrailClient) VerifyCallback(ctx context.Context, params url.Values) error {
	if params.Get("checkout-transaction-id") == "" {
		return fmt.Errorf("missing checkout-transaction-id from params")
	}

	creds, err := c.creds(ctx)
	if err != nil {
		return fmt.Errorf("resolve credentials: %w", err)
	}

	hmacParams := make(map[string]string)
	for key := range params {
		if strings.HasPrefix(key, HmacKeyPrefix) {
			hmacParams[key] = params.Get(key)
		}
	}

	expected := CalculateHmac(creds.Secret, hmacParams, nil)
	signature := params.Get("signature")
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("callback signature verification failed")
	}
	return nil
}

type callbackURL struct {
	Success string `json:"success"`
	Cancel  string `json:"cancel"`
}

type createPaymentRequest struct {
	Stamp        string               `json:"stamp"`
	Reference    string               `json:"reference"`
	Amount       int64                `json:"amount"`
	Currency     string               `json:"currency"`
	Language     string               `json:"language"`
	Items        []domain.PaymentItem `json:"items,omitempty"`
	Customer     Customer             `json:"customer"`
	RedirectURLs callbackURL          `json:"redirectUrls"`
	CallbackURLs callbackURL          `json:"callbackUrls"`
}

type refundRequest struct {
	Amount          *int64              `json:"amount,omitempty"`
	Email           string              `json:"email,omitempty"`
	RefundStamp     string              `json:"refundStamp"`
	RefundReference string              `json:"refundReference"`
	Items           []domain.RefundItem `json:"items,omitempty"`
	CallbackURLs    callbackURL         `json:"callbackUrls"`
}

// CreatePayment opens a payment transaction with the gateway. The
// gateway assigns the transaction id.
func (c *PaytrailClient) CreatePayment(ctx context.Context, apiHost, origin string, amount int64, reference, stamp string, items []domain.PaymentItem, customer Customer) (*CreatePaymentResponse, error) {
	body := createPaymentRequest{
		Stamp:     stamp,
		Reference: reference,
		Amount:    amount,
		Currency:  "EUR",
		Language:  "FI",
		Items:     items,
		Customer:  customer,
		RedirectURLs: callbackURL{
			Success: origin + "/p/success",
			Cancel:  origin + "/p/cancel",
		},
		CallbackURLs: callbackURL{
			Success: "https://" + apiHost + "/payments/success",
			Cancel:  "https://" + apiHost + "/payments/cancel",
		},
	}

	var result CreatePaymentResponse
	if err := c.request(ctx, http.MethodPost, "payments", "", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RefundPayment requests a refund against an existing payment
// transaction. Itemized refunds carry items; aggregate refunds carry
// amount. The gateway may fall back to an email-initiated refund.
func (c *PaytrailClient) RefundPayment(ctx context.Context, apiHost, transactionID, reference, refundStamp string, items []domain.RefundItem, amount *int64, payerEmail string) (*RefundResponse, error) {
	body := refundRequest{
		Amount:          amount,
		Email:           payerEmail,
		RefundStamp:     refundStamp,
		RefundReference: reference,
		Items:           items,
		CallbackURLs: callbackURL{
			Success: "https://" + apiHost + "/refunds/success",
			Cancel:  "https://" + apiHost + "/refunds/cancel",
		},
	}

	var result RefundResponse
	path := "payments/" + transactionID + "/refund"
	if err := c.request(ctx, http.MethodPost, path, transactionID, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// request signs and sends one API call. All calls need checkout-
// headers signed with HMAC-SHA256; bodies are JSON.
func (c *PaytrailClient) request(ctx context.Context, method, path, transactionID string, body, out any) error {
	creds, err := c.creds(ctx)
	if err != nil {
		return fmt.Errorf("resolve credentials: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	checkoutHeaders := map[string]string{
		"checkout-account":   creds.MerchantID,
		"checkout-algorithm": "sha256",
		"checkout-method":    method,
		"checkout-nonce":     uuid.New().String(),
		"checkout-timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if transactionID != "" {
		checkoutHeaders["checkout-transaction-id"] = transactionID
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+"/"+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range checkoutHeaders {
		req.Header.Set(k, v)
	}
	req.Header.Set("content-type", "application/json; charset=utf-8")
	req.Header.Set("signature", CalculateHmac(creds.Secret, checkoutHeaders, payload))

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("gateway call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("gateway request rejected", "path", path, "status", resp.StatusCode, "body", string(msg))
		return fmt.Errorf("gateway error (status %d)", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}
