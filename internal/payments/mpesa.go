package payments

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"
)

// ErrGateway wraps any failure talking to the Daraja API.
var ErrGateway = errors.New("mpesa gateway error")

// STKStatus is the state of a customer-to-business payment as reported by
// the STK query endpoint.
type STKStatus int

const (
	STKPending STKStatus = iota // customer has not acted on the prompt yet
	STKPaid
	STKFailed
)

// darajaProcessingCode is the errorCode Daraja returns while the customer
// still has the STK prompt open.
const darajaProcessingCode = "500.001.1001"

type MpesaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Passkey        string
	Shortcode      string
	CallbackURL    string
	// B2C credentials; payouts fall back to demo mode without them.
	InitiatorName      string
	SecurityCredential string
}

// MpesaClient talks to Safaricom's Daraja API. The zero config (no consumer
// key) puts the whole payments flow in demo mode.
type MpesaClient struct {
	cfg  MpesaConfig
	http *http.Client
	now  func() time.Time
}

func NewMpesaClient(cfg MpesaConfig) *MpesaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://sandbox.safaricom.co.ke"
	}
	if cfg.Shortcode == "" {
		cfg.Shortcode = "174379" // sandbox default
	}
	return &MpesaClient{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
		now:  time.Now,
	}
}

func NewMpesaClientFromEnv() *MpesaClient {
	return NewMpesaClient(MpesaConfig{
		BaseURL:            os.Getenv("MPESA_BASE_URL"),
		ConsumerKey:        os.Getenv("MPESA_CONSUMER_KEY"),
		ConsumerSecret:     os.Getenv("MPESA_CONSUMER_SECRET"),
		Passkey:            os.Getenv("MPESA_PASSKEY"),
		Shortcode:          os.Getenv("MPESA_SHORTCODE"),
		CallbackURL:        os.Getenv("MPESA_CALLBACK_URL"),
		InitiatorName:      os.Getenv("MPESA_INITIATOR_NAME"),
		SecurityCredential: os.Getenv("MPESA_SECURITY_CREDENTIAL"),
	})
}

// Configured reports whether real Daraja credentials are present. When false
// the service simulates deposits and payouts instead of calling out.
func (c *MpesaClient) Configured() bool {
	return c.cfg.ConsumerKey != "" && c.cfg.ConsumerSecret != "" && c.cfg.Passkey != ""
}

func (c *MpesaClient) accessToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.cfg.ConsumerKey + ":" + c.cfg.ConsumerSecret))
	req.Header.Set("Authorization", "Basic "+basic)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: oauth: %v", ErrGateway, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: oauth returned %d", ErrGateway, resp.StatusCode)
	}
	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: oauth response: %v", ErrGateway, err)
	}
	return body.AccessToken, nil
}

// password builds the Lipa Na M-Pesa password for the given timestamp:
// base64(shortcode + passkey + yyyymmddhhmmss).
func (c *MpesaClient) password(ts string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.cfg.Shortcode + c.cfg.Passkey + ts))
}

func (c *MpesaClient) timestamp() string {
	return c.now().UTC().Format("20060102150405")
}

// STKPush sends a payment prompt to the customer's phone and returns the
// CheckoutRequestID used to track the payment.
func (c *MpesaClient) STKPush(ctx context.Context, phone string, amount int64, description string) (string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}

	ts := c.timestamp()
	payload := map[string]any{
		"BusinessShortCode": c.cfg.Shortcode,
		"Password":          c.password(ts),
		"Timestamp":         ts,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            amount,
		"PartyA":            phone,
		"PartyB":            c.cfg.Shortcode,
		"PhoneNumber":       phone,
		"CallBackURL":       c.cfg.CallbackURL,
		"AccountReference":  "StakeHabit",
		"TransactionDesc":   description,
	}

	var result struct {
		ResponseCode      string `json:"ResponseCode"`
		CheckoutRequestID string `json:"CheckoutRequestID"`
		ErrorMessage      string `json:"errorMessage"`
	}
	if err := c.post(ctx, token, "/mpesa/stkpush/v1/processrequest", payload, &result); err != nil {
		return "", err
	}
	if result.ResponseCode != "0" {
		msg := result.ErrorMessage
		if msg == "" {
			msg = "STK push rejected"
		}
		return "", fmt.Errorf("%w: %s", ErrGateway, msg)
	}
	return result.CheckoutRequestID, nil
}

// STKQuery asks Daraja what happened to a previously pushed payment.
func (c *MpesaClient) STKQuery(ctx context.Context, checkoutRequestID string) (STKStatus, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return STKPending, err
	}

	ts := c.timestamp()
	payload := map[string]any{
		"BusinessShortCode": c.cfg.Shortcode,
		"Password":          c.password(ts),
		"Timestamp":         ts,
		"CheckoutRequestID": checkoutRequestID,
	}

	var result struct {
		ResultCode string `json:"ResultCode"`
		ErrorCode  string `json:"errorCode"`
	}
	if err := c.post(ctx, token, "/mpesa/stkpushquery/v1/query", payload, &result); err != nil {
		return STKPending, err
	}
	switch {
	case result.ErrorCode == darajaProcessingCode:
		return STKPending, nil
	case result.ResultCode == "0":
		return STKPaid, nil
	default:
		return STKFailed, nil
	}
}

// B2CPay sends money from the business account to the customer's phone.
func (c *MpesaClient) B2CPay(ctx context.Context, phone string, amount int64, remarks string) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	payload := map[string]any{
		"InitiatorName":      c.cfg.InitiatorName,
		"SecurityCredential": c.cfg.SecurityCredential,
		"CommandID":          "BusinessPayment",
		"Amount":             amount,
		"PartyA":             c.cfg.Shortcode,
		"PartyB":             phone,
		"Remarks":            remarks,
		"QueueTimeOutURL":    c.cfg.CallbackURL,
		"ResultURL":          c.cfg.CallbackURL,
		"Occasion":           "StakeHabit withdrawal",
	}

	var result struct {
		ResponseCode string `json:"ResponseCode"`
		ErrorMessage string `json:"errorMessage"`
	}
	if err := c.post(ctx, token, "/mpesa/b2c/v1/paymentrequest", payload, &result); err != nil {
		return err
	}
	if result.ResponseCode != "0" {
		msg := result.ErrorMessage
		if msg == "" {
			msg = "B2C payment rejected"
		}
		return fmt.Errorf("%w: %s", ErrGateway, msg)
	}
	return nil
}

func (c *MpesaClient) post(ctx context.Context, token, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrGateway, path, err)
	}
	defer resp.Body.Close()

	// Daraja reports "still processing" as an HTTP error with a JSON body,
	// so decode regardless of status.
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s returned %d with unreadable body", ErrGateway, path, resp.StatusCode)
	}
	return nil
}
