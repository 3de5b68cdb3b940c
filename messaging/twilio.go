package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	authgate "github.com/tradewire/authgate"
)

const twilioAPIBase = "https://api.twilio.com/2010-04-01"

// Twilio error codes for undeliverable destination numbers.
const (
	twilioInvalidToNumber   = 21211
	twilioUnreachableNumber = 21614
)

// TwilioSender implements [authgate.SMSSender] over the Twilio Messages REST
// API.
type TwilioSender struct {
	accountSID string
	authToken  string
	baseURL    string
	client     *http.Client
}

// NewTwilioSender describes the newtwiliosender operation and its observable behavior.
//
// NewTwilioSender may return an error when input validation, dependency calls, or security checks fail.
func NewTwilioSender(accountSID, authToken string, client *http.Client) (*TwilioSender, error) {
	if accountSID == "" || authToken == "" {
		return nil, errors.New("messaging: twilio credentials required")
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &TwilioSender{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    twilioAPIBase,
		client:     client,
	}, nil
}

type twilioResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send describes the send operation and its observable behavior.
//
// Send may return an error when input validation, dependency calls, or security checks fail.
// Send does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (t *TwilioSender) Send(ctx context.Context, msg authgate.SMSMessage) (authgate.SMSResult, error) {
	form := url.Values{}
	form.Set("To", msg.To)
	form.Set("From", msg.From)
	form.Set("Body", msg.Body)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", t.baseURL, t.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return authgate.SMSResult{}, err
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return authgate.SMSResult{}, err
	}
	defer resp.Body.Close()

	var body twilioResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return authgate.SMSResult{}, fmt.Errorf("messaging: decode twilio response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return authgate.SMSResult{OK: true}, nil
	}

	result := authgate.SMSResult{
		Code:         strconv.Itoa(body.Code),
		ErrorMessage: body.Message,
	}
	if body.Code == twilioInvalidToNumber || body.Code == twilioUnreachableNumber {
		result.WrongPhoneNumber = body.Message
	}
	return result, nil
}
