// Package notify sends treatment plans to farmers over WhatsApp.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/giygas/agrisafe-api/config"
	"github.com/giygas/agrisafe-api/history"
	"github.com/giygas/agrisafe-api/schedule"
)

// ErrDisabled is returned by notifiers that do not deliver anything
var ErrDisabled = errors.New("notifications are disabled")

// Notifier delivers a text message to a farmer mobile number.
type Notifier interface {
	Send(ctx context.Context, mobile, body string) error
}

// Noop is used when WhatsApp is not configured.
type Noop struct{}

func (Noop) Send(context.Context, string, string) error { return ErrDisabled }

// New returns a WhatsApp client when enabled, Noop otherwise
func New(cfg config.WhatsAppConfig) Notifier {
	if !cfg.Enabled {
		return Noop{}
	}
	return NewWhatsAppClient(cfg)
}

// WhatsAppClient talks to the WhatsApp Cloud API messages endpoint
type WhatsAppClient struct {
	baseURL       string
	phoneNumberID string
	token         string
	countryCode   string
	httpClient    *http.Client
}

// NewWhatsAppClient creates a client with a 10 second timeout
func NewWhatsAppClient(cfg config.WhatsAppConfig) *WhatsAppClient {
	return &WhatsAppClient{
		baseURL:       strings.TrimRight(cfg.APIURL, "/"),
		phoneNumberID: cfg.PhoneNumberID,
		token:         cfg.Token,
		countryCode:   cfg.CountryCode,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type textBody struct {
	Body string `json:"body"`
}

type messageRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send posts a text message. Ten digit numbers get the configured country code.
func (c *WhatsAppClient) Send(ctx context.Context, mobile, body string) error {
	to := mobile
	if len(to) == 10 {
		to = c.countryCode + to
	}

	payload, err := json.Marshal(messageRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: body},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send WhatsApp message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("WhatsApp API returned %d: %s (code %d)", resp.StatusCode, apiErr.Error.Message, apiErr.Error.Code)
		}
		return fmt.Errorf("WhatsApp API returned %d", resp.StatusCode)
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// TreatmentMessage renders the farmer facing text for a stored recommendation
func TreatmentMessage(rec *history.Record) string {
	var b strings.Builder
	b.WriteString("AgriSafe treatment plan\n")
	fmt.Fprintf(&b, "Animal: %s (%s), %.2f kg\n", rec.AnimalType, rec.AgeCategory, rec.WeightKg)
	fmt.Fprintf(&b, "Disease: %s", rec.Disease)
	for _, item := range rec.Items {
		b.WriteString("\n\n")
		if len(rec.Items) > 1 {
			fmt.Fprintf(&b, "%d. ", item.Position)
		}
		fmt.Fprintf(&b, "Medicine: %s\n", item.Antibiotic)
		fmt.Fprintf(&b, "Dose: %.2f ml, %s for %d day(s)\n", item.SingleDoseML, item.FrequencyDescription, item.TreatmentDays)
		fmt.Fprintf(&b, "From %s to %s\n", item.StartDate.Format(schedule.DateLayout), item.EndDate.Format(schedule.DateLayout))
		fmt.Fprintf(&b, "Total: %.2f ml", item.TotalTreatmentDosageML)
		if item.Notes != "" {
			fmt.Fprintf(&b, "\nNote: %s", item.Notes)
		}
	}
	if rec.ShopID != "" {
		fmt.Fprintf(&b, "\n\nShop: %s", rec.ShopID)
	}
	return b.String()
}
