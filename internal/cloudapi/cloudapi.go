// Package cloudapi wraps the WhatsApp Business Cloud API for LangRelay.
//
// It covers the narrow outbound surface the router needs: text messages,
// interactive button/list menus, media upload and voice messages. Inbound
// traffic arrives through the webhook, not through this client.
package cloudapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/langrelay/langrelay/internal/models"
)

// Configuration defaults for the Cloud API client.
const (
	// DefaultBaseURL is the Graph API root used for all requests.
	DefaultBaseURL = "https://graph.facebook.com/v18.0"
	// DefaultRequestTimeout bounds each outbound API call.
	DefaultRequestTimeout = 30 * time.Second
	// MaxButtonOptions is the platform limit on reply buttons; menus with
	// more options are sent as list messages.
	MaxButtonOptions = 3
	// MaxListRows is the platform limit on rows in a single list section.
	MaxListRows = 10
)

// Sender is the outbound surface consumed by the messaging service.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
	SendMenu(ctx context.Context, to, body string, options []models.MenuOption) error
	SendVoice(ctx context.Context, to, mediaID string) error
	UploadMedia(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Opts holds configuration options for the Cloud API client.
type Opts struct {
	AccessToken   string
	PhoneNumberID string
	BaseURL       string
	HTTPClient    *http.Client
}

// Option defines a configuration option for the Cloud API client.
type Option func(*Opts)

// WithAccessToken sets the bearer token.
func WithAccessToken(token string) Option {
	return func(o *Opts) { o.AccessToken = token }
}

// WithPhoneNumberID sets the business phone number id requests are sent from.
func WithPhoneNumberID(id string) Option {
	return func(o *Opts) { o.PhoneNumberID = id }
}

// WithBaseURL overrides the Graph API root (used in tests).
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithHTTPClient overrides the HTTP client (used in tests).
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client talks to the WhatsApp Business Cloud API.
type Client struct {
	http          *http.Client
	baseURL       string
	accessToken   string
	phoneNumberID string
}

var _ Sender = (*Client)(nil)

// NewClient creates a Cloud API client. Credentials fall back to the
// WHATSAPP_ACCESS_TOKEN and WHATSAPP_PHONE_NUMBER_ID environment variables.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccessToken == "" {
		cfg.AccessToken = os.Getenv("WHATSAPP_ACCESS_TOKEN")
	}
	if cfg.PhoneNumberID == "" {
		cfg.PhoneNumberID = os.Getenv("WHATSAPP_PHONE_NUMBER_ID")
	}
	if cfg.AccessToken == "" || cfg.PhoneNumberID == "" {
		return nil, fmt.Errorf("access token and phone number id must be provided")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	slog.Debug("cloudapi.NewClient: configured",
		"base_url", cfg.BaseURL,
		"token_set", cfg.AccessToken != "",
		"phone_number_id_set", cfg.PhoneNumberID != "")
	return &Client{
		http:          cfg.HTTPClient,
		baseURL:       cfg.BaseURL,
		accessToken:   cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
	}, nil
}

// messagesURL is the endpoint for all outbound messages.
func (c *Client) messagesURL() string {
	return fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
}

// postJSON sends one message payload and decodes the platform's response.
func (c *Client) postJSON(ctx context.Context, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode message payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.messagesURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build message request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("message request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail := decodeAPIError(resp.Body)
		slog.Error("cloudapi.postJSON: send failed", "status", resp.StatusCode, "detail", detail)
		return fmt.Errorf("send failed with status %d: %s", resp.StatusCode, detail)
	}
	return nil
}

// decodeAPIError extracts the error message from a Graph API error body.
func decodeAPIError(r io.Reader) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(r).Decode(&parsed); err != nil || parsed.Error.Message == "" {
		return "unknown error"
	}
	return parsed.Error.Message
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	slog.Debug("cloudapi.SendText: sending", "to", to, "body_length", len(body))
	return c.postJSON(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": body},
	})
}

// SendMenu sends an interactive menu. Menus with up to MaxButtonOptions
// options go out as reply buttons; larger menus go out as a list message.
func (c *Client) SendMenu(ctx context.Context, to, body string, options []models.MenuOption) error {
	if len(options) == 0 {
		return fmt.Errorf("menu requires at least one option")
	}
	if len(options) <= MaxButtonOptions {
		return c.sendButtons(ctx, to, body, options)
	}
	return c.sendList(ctx, to, body, options)
}

func (c *Client) sendButtons(ctx context.Context, to, body string, options []models.MenuOption) error {
	buttons := make([]map[string]interface{}, 0, len(options))
	for _, opt := range options {
		buttons = append(buttons, map[string]interface{}{
			"type":  "reply",
			"reply": map[string]string{"id": opt.ID, "title": opt.Title},
		})
	}
	slog.Debug("cloudapi.sendButtons: sending", "to", to, "buttons", len(buttons))
	return c.postJSON(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]interface{}{
			"type":   "button",
			"body":   map[string]string{"text": body},
			"action": map[string]interface{}{"buttons": buttons},
		},
	})
}

func (c *Client) sendList(ctx context.Context, to, body string, options []models.MenuOption) error {
	var sections []map[string]interface{}
	for start := 0; start < len(options); start += MaxListRows {
		end := start + MaxListRows
		if end > len(options) {
			end = len(options)
		}
		rows := make([]map[string]string, 0, end-start)
		for _, opt := range options[start:end] {
			row := map[string]string{"id": opt.ID, "title": opt.Title}
			if opt.Description != "" {
				row["description"] = opt.Description
			}
			rows = append(rows, row)
		}
		sections = append(sections, map[string]interface{}{
			"title": fmt.Sprintf("Options %d-%d", start+1, end),
			"rows":  rows,
		})
	}
	slog.Debug("cloudapi.sendList: sending", "to", to, "sections", len(sections))
	return c.postJSON(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]interface{}{
			"type":   "list",
			"body":   map[string]string{"text": body},
			"action": map[string]interface{}{"button": "Choose", "sections": sections},
		},
	})
}

// SendVoice sends an uploaded audio file as a voice message.
func (c *Client) SendVoice(ctx context.Context, to, mediaID string) error {
	if mediaID == "" {
		return fmt.Errorf("media id must not be empty")
	}
	slog.Debug("cloudapi.SendVoice: sending", "to", to, "media_id", mediaID)
	return c.postJSON(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "audio",
		"audio":             map[string]string{"id": mediaID},
	})
}

// UploadMedia uploads audio bytes and returns the platform media id.
func (c *Client) UploadMedia(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("audio payload must not be empty")
	}
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "voice.mp3")
	if err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("failed to write upload payload: %w", err)
	}
	writer.WriteField("type", mimeType)
	writer.WriteField("messaging_product", "whatsapp")
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize upload form: %w", err)
	}

	url := fmt.Sprintf("%s/%s/media", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("media upload failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail := decodeAPIError(resp.Body)
		slog.Error("cloudapi.UploadMedia: upload failed", "status", resp.StatusCode, "detail", detail)
		return "", fmt.Errorf("media upload failed with status %d: %s", resp.StatusCode, detail)
	}
	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("upload response missing media id")
	}
	slog.Debug("cloudapi.UploadMedia: uploaded", "media_id", parsed.ID, "bytes", len(audio))
	return parsed.ID, nil
}

// VerifyCredentials reports whether the client is configured with usable
// credentials. It does not call the network; the first send surfaces auth
// failures.
func (c *Client) VerifyCredentials() error {
	if c.accessToken == "" || c.phoneNumberID == "" {
		return fmt.Errorf("cloud api credentials not configured")
	}
	return nil
}
