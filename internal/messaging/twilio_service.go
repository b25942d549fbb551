package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/langrelay/langrelay/internal/models"
	"github.com/langrelay/langrelay/internal/twiliowhatsapp"
)

// TwilioService implements Service over Twilio's WhatsApp channel. Twilio has
// no interactive-menu or media-upload surface here, so menus degrade to
// numbered text and voice messages are reported as unsupported.
type TwilioService struct {
	sender twiliowhatsapp.TwilioWhatsAppSender
}

// NewTwilioService creates a messaging service backed by a Twilio WhatsApp
// sender.
func NewTwilioService(sender twiliowhatsapp.TwilioWhatsAppSender) *TwilioService {
	return &TwilioService{sender: sender}
}

func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizeRecipient(recipient)
}

func (s *TwilioService) SendText(ctx context.Context, to, body string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	if err := s.sender.SendMessage(ctx, canonical, body); err != nil {
		slog.Error("TwilioService.SendText: send failed", "to", canonical, "error", err)
		return err
	}
	return nil
}

// SendMenu renders the menu as a numbered text list since Twilio's WhatsApp
// API offers no interactive message surface in this integration.
func (s *TwilioService) SendMenu(ctx context.Context, to, body string, options []models.MenuOption) error {
	if len(options) == 0 {
		return fmt.Errorf("menu requires at least one option")
	}
	var sb strings.Builder
	sb.WriteString(body)
	for i, opt := range options {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%d. %s", i+1, opt.Title))
		if opt.Description != "" {
			sb.WriteString(" - ")
			sb.WriteString(opt.Description)
		}
	}
	return s.SendText(ctx, to, sb.String())
}

func (s *TwilioService) UploadMedia(ctx context.Context, audio []byte) (string, error) {
	return "", ErrVoiceUnsupported
}

func (s *TwilioService) SendVoice(ctx context.Context, to, mediaHandle string) error {
	return ErrVoiceUnsupported
}

func (s *TwilioService) VerifyCredentials() error {
	if s.sender == nil {
		return fmt.Errorf("twilio sender not configured")
	}
	return nil
}
