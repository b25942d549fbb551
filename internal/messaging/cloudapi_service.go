package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/langrelay/langrelay/internal/cloudapi"
	"github.com/langrelay/langrelay/internal/models"
)

// audioMIMEType is the content type of synthesized speech uploads.
const audioMIMEType = "audio/mpeg"

// CloudAPIService implements Service over the WhatsApp Business Cloud API.
type CloudAPIService struct {
	client cloudapi.Sender
}

// NewCloudAPIService creates a messaging service backed by the Cloud API
// client. The client must be non-nil.
func NewCloudAPIService(client cloudapi.Sender) *CloudAPIService {
	return &CloudAPIService{client: client}
}

func (s *CloudAPIService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizeRecipient(recipient)
}

func (s *CloudAPIService) SendText(ctx context.Context, to, body string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	if err := s.client.SendText(ctx, canonical, body); err != nil {
		slog.Error("CloudAPIService.SendText: send failed", "to", canonical, "error", err)
		return err
	}
	return nil
}

func (s *CloudAPIService) SendMenu(ctx context.Context, to, body string, options []models.MenuOption) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	if err := s.client.SendMenu(ctx, canonical, body, options); err != nil {
		slog.Error("CloudAPIService.SendMenu: send failed", "to", canonical, "options", len(options), "error", err)
		return err
	}
	return nil
}

func (s *CloudAPIService) UploadMedia(ctx context.Context, audio []byte) (string, error) {
	mediaID, err := s.client.UploadMedia(ctx, audio, audioMIMEType)
	if err != nil {
		slog.Error("CloudAPIService.UploadMedia: upload failed", "bytes", len(audio), "error", err)
		return "", err
	}
	slog.Debug("CloudAPIService.UploadMedia: uploaded audio", "bytes", len(audio), "mediaID", mediaID)
	return mediaID, nil
}

func (s *CloudAPIService) SendVoice(ctx context.Context, to, mediaHandle string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	if err := s.client.SendVoice(ctx, canonical, mediaHandle); err != nil {
		slog.Error("CloudAPIService.SendVoice: send failed", "to", canonical, "mediaID", mediaHandle, "error", err)
		return err
	}
	return nil
}

func (s *CloudAPIService) VerifyCredentials() error {
	type verifier interface{ VerifyCredentials() error }
	if v, ok := s.client.(verifier); ok {
		return v.VerifyCredentials()
	}
	return nil
}
