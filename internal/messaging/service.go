// Package messaging provides the pluggable outbound message delivery
// abstraction for LangRelay and its Cloud API and Twilio implementations.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/langrelay/langrelay/internal/models"
)

// ErrVoiceUnsupported is returned by transports without a voice-note surface.
var ErrVoiceUnsupported = errors.New("voice messages not supported by this transport")

// phoneNumberRegex matches everything that is not a digit. Used to
// canonicalize phone numbers by stripping formatting characters.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// MinPhoneNumberDigits is the minimum length of a canonical recipient.
const MinPhoneNumberDigits = 6

// Service defines a pluggable message delivery abstraction over the outbound
// surface the router needs: text, interactive menus and voice messages.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient
	// identifier. Returns the canonicalized recipient and an error if
	// validation fails.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendText sends a plain text message.
	SendText(ctx context.Context, to, body string) error

	// SendMenu sends an interactive menu (button or list variant, chosen by
	// the transport).
	SendMenu(ctx context.Context, to, body string, options []models.MenuOption) error

	// UploadMedia uploads audio bytes and returns an opaque media handle.
	UploadMedia(ctx context.Context, audio []byte) (string, error)

	// SendVoice sends previously uploaded audio as a voice message.
	SendVoice(ctx context.Context, to, mediaHandle string) error

	// VerifyCredentials reports whether the transport is usable; consumed by
	// the startup sequence and the health endpoint.
	VerifyCredentials() error
}

// CanonicalizeRecipient strips formatting from a phone-number recipient and
// validates the result. Shared by all transports.
func CanonicalizeRecipient(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < MinPhoneNumberDigits {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum %d digits required)", canonical, MinPhoneNumberDigits)
	}
	if canonical != recipient {
		slog.Debug("messaging.CanonicalizeRecipient: canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}
