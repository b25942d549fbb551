package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/langrelay/langrelay/internal/models"
)

// SentText records a text message delivered through MockService.
type SentText struct {
	To   string
	Body string
}

// SentMenu records an interactive menu delivered through MockService.
type SentMenu struct {
	To      string
	Body    string
	Options []models.MenuOption
}

// SentVoice records a voice message delivered through MockService.
type SentVoice struct {
	To      string
	MediaID string
}

// MockService is a Service implementation for tests. It records every
// outbound message and can be configured to fail.
type MockService struct {
	mu      sync.Mutex
	Texts   []SentText
	Menus   []SentMenu
	Voices  []SentVoice
	Uploads [][]byte

	// FailSend makes all send methods return an error when set.
	FailSend bool
	// FailUpload makes UploadMedia return an error when set.
	FailUpload bool
}

// NewMockService creates a recording mock messaging service.
func NewMockService() *MockService {
	return &MockService{}
}

func (m *MockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizeRecipient(recipient)
}

func (m *MockService) SendText(ctx context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSend {
		return fmt.Errorf("mock send failure")
	}
	m.Texts = append(m.Texts, SentText{To: to, Body: body})
	return nil
}

func (m *MockService) SendMenu(ctx context.Context, to, body string, options []models.MenuOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSend {
		return fmt.Errorf("mock send failure")
	}
	m.Menus = append(m.Menus, SentMenu{To: to, Body: body, Options: options})
	return nil
}

func (m *MockService) UploadMedia(ctx context.Context, audio []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUpload {
		return "", fmt.Errorf("mock upload failure")
	}
	m.Uploads = append(m.Uploads, audio)
	return fmt.Sprintf("media-%d", len(m.Uploads)), nil
}

func (m *MockService) SendVoice(ctx context.Context, to, mediaHandle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSend {
		return fmt.Errorf("mock send failure")
	}
	m.Voices = append(m.Voices, SentVoice{To: to, MediaID: mediaHandle})
	return nil
}

func (m *MockService) VerifyCredentials() error { return nil }

// LastText returns the most recently sent text message, or false if none.
func (m *MockService) LastText() (SentText, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Texts) == 0 {
		return SentText{}, false
	}
	return m.Texts[len(m.Texts)-1], true
}
