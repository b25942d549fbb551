package cloudapi

import (
	"context"
	"fmt"
	"sync"

	"github.com/langrelay/langrelay/internal/models"
)

// MockClient is a Sender that records calls for tests.
type MockClient struct {
	mu       sync.Mutex
	Texts    []MockText
	Menus    []MockMenu
	Voices   []MockVoice
	Uploads  [][]byte
	FailSend bool
}

// MockText records one SendText call.
type MockText struct {
	To   string
	Body string
}

// MockMenu records one SendMenu call.
type MockMenu struct {
	To      string
	Body    string
	Options []models.MenuOption
}

// MockVoice records one SendVoice call.
type MockVoice struct {
	To      string
	MediaID string
}

var _ Sender = (*MockClient)(nil)

// NewMockClient creates a recording mock sender.
func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendText(ctx context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSend {
		return fmt.Errorf("mock send failure")
	}
	m.Texts = append(m.Texts, MockText{To: to, Body: body})
	return nil
}

func (m *MockClient) SendMenu(ctx context.Context, to, body string, options []models.MenuOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSend {
		return fmt.Errorf("mock send failure")
	}
	m.Menus = append(m.Menus, MockMenu{To: to, Body: body, Options: options})
	return nil
}

func (m *MockClient) SendVoice(ctx context.Context, to, mediaID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSend {
		return fmt.Errorf("mock send failure")
	}
	m.Voices = append(m.Voices, MockVoice{To: to, MediaID: mediaID})
	return nil
}

func (m *MockClient) UploadMedia(ctx context.Context, audio []byte, mimeType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSend {
		return "", fmt.Errorf("mock upload failure")
	}
	m.Uploads = append(m.Uploads, audio)
	return fmt.Sprintf("media-%d", len(m.Uploads)), nil
}
