package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/langrelay/langrelay/internal/cloudapi"
	"github.com/langrelay/langrelay/internal/models"
)

func TestCanonicalizeRecipient(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain digits", input: "15551234567", want: "15551234567"},
		{name: "plus prefix", input: "+15551234567", want: "15551234567"},
		{name: "formatted", input: "+1 (555) 123-4567", want: "15551234567"},
		{name: "whatsapp prefix", input: "whatsapp:+15551234567", want: "15551234567"},
		{name: "empty", input: "", wantErr: true},
		{name: "no digits", input: "abc-def", wantErr: true},
		{name: "too short", input: "12345", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalizeRecipient(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %q", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCloudAPIServiceCanonicalizesBeforeSend(t *testing.T) {
	mock := cloudapi.NewMockClient()
	svc := NewCloudAPIService(mock)

	if err := svc.SendText(context.Background(), "+1 (555) 123-4567", "hello"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if len(mock.Texts) != 1 {
		t.Fatalf("expected 1 text, got %d", len(mock.Texts))
	}
	if mock.Texts[0].To != "15551234567" {
		t.Errorf("recipient not canonicalized: %q", mock.Texts[0].To)
	}
}

func TestCloudAPIServiceRejectsInvalidRecipient(t *testing.T) {
	mock := cloudapi.NewMockClient()
	svc := NewCloudAPIService(mock)

	if err := svc.SendText(context.Background(), "not-a-number", "hello"); err == nil {
		t.Fatal("expected error for invalid recipient")
	}
	if len(mock.Texts) != 0 {
		t.Errorf("message should not reach the client, got %d", len(mock.Texts))
	}
}

func TestCloudAPIServiceUploadMedia(t *testing.T) {
	mock := cloudapi.NewMockClient()
	svc := NewCloudAPIService(mock)

	id, err := svc.UploadMedia(context.Background(), []byte("mp3-bytes"))
	if err != nil {
		t.Fatalf("UploadMedia failed: %v", err)
	}
	if id == "" {
		t.Error("expected non-empty media id")
	}
	if len(mock.Uploads) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(mock.Uploads))
	}
}

type fakeTwilioSender struct {
	messages []struct{ To, Body string }
	err      error
}

func (f *fakeTwilioSender) SendMessage(ctx context.Context, to, body string) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, struct{ To, Body string }{to, body})
	return nil
}

func TestTwilioServiceMenuDegradesToNumberedText(t *testing.T) {
	sender := &fakeTwilioSender{}
	svc := NewTwilioService(sender)

	options := []models.MenuOption{
		{ID: "add_ja", Title: "Japanese", Description: "日本語"},
		{ID: "add_hi", Title: "Hindi"},
	}
	if err := svc.SendMenu(context.Background(), "15551234567", "Pick a language:", options); err != nil {
		t.Fatalf("SendMenu failed: %v", err)
	}
	if len(sender.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sender.messages))
	}
	body := sender.messages[0].Body
	if !strings.Contains(body, "Pick a language:") {
		t.Errorf("menu body missing prompt: %q", body)
	}
	if !strings.Contains(body, "1. Japanese - 日本語") {
		t.Errorf("menu body missing first numbered option: %q", body)
	}
	if !strings.Contains(body, "2. Hindi") {
		t.Errorf("menu body missing second numbered option: %q", body)
	}
}

func TestTwilioServiceEmptyMenuRejected(t *testing.T) {
	svc := NewTwilioService(&fakeTwilioSender{})
	if err := svc.SendMenu(context.Background(), "15551234567", "Pick:", nil); err == nil {
		t.Fatal("expected error for empty menu")
	}
}

func TestTwilioServiceVoiceUnsupported(t *testing.T) {
	svc := NewTwilioService(&fakeTwilioSender{})

	if _, err := svc.UploadMedia(context.Background(), []byte("audio")); !errors.Is(err, ErrVoiceUnsupported) {
		t.Errorf("UploadMedia: expected ErrVoiceUnsupported, got %v", err)
	}
	if err := svc.SendVoice(context.Background(), "15551234567", "media-1"); !errors.Is(err, ErrVoiceUnsupported) {
		t.Errorf("SendVoice: expected ErrVoiceUnsupported, got %v", err)
	}
}

func TestMockServiceRecordsMessages(t *testing.T) {
	mock := NewMockService()
	ctx := context.Background()

	if err := mock.SendText(ctx, "15551234567", "hello"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	last, ok := mock.LastText()
	if !ok || last.Body != "hello" {
		t.Errorf("LastText = %+v, ok=%v", last, ok)
	}

	mock.FailSend = true
	if err := mock.SendText(ctx, "15551234567", "again"); err == nil {
		t.Error("expected failure when FailSend is set")
	}
}
