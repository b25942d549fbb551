// Package translate provides the OpenAI-backed translation and speech client.
package translate

import (
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default model selection for the OpenAI provider.
const (
	// DefaultChatModel is used for language detection and translation.
	DefaultChatModel = string(openai.ChatModelGPT4oMini)
	// DefaultSpeechModel is used for voice synthesis.
	DefaultSpeechModel = string(openai.SpeechModelGPT4oMiniTTS)
	// DefaultSpeechVoice is the synthesis voice.
	DefaultSpeechVoice = openai.AudioSpeechNewParamsVoiceAlloy
)

// undetected is the sentinel the detection prompt uses for "cannot tell".
const undetected = "und"

// chatCompleter is the minimal surface of the chat completion service,
// narrowed for mocking.
type chatCompleter interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// speechSynth is the minimal surface of the audio speech service.
type speechSynth interface {
	New(ctx context.Context, body openai.AudioSpeechNewParams, opts ...option.RequestOption) (*http.Response, error)
}

// Opts holds configuration options for the OpenAI client.
type Opts struct {
	APIKey      string
	BaseURL     string
	ChatModel   string
	SpeechModel string
}

// Option defines a configuration option for the OpenAI client.
type Option func(*Opts)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL overrides the API base URL (for proxies and compatible providers).
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithChatModel overrides the detection/translation model.
func WithChatModel(model string) Option {
	return func(o *Opts) { o.ChatModel = model }
}

// WithSpeechModel overrides the synthesis model.
func WithSpeechModel(model string) Option {
	return func(o *Opts) { o.SpeechModel = model }
}

// Client implements Translator and SpeechSynthesizer on the OpenAI API.
type Client struct {
	chat        chatCompleter
	speech      speechSynth
	chatModel   string
	speechModel string
}

var (
	_ Translator        = (*Client)(nil)
	_ Romanizer         = (*Client)(nil)
	_ SpeechSynthesizer = (*Client)(nil)
)

// NewClient initializes an OpenAI-backed client. The API key falls back to
// the OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = DefaultSpeechModel
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	cli := openai.NewClient(reqOpts...)

	return &Client{
		chat:        &cli.Chat.Completions,
		speech:      &cli.Audio.Speech,
		chatModel:   cfg.ChatModel,
		speechModel: cfg.SpeechModel,
	}, nil
}

// DetectLanguage asks the model for the BCP-47 code of text. An empty string
// is returned when the model cannot tell; the caller decides the fallback.
func (c *Client) DetectLanguage(ctx context.Context, text string) (string, error) {
	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.chatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("Identify the language of the user's message. Respond with only its BCP-47 language code (for Chinese, answer zh-CN or zh-TW). Respond with '" + undetected + "' if you cannot tell."),
			openai.UserMessage(text),
		},
	})
	if err != nil {
		return "", fmt.Errorf("language detection failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("language detection returned no choices")
	}
	code := strings.TrimSpace(resp.Choices[0].Message.Content)
	if code == "" || strings.EqualFold(code, undetected) {
		slog.Debug("translate.DetectLanguage: provider could not detect", "text_length", len(text))
		return "", nil
	}
	slog.Debug("translate.DetectLanguage: detected", "code", code)
	return code, nil
}

// Translate renders text into target. source may be empty.
func (c *Client) Translate(ctx context.Context, text, target, source string) (string, error) {
	instruction := "Translate the user's message into the language with code " + target + "."
	if source != "" {
		instruction = "Translate the user's message from the language with code " + source + " into the language with code " + target + "."
	}
	instruction += " Respond with only the translation, no commentary."

	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.chatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(instruction),
			openai.UserMessage(text),
		},
	})
	if err != nil {
		return "", fmt.Errorf("translation to %s failed: %w", target, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("translation to %s returned no choices", target)
	}
	// Providers occasionally escape entities in translated text.
	translated := html.UnescapeString(strings.TrimSpace(resp.Choices[0].Message.Content))
	if translated == "" {
		return "", fmt.Errorf("translation to %s returned empty text", target)
	}
	slog.Debug("translate.Translate: succeeded", "target", target, "length", len(translated))
	return translated, nil
}

// Romanize transliterates Japanese text into Hepburn romaji.
func (c *Client) Romanize(ctx context.Context, text string) (string, error) {
	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.chatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("Transliterate the user's Japanese message into Hepburn romaji. Respond with only the romanized text, no commentary."),
			openai.UserMessage(text),
		},
	})
	if err != nil {
		return "", fmt.Errorf("romanization failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("romanization returned no choices")
	}
	romanized := strings.TrimSpace(resp.Choices[0].Message.Content)
	if romanized == "" {
		return "", fmt.Errorf("romanization returned empty text")
	}
	slog.Debug("translate.Romanize: succeeded", "length", len(romanized))
	return romanized, nil
}

// Synthesize renders text as MP3 audio spoken in the language of voiceCode.
func (c *Client) Synthesize(ctx context.Context, text, voiceCode string) ([]byte, error) {
	resp, err := c.speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(c.speechModel),
		Voice:          DefaultSpeechVoice,
		Input:          text,
		Instructions:   openai.String("Speak naturally in the language with code " + voiceCode + "."),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, fmt.Errorf("speech synthesis for %s failed: %w", voiceCode, err)
	}
	defer resp.Body.Close()
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesized audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("speech synthesis for %s returned no audio", voiceCode)
	}
	slog.Debug("translate.Synthesize: succeeded", "voice", voiceCode, "bytes", len(audio))
	return audio, nil
}

// VerifyConnection performs one tiny detection round-trip so startup can
// report the provider as available or unavailable with a reason.
func (c *Client) VerifyConnection(ctx context.Context) error {
	if _, err := c.DetectLanguage(ctx, "Hello"); err != nil {
		return err
	}
	return nil
}
