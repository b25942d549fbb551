// Package translate defines the translation and speech-synthesis collaborator
// interfaces consumed by the router, plus the OpenAI-backed implementation.
package translate

import (
	"context"
)

// Translator detects and translates text. Implementations return an error for
// provider failures; the router recovers per target and never aborts the
// remaining targets on one failure.
type Translator interface {
	// DetectLanguage returns the detected language code for text, or an empty
	// string when the provider cannot tell.
	DetectLanguage(ctx context.Context, text string) (string, error)

	// Translate renders text into the target language. source may be empty,
	// in which case the provider infers it.
	Translate(ctx context.Context, text, target, source string) (string, error)
}

// Romanizer transliterates Japanese text into Hepburn romaji.
type Romanizer interface {
	Romanize(ctx context.Context, text string) (string, error)
}

// SpeechSynthesizer renders text as spoken audio for a given voice code
// (e.g. "ja-JP"). The returned bytes are an encoded audio file ready for
// media upload.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voiceCode string) ([]byte, error)
}
