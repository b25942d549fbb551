// Package models defines the core data structures for LangRelay.
//
// It includes the normalized inbound message unit, the decoded interactive
// selection variants, and per-sender preference records shared across modules.
package models

import (
	"errors"
)

// MessageKind classifies a normalized inbound message unit.
type MessageKind string

const (
	// KindText is a plain text message from a sender.
	KindText MessageKind = "text"
	// KindInteractiveButton is a button-reply selection.
	KindInteractiveButton MessageKind = "interactive_button"
	// KindInteractiveList is a list-reply selection.
	KindInteractiveList MessageKind = "interactive_list"
	// KindStatus is a delivery/read receipt reported by the platform.
	KindStatus MessageKind = "status"
	// KindUnsupported covers reactions, media, system events and anything
	// the router must never reply to.
	KindUnsupported MessageKind = "unsupported"
)

// IsActionable reports whether a kind may produce an outbound reply.
func (k MessageKind) IsActionable() bool {
	switch k {
	case KindText, KindInteractiveButton, KindInteractiveList:
		return true
	default:
		return false
	}
}

// SelectionKind identifies the decoded variant of an interactive reply.
type SelectionKind string

const (
	// SelectionAddLanguage adds one language to the sender's targets.
	SelectionAddLanguage SelectionKind = "add_language"
	// SelectionPreset replaces the sender's targets with a named preset.
	SelectionPreset SelectionKind = "preset"
	// SelectionClearAll empties the sender's targets.
	SelectionClearAll SelectionKind = "clear_all"
	// SelectionDone confirms the current selection.
	SelectionDone SelectionKind = "done_selecting"
	// SelectionPlayAudio requests voice playback of a cached translation.
	SelectionPlayAudio SelectionKind = "play_audio"
	// SelectionRomaji toggles romanized rendering of Japanese translations.
	// Code carries "on" or "off".
	SelectionRomaji SelectionKind = "romaji"
	// SelectionUnknown is any reply identifier the decoder does not recognize.
	SelectionUnknown SelectionKind = "unknown"
)

// Selection is the tagged decode of a raw interactive reply identifier.
// The router's transition table operates on these variants, never on raw
// string prefixes.
type Selection struct {
	Kind SelectionKind `json:"kind"`
	// Code carries the language code for add_language and play_audio.
	Code string `json:"code,omitempty"`
	// Preset carries the preset name for preset selections.
	Preset string `json:"preset,omitempty"`
	// Raw preserves the original identifier for logging.
	Raw string `json:"raw,omitempty"`
}

// MessageUnit is one normalized inbound event from a webhook delivery batch.
type MessageUnit struct {
	ID        string      `json:"id"`
	Sender    string      `json:"sender"`
	Kind      MessageKind `json:"kind"`
	Timestamp int64       `json:"timestamp"` // unix seconds as reported by the provider; 0 when absent
	Text      string      `json:"text,omitempty"`
	Selection Selection   `json:"selection,omitempty"`
}

// UserPreferences is the durable per-sender record.
type UserPreferences struct {
	Languages []string `json:"languages"`
	// UseRomaji renders Japanese translations in romaji alongside the
	// original script.
	UseRomaji bool `json:"use_romaji,omitempty"`
}

// Validation constants for inbound content.
const (
	// MaxInboundTextLength bounds the text accepted for translation.
	MaxInboundTextLength = 4096
)

// Error variables shared across modules for better error handling and testability.
var (
	// ErrPersistence marks a failed durable write. Callers must surface a
	// "try again" notice to the user rather than a false confirmation.
	ErrPersistence = errors.New("preference persistence failed")
	// ErrEmptySender is returned when a sender identifier is missing.
	ErrEmptySender = errors.New("sender cannot be empty")
	// ErrUnknownLanguage is returned for codes outside the language registry.
	ErrUnknownLanguage = errors.New("unknown language code")
	// ErrUnknownPreset is returned for preset names outside the registry.
	ErrUnknownPreset = errors.New("unknown preset name")
	// ErrNoVoice is returned when a language has no speech voice mapping.
	ErrNoVoice = errors.New("no voice mapping for language")
	// ErrProviderUnavailable marks a collaborator that failed its startup check.
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// MenuOption is one selectable entry of an interactive menu, shared by all
// messaging transports.
type MenuOption struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates an APIResponse for successful operations with result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates an APIResponse with a message and optional result.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an APIResponse for failed operations.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

// ErrorWithData creates an error APIResponse carrying diagnostic data.
func ErrorWithData(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message, Result: result}
}
