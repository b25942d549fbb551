package router

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/langrelay/langrelay/internal/langs"
	"github.com/langrelay/langrelay/internal/messaging"
	"github.com/langrelay/langrelay/internal/models"
	"github.com/langrelay/langrelay/internal/store"
	"github.com/langrelay/langrelay/internal/translate"
)

// DefaultCallTimeout bounds each outbound provider call. A timeout counts as
// a provider failure for that call only; it never cancels the rest of the
// batch.
const DefaultCallTimeout = 30 * time.Second

// senderLockStripes is the size of the per-sender lock stripe array.
const senderLockStripes = 64

// Router is the conversation state machine. Given a classified message and
// the sender's stored preferences it decides the next action and invokes the
// external collaborators to execute it.
type Router struct {
	store       store.Store
	registry    *langs.Registry
	translator  translate.Translator
	romanizer   translate.Romanizer
	synth       translate.SpeechSynthesizer
	messenger   messaging.Service
	cache       *TranslationCache
	basket      *selectionBasket
	callTimeout time.Duration

	senderLocks [senderLockStripes]sync.Mutex
}

// RouterOpts holds the collaborators and tunables for a Router.
type RouterOpts struct {
	Store       store.Store
	Registry    *langs.Registry
	Translator  translate.Translator
	Romanizer   translate.Romanizer
	Synthesizer translate.SpeechSynthesizer
	Messenger   messaging.Service
	CallTimeout time.Duration
}

// RouterOption configures a Router.
type RouterOption func(*RouterOpts)

// WithStore sets the preference store.
func WithStore(s store.Store) RouterOption {
	return func(o *RouterOpts) { o.Store = s }
}

// WithRegistry sets the language registry.
func WithRegistry(r *langs.Registry) RouterOption {
	return func(o *RouterOpts) { o.Registry = r }
}

// WithTranslator sets the translation collaborator.
func WithTranslator(t translate.Translator) RouterOption {
	return func(o *RouterOpts) { o.Translator = t }
}

// WithRomanizer sets the romanization collaborator for Japanese readings.
func WithRomanizer(r translate.Romanizer) RouterOption {
	return func(o *RouterOpts) { o.Romanizer = r }
}

// WithSynthesizer sets the speech synthesis collaborator.
func WithSynthesizer(s translate.SpeechSynthesizer) RouterOption {
	return func(o *RouterOpts) { o.Synthesizer = s }
}

// WithMessenger sets the outbound messaging service.
func WithMessenger(m messaging.Service) RouterOption {
	return func(o *RouterOpts) { o.Messenger = m }
}

// WithCallTimeout sets the per-call timeout for outbound provider calls.
func WithCallTimeout(d time.Duration) RouterOption {
	return func(o *RouterOpts) { o.CallTimeout = d }
}

// NewRouter creates a Router. Store, Registry and Messenger are required;
// Translator and Synthesizer may be nil, in which case the corresponding
// flows report the provider as unavailable instead of translating.
func NewRouter(opts ...RouterOption) (*Router, error) {
	var o RouterOpts
	for _, opt := range opts {
		opt(&o)
	}
	if o.Store == nil {
		return nil, fmt.Errorf("router requires a preference store")
	}
	if o.Registry == nil {
		return nil, fmt.Errorf("router requires a language registry")
	}
	if o.Messenger == nil {
		return nil, fmt.Errorf("router requires a messaging service")
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	return &Router{
		store:       o.Store,
		registry:    o.Registry,
		translator:  o.Translator,
		romanizer:   o.Romanizer,
		synth:       o.Synthesizer,
		messenger:   o.Messenger,
		cache:       NewTranslationCache(),
		basket:      newSelectionBasket(),
		callTimeout: o.CallTimeout,
	}, nil
}

// Cache exposes the translation cache, for tests and diagnostics.
func (r *Router) Cache() *TranslationCache { return r.cache }

func (r *Router) lockFor(sender string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(sender))
	return &r.senderLocks[h.Sum32()%senderLockStripes]
}

// Route executes the transition for one classified message. Replies to the
// same sender are serialized so they keep inbound order; different senders
// only contend when they hash to the same stripe.
func (r *Router) Route(ctx context.Context, unit models.MessageUnit) error {
	if !unit.Kind.IsActionable() {
		return nil
	}
	sender, err := r.messenger.ValidateAndCanonicalizeRecipient(unit.Sender)
	if err != nil {
		slog.Warn("Router.Route: dropping message with invalid sender", "messageID", unit.ID, "error", err)
		return nil
	}

	mu := r.lockFor(sender)
	mu.Lock()
	defer mu.Unlock()

	switch unit.Kind {
	case models.KindText:
		return r.handleText(ctx, sender, unit)
	case models.KindInteractiveButton, models.KindInteractiveList:
		return r.handleSelection(ctx, sender, unit)
	}
	return nil
}

func (r *Router) handleText(ctx context.Context, sender string, unit models.MessageUnit) error {
	targets, err := r.store.GetLanguages(sender)
	if err != nil {
		slog.Error("Router.handleText: preference lookup failed", "sender", sender, "messageID", unit.ID, "error", err)
		return r.sendText(ctx, sender, "Sorry, something went wrong on our side. Please try again.")
	}
	if len(targets) == 0 {
		return r.sendWelcome(ctx, sender)
	}
	return r.translateAndReply(ctx, sender, unit, targets)
}

func (r *Router) translateAndReply(ctx context.Context, sender string, unit models.MessageUnit, targets []string) error {
	if r.translator == nil {
		slog.Error("Router.translateAndReply: no translator configured", "sender", sender, "messageID", unit.ID)
		return r.sendText(ctx, sender, "Sorry, translation is unavailable right now. Please try again later.")
	}

	source := r.detectSource(ctx, sender, unit)

	translations := make(map[string]string, len(targets))
	for _, target := range targets {
		if !r.registry.IsSupported(target) {
			slog.Warn("Router.translateAndReply: skipping unsupported target", "sender", sender, "target", target)
			continue
		}
		if target == source {
			continue
		}
		translated, err := r.translateOne(ctx, unit.Text, target, source)
		if err != nil {
			slog.Warn("Router.translateAndReply: translation failed for target",
				"sender", sender, "messageID", unit.ID, "target", target, "error", err)
			continue
		}
		translations[target] = translated
	}

	if len(translations) == 0 {
		slog.Error("Router.translateAndReply: no translations produced",
			"sender", sender, "messageID", unit.ID, "targets", len(targets), "source", source)
		return r.sendText(ctx, sender, "Sorry, I could not translate that message. Please try again.")
	}

	r.cache.Put(sender, translations)

	romajiOn := r.romajiEnabled(sender)
	romaji := ""
	if romajiOn {
		romaji = r.romanizeJapanese(ctx, sender, unit, translations)
	}

	if err := r.sendText(ctx, sender, formatTranslations(r.registry, translations, romaji)); err != nil {
		return err
	}
	return r.sendAudioShortcuts(ctx, sender, translations, romajiOn)
}

// romajiEnabled reads the sender's romaji toggle; a lookup failure reads as
// off so the translated reply still goes out.
func (r *Router) romajiEnabled(sender string) bool {
	enabled, err := r.store.GetRomaji(sender)
	if err != nil {
		slog.Warn("Router.romajiEnabled: toggle lookup failed", "sender", sender, "error", err)
		return false
	}
	return enabled
}

// romanizeJapanese produces a romaji reading for the Japanese translation, or
// an empty string when there is none or the collaborator fails. A failure
// never blocks the combined reply.
func (r *Router) romanizeJapanese(ctx context.Context, sender string, unit models.MessageUnit, translations map[string]string) string {
	japanese, ok := translations["ja"]
	if !ok {
		return ""
	}
	if r.romanizer == nil {
		slog.Warn("Router.romanizeJapanese: no romanizer configured", "sender", sender, "messageID", unit.ID)
		return ""
	}
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	romaji, err := r.romanizer.Romanize(callCtx, japanese)
	if err != nil {
		slog.Warn("Router.romanizeJapanese: romanization failed", "sender", sender, "messageID", unit.ID, "error", err)
		return ""
	}
	return romaji
}

// detectSource asks the provider for the source language and normalizes the
// answer. Detection failure falls back to the registry's fallback language.
func (r *Router) detectSource(ctx context.Context, sender string, unit models.MessageUnit) string {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	detected, err := r.translator.DetectLanguage(callCtx, unit.Text)
	if err != nil {
		slog.Warn("Router.detectSource: detection failed, using fallback",
			"sender", sender, "messageID", unit.ID, "fallback", r.registry.Fallback(), "error", err)
		return r.registry.Fallback()
	}
	return r.registry.Normalize(detected)
}

func (r *Router) translateOne(ctx context.Context, text, target, source string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return r.translator.Translate(callCtx, text, target, source)
}

func (r *Router) handleSelection(ctx context.Context, sender string, unit models.MessageUnit) error {
	sel := unit.Selection
	switch sel.Kind {
	case models.SelectionAddLanguage:
		return r.handleAddLanguage(ctx, sender, sel.Code)
	case models.SelectionPreset:
		return r.handlePreset(ctx, sender, sel.Preset)
	case models.SelectionClearAll:
		return r.handleClearAll(ctx, sender)
	case models.SelectionDone:
		return r.handleDone(ctx, sender)
	case models.SelectionPlayAudio:
		return r.handlePlayAudio(ctx, sender, sel.Code)
	case models.SelectionRomaji:
		return r.handleRomaji(ctx, sender, sel.Code == "on")
	default:
		slog.Debug("Router.handleSelection: ignoring unknown selection",
			"sender", sender, "messageID", unit.ID, "raw", sel.Raw)
		return nil
	}
}

func (r *Router) handleAddLanguage(ctx context.Context, sender, code string) error {
	if !r.registry.IsSupported(code) {
		slog.Warn("Router.handleAddLanguage: unsupported code", "sender", sender, "code", code)
		return r.sendText(ctx, sender, "Sorry, that language is not supported.")
	}
	if err := r.store.AddLanguage(sender, code); err != nil {
		slog.Error("Router.handleAddLanguage: persistence failed", "sender", sender, "code", code, "error", err)
		return r.sendText(ctx, sender, "Sorry, I could not save that. Please try again.")
	}
	r.basket.add(sender, code)
	body := fmt.Sprintf("Added %s. Picked so far: %s.\nPick more languages or tap Done.",
		r.registry.Label(code), r.labelList(r.basket.list(sender)))
	return r.sendMenu(ctx, sender, body, []models.MenuOption{
		{ID: "done_selecting", Title: "Done", Description: "Finish selecting languages"},
		{ID: "clear_all", Title: "Start over", Description: "Clear all selected languages"},
	})
}

func (r *Router) handlePreset(ctx context.Context, sender, name string) error {
	codes, ok := r.registry.Preset(name)
	if !ok {
		slog.Warn("Router.handlePreset: unknown preset", "sender", sender, "preset", name)
		return r.sendText(ctx, sender, "Sorry, I don't know that preset.")
	}
	if err := r.store.SetLanguages(sender, codes); err != nil {
		slog.Error("Router.handlePreset: persistence failed", "sender", sender, "preset", name, "error", err)
		return r.sendText(ctx, sender, "Sorry, I could not save that. Please try again.")
	}
	r.basket.clear(sender)
	return r.sendText(ctx, sender, "Your languages are set to: "+r.labelList(codes)+"\nSend me any message and I will translate it.")
}

func (r *Router) handleClearAll(ctx context.Context, sender string) error {
	if err := r.store.Clear(sender); err != nil {
		slog.Error("Router.handleClearAll: persistence failed", "sender", sender, "error", err)
		return r.sendText(ctx, sender, "Sorry, I could not save that. Please try again.")
	}
	r.basket.clear(sender)
	r.cache.Drop(sender)
	return r.sendWelcome(ctx, sender)
}

func (r *Router) handleDone(ctx context.Context, sender string) error {
	targets, err := r.store.GetLanguages(sender)
	if err != nil {
		slog.Error("Router.handleDone: preference lookup failed", "sender", sender, "error", err)
		return r.sendText(ctx, sender, "Sorry, something went wrong on our side. Please try again.")
	}
	r.basket.clear(sender)
	if len(targets) == 0 {
		if err := r.sendText(ctx, sender, "You haven't selected any languages yet."); err != nil {
			return err
		}
		return r.sendWelcome(ctx, sender)
	}
	return r.sendText(ctx, sender, "All set! I will translate your messages to: "+r.labelList(targets))
}

func (r *Router) handleRomaji(ctx context.Context, sender string, enabled bool) error {
	if err := r.store.SetRomaji(sender, enabled); err != nil {
		slog.Error("Router.handleRomaji: persistence failed", "sender", sender, "enabled", enabled, "error", err)
		return r.sendText(ctx, sender, "Sorry, I could not save that. Please try again.")
	}
	if enabled {
		return r.sendText(ctx, sender, "Romaji is on. Japanese translations will include a romanized reading.")
	}
	return r.sendText(ctx, sender, "Romaji is off.")
}

func (r *Router) handlePlayAudio(ctx context.Context, sender, code string) error {
	text, ok := r.cache.Get(sender, code)
	if !ok {
		slog.Debug("Router.handlePlayAudio: cache miss", "sender", sender, "code", code)
		return r.sendText(ctx, sender, "That translation has expired. Send the message again to hear it.")
	}
	voice, ok := r.registry.VoiceCode(code)
	if !ok {
		slog.Warn("Router.handlePlayAudio: no voice mapping", "sender", sender, "code", code)
		return r.sendText(ctx, sender, fmt.Sprintf("Audio is not available for %s.", r.registry.DisplayName(code)))
	}
	if r.synth == nil {
		slog.Error("Router.handlePlayAudio: no synthesizer configured", "sender", sender, "code", code)
		return r.sendText(ctx, sender, "Sorry, audio is unavailable right now.")
	}

	synthCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	audio, err := r.synth.Synthesize(synthCtx, text, voice)
	cancel()
	if err != nil {
		slog.Error("Router.handlePlayAudio: synthesis failed", "sender", sender, "code", code, "error", err)
		return r.sendText(ctx, sender, "Sorry, I could not generate the audio. Please try again.")
	}

	uploadCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	mediaID, err := r.messenger.UploadMedia(uploadCtx, audio)
	cancel()
	if err != nil {
		if errors.Is(err, messaging.ErrVoiceUnsupported) {
			return r.sendText(ctx, sender, "Voice messages are not available on this channel.")
		}
		slog.Error("Router.handlePlayAudio: media upload failed", "sender", sender, "code", code, "error", err)
		return r.sendText(ctx, sender, "Sorry, I could not send the audio. Please try again.")
	}

	sendCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	if err := r.messenger.SendVoice(sendCtx, sender, mediaID); err != nil {
		slog.Error("Router.handlePlayAudio: voice send failed", "sender", sender, "code", code, "error", err)
		return r.sendText(ctx, sender, "Sorry, I could not send the audio. Please try again.")
	}
	return nil
}

// sendWelcome sends the onboarding menu: presets first, then every language
// the registry carries as an individual pick.
func (r *Router) sendWelcome(ctx context.Context, sender string) error {
	body := "Welcome! I translate your messages for you.\nChoose a preset or pick languages one by one:"
	var options []models.MenuOption
	for _, name := range r.registry.PresetNames() {
		codes, _ := r.registry.Preset(name)
		options = append(options, models.MenuOption{
			ID:          "preset_" + name,
			Title:       presetTitle(name),
			Description: r.displayList(codes),
		})
	}
	for _, code := range r.registry.Codes() {
		options = append(options, models.MenuOption{
			ID:    "add_" + code,
			Title: r.registry.Label(code),
		})
	}
	return r.sendMenu(ctx, sender, body, options)
}

// sendAudioShortcuts offers play-audio buttons for the translated languages
// that have a voice mapping, plus the romaji toggle when Japanese was among
// the targets. Nothing is sent when no option qualifies.
func (r *Router) sendAudioShortcuts(ctx context.Context, sender string, translations map[string]string, romajiOn bool) error {
	codes := make([]string, 0, len(translations))
	for code := range translations {
		if _, ok := r.registry.VoiceCode(code); ok {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	options := make([]models.MenuOption, 0, len(codes)+1)
	for _, code := range codes {
		options = append(options, models.MenuOption{
			ID:    "play_audio_" + code,
			Title: r.registry.DisplayName(code),
		})
	}
	if _, ok := translations["ja"]; ok {
		if romajiOn {
			options = append(options, models.MenuOption{
				ID:          "romaji_off",
				Title:       "Romaji off",
				Description: "Hide the romanized Japanese reading",
			})
		} else {
			options = append(options, models.MenuOption{
				ID:          "romaji_on",
				Title:       "Romaji on",
				Description: "Show a romanized Japanese reading",
			})
		}
	}
	if len(options) == 0 {
		return nil
	}
	return r.sendMenu(ctx, sender, "Tap to hear a translation:", options)
}

func (r *Router) sendText(ctx context.Context, sender, body string) error {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return r.messenger.SendText(callCtx, sender, body)
}

func (r *Router) sendMenu(ctx context.Context, sender, body string, options []models.MenuOption) error {
	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return r.messenger.SendMenu(callCtx, sender, body, options)
}

func (r *Router) labelList(codes []string) string {
	labels := make([]string, 0, len(codes))
	for _, code := range codes {
		labels = append(labels, r.registry.Label(code))
	}
	return strings.Join(labels, ", ")
}

func (r *Router) displayList(codes []string) string {
	names := make([]string, 0, len(codes))
	for _, code := range codes {
		names = append(names, r.registry.DisplayName(code))
	}
	return strings.Join(names, ", ")
}

// formatTranslations renders one combined reply, alphabetical by language
// code so the layout is stable across deliveries. A non-empty romaji reading
// is placed directly under the Japanese block.
func formatTranslations(registry *langs.Registry, translations map[string]string, romaji string) string {
	codes := make([]string, 0, len(translations))
	for code := range translations {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var sb strings.Builder
	for i, code := range codes {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(registry.Label(code))
		sb.WriteString(":\n")
		sb.WriteString(translations[code])
		if code == "ja" && romaji != "" {
			sb.WriteString("\n")
			sb.WriteString(romaji)
		}
	}
	return sb.String()
}

func presetTitle(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
