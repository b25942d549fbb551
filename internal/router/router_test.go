package router

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/langrelay/langrelay/internal/langs"
	"github.com/langrelay/langrelay/internal/messaging"
	"github.com/langrelay/langrelay/internal/models"
	"github.com/langrelay/langrelay/internal/store"
)

const testSender = "15551234567"

type mockTranslator struct {
	mu          sync.Mutex
	detectLang  string
	detectErr   error
	failTargets map[string]bool
	detectCalls int
	translated  []string
}

func (m *mockTranslator) DetectLanguage(ctx context.Context, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detectCalls++
	return m.detectLang, m.detectErr
}

func (m *mockTranslator) Translate(ctx context.Context, text, target, source string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTargets[target] {
		return "", fmt.Errorf("provider failure for %s", target)
	}
	m.translated = append(m.translated, target)
	return "[" + target + "] " + text, nil
}

type mockSynth struct {
	mu     sync.Mutex
	calls  []string
	err    error
	output []byte
}

func (m *mockSynth) Synthesize(ctx context.Context, text, voiceCode string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.calls = append(m.calls, voiceCode)
	if m.output != nil {
		return m.output, nil
	}
	return []byte("mp3"), nil
}

type mockRomanizer struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (m *mockRomanizer) Romanize(ctx context.Context, text string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.calls = append(m.calls, text)
	return "romaji: " + text, nil
}

type failingStore struct {
	*store.InMemoryStore
}

func (f *failingStore) GetLanguages(sender string) ([]string, error) {
	return nil, fmt.Errorf("%w: read failed", models.ErrPersistence)
}

func newTestRouter(t *testing.T, tr *mockTranslator, sy *mockSynth, extra ...RouterOption) (*Router, *messaging.MockService, store.Store) {
	t.Helper()
	st := store.NewInMemoryStore()
	msgr := messaging.NewMockService()
	opts := []RouterOption{
		WithStore(st),
		WithRegistry(langs.Default()),
		WithMessenger(msgr),
	}
	if tr != nil {
		opts = append(opts, WithTranslator(tr))
	}
	if sy != nil {
		opts = append(opts, WithSynthesizer(sy))
	}
	opts = append(opts, extra...)
	r, err := NewRouter(opts...)
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}
	return r, msgr, st
}

func textUnit(text string) models.MessageUnit {
	return models.MessageUnit{ID: "wamid.t", Sender: testSender, Kind: models.KindText, Text: text}
}

func selectionUnit(id string) models.MessageUnit {
	return models.MessageUnit{
		ID:        "wamid.s",
		Sender:    testSender,
		Kind:      models.KindInteractiveButton,
		Selection: DecodeSelection(id),
	}
}

func TestOnboardingTextSendsMenuNoTranslation(t *testing.T) {
	tr := &mockTranslator{detectLang: "en"}
	r, msgr, _ := newTestRouter(t, tr, nil)

	if err := r.Route(context.Background(), textUnit("hello")); err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if len(msgr.Menus) != 1 {
		t.Fatalf("expected 1 menu send, got %d", len(msgr.Menus))
	}
	if tr.detectCalls != 0 || len(tr.translated) != 0 {
		t.Errorf("onboarding must not translate: detect=%d translate=%d", tr.detectCalls, len(tr.translated))
	}
	// menu must offer presets and individual languages
	var hasPreset, hasAdd bool
	for _, opt := range msgr.Menus[0].Options {
		if strings.HasPrefix(opt.ID, "preset_") {
			hasPreset = true
		}
		if strings.HasPrefix(opt.ID, "add_") {
			hasAdd = true
		}
	}
	if !hasPreset || !hasAdd {
		t.Errorf("welcome menu missing presets or languages: %+v", msgr.Menus[0].Options)
	}
}

func TestAddLanguagesThenDone(t *testing.T) {
	r, msgr, st := newTestRouter(t, &mockTranslator{detectLang: "en"}, nil)
	ctx := context.Background()

	for _, id := range []string{"add_ja", "add_hi"} {
		if err := r.Route(ctx, selectionUnit(id)); err != nil {
			t.Fatalf("Route(%s) failed: %v", id, err)
		}
	}
	if err := r.Route(ctx, selectionUnit("done_selecting")); err != nil {
		t.Fatalf("Route(done) failed: %v", err)
	}

	got, err := st.GetLanguages(testSender)
	if err != nil {
		t.Fatalf("GetLanguages failed: %v", err)
	}
	want := []string{"ja", "hi"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("stored languages = %v, want %v", got, want)
	}

	last, ok := msgr.LastText()
	if !ok {
		t.Fatal("expected a confirmation text")
	}
	if !strings.Contains(last.Body, "Japanese") || !strings.Contains(last.Body, "Hindi") {
		t.Errorf("confirmation missing languages: %q", last.Body)
	}
}

func TestAddLanguageConfirmationListsPicks(t *testing.T) {
	r, msgr, _ := newTestRouter(t, nil, nil)
	ctx := context.Background()

	for _, id := range []string{"add_ja", "add_hi"} {
		if err := r.Route(ctx, selectionUnit(id)); err != nil {
			t.Fatalf("Route(%s) failed: %v", id, err)
		}
	}
	if len(msgr.Menus) != 2 {
		t.Fatalf("expected 2 confirmation menus, got %d", len(msgr.Menus))
	}
	body := msgr.Menus[1].Body
	if !strings.Contains(body, "Picked so far") {
		t.Errorf("confirmation missing running pick list: %q", body)
	}
	if !strings.Contains(body, "Japanese") || !strings.Contains(body, "Hindi") {
		t.Errorf("pick list missing earlier choice: %q", body)
	}
}

func TestDoneWithNothingSelectedWarnsAndReWelcomes(t *testing.T) {
	r, msgr, _ := newTestRouter(t, nil, nil)

	if err := r.Route(context.Background(), selectionUnit("done_selecting")); err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	last, ok := msgr.LastText()
	if !ok || !strings.Contains(last.Body, "haven't selected") {
		t.Errorf("expected nothing-selected warning, got %+v", last)
	}
	if len(msgr.Menus) != 1 {
		t.Errorf("expected welcome menu after warning, got %d menus", len(msgr.Menus))
	}
}

func TestPresetReplacesLanguages(t *testing.T) {
	r, _, st := newTestRouter(t, nil, nil)
	ctx := context.Background()

	if err := r.Route(ctx, selectionUnit("add_fr")); err != nil {
		t.Fatalf("Route(add_fr) failed: %v", err)
	}
	if err := r.Route(ctx, selectionUnit("preset_starter")); err != nil {
		t.Fatalf("Route(preset) failed: %v", err)
	}

	got, err := st.GetLanguages(testSender)
	if err != nil {
		t.Fatalf("GetLanguages failed: %v", err)
	}
	want, ok := langs.Default().Preset("starter")
	if !ok {
		t.Fatal("starter preset missing from default registry")
	}
	if len(got) != len(want) {
		t.Fatalf("stored = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("stored[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestReadyTextTranslatesAndCaches(t *testing.T) {
	tr := &mockTranslator{detectLang: "en"}
	r, msgr, st := newTestRouter(t, tr, nil)
	ctx := context.Background()

	if err := st.SetLanguages(testSender, []string{"ja", "hi"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := r.Route(ctx, textUnit("good morning")); err != nil {
		t.Fatalf("Route failed: %v", err)
	}

	if len(tr.translated) != 2 {
		t.Fatalf("expected 2 translate calls, got %v", tr.translated)
	}
	if len(msgr.Texts) != 1 {
		t.Fatalf("expected one combined reply, got %d", len(msgr.Texts))
	}
	body := msgr.Texts[0].Body
	if !strings.Contains(body, "[ja] good morning") || !strings.Contains(body, "[hi] good morning") {
		t.Errorf("combined reply missing translations: %q", body)
	}
	for _, code := range []string{"ja", "hi"} {
		if _, ok := r.Cache().Get(testSender, code); !ok {
			t.Errorf("cache missing %s", code)
		}
	}
	// audio shortcut menu follows the reply; Japanese also brings the
	// romaji toggle along
	if len(msgr.Menus) != 1 {
		t.Fatalf("expected audio shortcut menu, got %d menus", len(msgr.Menus))
	}
	var hasRomajiToggle bool
	for _, opt := range msgr.Menus[0].Options {
		if opt.ID == "romaji_on" {
			hasRomajiToggle = true
			continue
		}
		if !strings.HasPrefix(opt.ID, "play_audio_") {
			t.Errorf("unexpected shortcut option %q", opt.ID)
		}
	}
	if !hasRomajiToggle {
		t.Errorf("expected romaji toggle in shortcut menu: %+v", msgr.Menus[0].Options)
	}
}

func TestTranslationSkipsSourceLanguage(t *testing.T) {
	tr := &mockTranslator{detectLang: "ja"}
	r, _, st := newTestRouter(t, tr, nil)

	if err := st.SetLanguages(testSender, []string{"ja", "hi"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := r.Route(context.Background(), textUnit("おはよう")); err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if len(tr.translated) != 1 || tr.translated[0] != "hi" {
		t.Errorf("translate calls = %v, want [hi]", tr.translated)
	}
}

func TestPartialProviderFailureStillReplies(t *testing.T) {
	tr := &mockTranslator{detectLang: "en", failTargets: map[string]bool{"ja": true}}
	r, msgr, st := newTestRouter(t, tr, nil)

	if err := st.SetLanguages(testSender, []string{"ja", "hi"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := r.Route(context.Background(), textUnit("hello")); err != nil {
		t.Fatalf("Route failed: %v", err)
	}

	if len(msgr.Texts) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(msgr.Texts))
	}
	body := msgr.Texts[0].Body
	if !strings.Contains(body, "[hi] hello") {
		t.Errorf("reply missing surviving translation: %q", body)
	}
	if strings.Contains(body, "[ja]") {
		t.Errorf("reply contains failed target: %q", body)
	}
}

func TestTotalProviderFailureSendsNotice(t *testing.T) {
	tr := &mockTranslator{detectLang: "en", failTargets: map[string]bool{"ja": true, "hi": true}}
	r, msgr, st := newTestRouter(t, tr, nil)

	if err := st.SetLanguages(testSender, []string{"ja", "hi"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := r.Route(context.Background(), textUnit("hello")); err != nil {
		t.Fatalf("Route failed: %v", err)
	}

	if len(msgr.Texts) != 1 {
		t.Fatalf("expected exactly one notice, got %d", len(msgr.Texts))
	}
	if !strings.Contains(msgr.Texts[0].Body, "could not translate") {
		t.Errorf("notice body = %q", msgr.Texts[0].Body)
	}
	if len(msgr.Menus) != 0 {
		t.Errorf("no shortcut menu expected on total failure, got %d", len(msgr.Menus))
	}
}

func TestDetectionFailureFallsBackToDefaultSource(t *testing.T) {
	tr := &mockTranslator{detectErr: fmt.Errorf("detector down")}
	r, _, st := newTestRouter(t, tr, nil)

	if err := st.SetLanguages(testSender, []string{"en", "ja"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := r.Route(context.Background(), textUnit("hello")); err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	// fallback source is en, so only ja gets translated
	if len(tr.translated) != 1 || tr.translated[0] != "ja" {
		t.Errorf("translate calls = %v, want [ja]", tr.translated)
	}
}

func TestPlayAudioCached(t *testing.T) {
	sy := &mockSynth{}
	r, msgr, st := newTestRouter(t, &mockTranslator{detectLang: "en"}, sy)

	if err := st.SetLanguages(testSender, []string{"ja"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	r.Cache().Put(testSender, map[string]string{"ja": "おはよう"})

	if err := r.Route(context.Background(), selectionUnit("play_audio_ja")); err != nil {
		t.Fatalf("Route failed: %v", err)
	}

	if len(sy.calls) != 1 {
		t.Fatalf("expected 1 synthesize call, got %d", len(sy.calls))
	}
	voice, _ := langs.Default().VoiceCode("ja")
	if sy.calls[0] != voice {
		t.Errorf("voice = %q, want %q", sy.calls[0], voice)
	}
	if len(msgr.Uploads) != 1 {
		t.Errorf("expected 1 media upload, got %d", len(msgr.Uploads))
	}
	if len(msgr.Voices) != 1 {
		t.Errorf("expected 1 voice send, got %d", len(msgr.Voices))
	}
}

func TestPlayAudioNotCachedReportsExpired(t *testing.T) {
	sy := &mockSynth{}
	r, msgr, _ := newTestRouter(t, nil, sy)

	if err := r.Route(context.Background(), selectionUnit("play_audio_fr")); err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if len(sy.calls) != 0 {
		t.Errorf("no synthesize call expected, got %d", len(sy.calls))
	}
	last, ok := msgr.LastText()
	if !ok || !strings.Contains(last.Body, "expired") {
		t.Errorf("expected expired notice, got %+v", last)
	}
}

func TestRomajiToggleOnAddsReading(t *testing.T) {
	tr := &mockTranslator{detectLang: "en"}
	ro := &mockRomanizer{}
	r, msgr, st := newTestRouter(t, tr, nil, WithRomanizer(ro))
	ctx := context.Background()

	if err := st.SetLanguages(testSender, []string{"ja"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := r.Route(ctx, selectionUnit("romaji_on")); err != nil {
		t.Fatalf("Route(romaji_on) failed: %v", err)
	}
	enabled, err := st.GetRomaji(testSender)
	if err != nil || !enabled {
		t.Fatalf("toggle not persisted: enabled=%v err=%v", enabled, err)
	}
	last, ok := msgr.LastText()
	if !ok || !strings.Contains(last.Body, "Romaji is on") {
		t.Errorf("expected toggle confirmation, got %+v", last)
	}

	if err := r.Route(ctx, textUnit("good morning")); err != nil {
		t.Fatalf("Route(text) failed: %v", err)
	}
	reply, ok := msgr.LastText()
	if !ok {
		t.Fatal("expected a combined reply")
	}
	if !strings.Contains(reply.Body, "[ja] good morning") {
		t.Errorf("reply missing translation: %q", reply.Body)
	}
	if !strings.Contains(reply.Body, "romaji: [ja] good morning") {
		t.Errorf("reply missing romanized reading: %q", reply.Body)
	}
	if len(ro.calls) != 1 || ro.calls[0] != "[ja] good morning" {
		t.Errorf("romanizer calls = %v", ro.calls)
	}
	// shortcut menu now offers turning romaji back off
	menu := msgr.Menus[len(msgr.Menus)-1]
	var hasOff bool
	for _, opt := range menu.Options {
		if opt.ID == "romaji_off" {
			hasOff = true
		}
	}
	if !hasOff {
		t.Errorf("expected romaji_off option: %+v", menu.Options)
	}
}

func TestRomajiToggleOffRestoresPlainReply(t *testing.T) {
	tr := &mockTranslator{detectLang: "en"}
	ro := &mockRomanizer{}
	r, msgr, st := newTestRouter(t, tr, nil, WithRomanizer(ro))
	ctx := context.Background()

	if err := st.SetLanguages(testSender, []string{"ja"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := st.SetRomaji(testSender, true); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := r.Route(ctx, selectionUnit("romaji_off")); err != nil {
		t.Fatalf("Route(romaji_off) failed: %v", err)
	}
	enabled, _ := st.GetRomaji(testSender)
	if enabled {
		t.Error("toggle should be off")
	}
	if err := r.Route(ctx, textUnit("hello")); err != nil {
		t.Fatalf("Route(text) failed: %v", err)
	}
	reply, _ := msgr.LastText()
	if strings.Contains(reply.Body, "romaji:") {
		t.Errorf("reply should not carry a reading when off: %q", reply.Body)
	}
	if len(ro.calls) != 0 {
		t.Errorf("romanizer should not be called when off: %v", ro.calls)
	}
}

func TestRomanizationFailureStillReplies(t *testing.T) {
	tr := &mockTranslator{detectLang: "en"}
	ro := &mockRomanizer{err: fmt.Errorf("romanizer down")}
	r, msgr, st := newTestRouter(t, tr, nil, WithRomanizer(ro))
	ctx := context.Background()

	if err := st.SetLanguages(testSender, []string{"ja"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := st.SetRomaji(testSender, true); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := r.Route(ctx, textUnit("hello")); err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	reply, ok := msgr.LastText()
	if !ok || !strings.Contains(reply.Body, "[ja] hello") {
		t.Errorf("translation must survive romanizer failure: %+v", reply)
	}
	if strings.Contains(reply.Body, "romaji:") {
		t.Errorf("no reading expected on failure: %q", reply.Body)
	}
}

func TestClearAllResetsStateAndReWelcomes(t *testing.T) {
	r, msgr, st := newTestRouter(t, nil, nil)
	ctx := context.Background()

	if err := st.SetLanguages(testSender, []string{"ja"}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := st.SetRomaji(testSender, true); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	r.Cache().Put(testSender, map[string]string{"ja": "text"})

	if err := r.Route(ctx, selectionUnit("clear_all")); err != nil {
		t.Fatalf("Route failed: %v", err)
	}

	got, err := st.GetLanguages(testSender)
	if err != nil {
		t.Fatalf("GetLanguages failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("languages not cleared: %v", got)
	}
	if _, ok := r.Cache().Get(testSender, "ja"); ok {
		t.Error("translation cache not dropped")
	}
	if enabled, _ := st.GetRomaji(testSender); enabled {
		t.Error("romaji toggle not reset")
	}
	if len(msgr.Menus) != 1 {
		t.Errorf("expected welcome menu, got %d menus", len(msgr.Menus))
	}
}

func TestUnknownSelectionSendsNothing(t *testing.T) {
	r, msgr, _ := newTestRouter(t, nil, nil)

	if err := r.Route(context.Background(), selectionUnit("mystery_button")); err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if len(msgr.Texts) != 0 || len(msgr.Menus) != 0 {
		t.Errorf("unknown selection produced output: texts=%d menus=%d", len(msgr.Texts), len(msgr.Menus))
	}
}

func TestStatusAndUnsupportedDoNothing(t *testing.T) {
	r, msgr, _ := newTestRouter(t, nil, nil)
	ctx := context.Background()

	for _, kind := range []models.MessageKind{models.KindStatus, models.KindUnsupported} {
		unit := models.MessageUnit{ID: "wamid.x", Sender: testSender, Kind: kind}
		if err := r.Route(ctx, unit); err != nil {
			t.Fatalf("Route(%s) failed: %v", kind, err)
		}
	}
	if len(msgr.Texts) != 0 || len(msgr.Menus) != 0 {
		t.Errorf("non-actionable kinds produced output: texts=%d menus=%d", len(msgr.Texts), len(msgr.Menus))
	}
}

func TestPersistenceFailureSendsTryAgain(t *testing.T) {
	msgr := messaging.NewMockService()
	r, err := NewRouter(
		WithStore(&failingStore{store.NewInMemoryStore()}),
		WithRegistry(langs.Default()),
		WithMessenger(msgr),
		WithTranslator(&mockTranslator{detectLang: "en"}),
	)
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}

	if err := r.Route(context.Background(), textUnit("hello")); err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	last, ok := msgr.LastText()
	if !ok || !strings.Contains(last.Body, "try again") {
		t.Errorf("expected try-again notice, got %+v", last)
	}
}

func TestAddUnsupportedLanguageRejected(t *testing.T) {
	r, msgr, st := newTestRouter(t, nil, nil)

	if err := r.Route(context.Background(), selectionUnit("add_xx")); err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	got, err := st.GetLanguages(testSender)
	if err != nil {
		t.Fatalf("GetLanguages failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("unsupported code stored: %v", got)
	}
	last, ok := msgr.LastText()
	if !ok || !strings.Contains(last.Body, "not supported") {
		t.Errorf("expected rejection notice, got %+v", last)
	}
}
