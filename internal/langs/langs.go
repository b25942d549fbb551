// Package langs provides the language registry: the set of supported target
// languages, their display metadata, the language-to-voice mapping used for
// speech synthesis, and named presets offered during onboarding.
//
// The registry is data, not design: the embedded default set can be replaced
// wholesale by pointing the loader at an external YAML file.
package langs

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "embed"

	"gopkg.in/yaml.v3"
)

//go:embed languages.yaml
var defaultRegistryYAML []byte

// Language describes one supported target language.
type Language struct {
	Code   string `yaml:"code"`   // translation code, e.g. "ja" or "zh-CN"
	Name   string `yaml:"name"`   // English display name
	Native string `yaml:"native"` // endonym shown in menus
	Flag   string `yaml:"flag"`   // emoji flag shown in menus
	Voice  string `yaml:"voice"`  // speech voice code, e.g. "ja-JP"; empty means no audio
}

// Registry holds the supported languages in declaration order plus presets.
type Registry struct {
	fallback string
	order    []string
	byCode   map[string]Language
	presets  map[string][]string
}

type registryFile struct {
	Fallback  string              `yaml:"fallback"`
	Languages []Language          `yaml:"languages"`
	Presets   map[string][]string `yaml:"presets"`
}

// Load parses a registry from YAML bytes.
func Load(data []byte) (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal language registry: %w", err)
	}
	if len(f.Languages) == 0 {
		return nil, fmt.Errorf("language registry is empty")
	}
	r := &Registry{
		fallback: f.Fallback,
		byCode:   make(map[string]Language, len(f.Languages)),
		presets:  make(map[string][]string, len(f.Presets)),
	}
	for _, l := range f.Languages {
		if l.Code == "" {
			return nil, fmt.Errorf("language entry without code")
		}
		if _, dup := r.byCode[l.Code]; dup {
			return nil, fmt.Errorf("duplicate language code %q", l.Code)
		}
		r.byCode[l.Code] = l
		r.order = append(r.order, l.Code)
	}
	if r.fallback == "" {
		r.fallback = r.order[0]
	}
	if _, ok := r.byCode[r.fallback]; !ok {
		return nil, fmt.Errorf("fallback language %q not in registry", r.fallback)
	}
	for name, codes := range f.Presets {
		for _, c := range codes {
			if _, ok := r.byCode[c]; !ok {
				return nil, fmt.Errorf("preset %q references unknown language %q", name, c)
			}
		}
		r.presets[name] = codes
	}
	return r, nil
}

// LoadFile loads a registry from path, or the embedded default set when path
// is empty.
func LoadFile(path string) (*Registry, error) {
	if path == "" {
		slog.Debug("langs.LoadFile: using embedded default registry")
		return Load(defaultRegistryYAML)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read language registry %s: %w", path, err)
	}
	slog.Info("langs.LoadFile: loaded language registry", "path", path)
	return Load(data)
}

// Default returns the embedded registry. It panics only if the embedded data
// is corrupt, which is a build defect.
func Default() *Registry {
	r, err := Load(defaultRegistryYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded language registry invalid: %v", err))
	}
	return r
}

// IsSupported reports whether code is in the registry.
func (r *Registry) IsSupported(code string) bool {
	_, ok := r.byCode[code]
	return ok
}

// Get returns the language for code.
func (r *Registry) Get(code string) (Language, bool) {
	l, ok := r.byCode[code]
	return l, ok
}

// Codes returns all supported codes in declaration order.
func (r *Registry) Codes() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// DisplayName returns the display name for code, or the upper-cased code for
// unknown languages.
func (r *Registry) DisplayName(code string) string {
	if l, ok := r.byCode[code]; ok {
		return l.Name
	}
	return strings.ToUpper(code)
}

// Label returns the flag-and-native-name label used in menus and replies.
func (r *Registry) Label(code string) string {
	l, ok := r.byCode[code]
	if !ok {
		return strings.ToUpper(code)
	}
	return fmt.Sprintf("%s %s", l.Flag, l.Native)
}

// VoiceCode returns the speech voice code for a language. The second return
// is false when the language is unknown or carries no voice mapping.
func (r *Registry) VoiceCode(code string) (string, bool) {
	l, ok := r.byCode[code]
	if !ok || l.Voice == "" {
		return "", false
	}
	return l.Voice, true
}

// Fallback returns the fallback source language used when detection fails.
func (r *Registry) Fallback() string {
	return r.fallback
}

// Preset returns the codes of a named preset.
func (r *Registry) Preset(name string) ([]string, bool) {
	codes, ok := r.presets[name]
	if !ok {
		return nil, false
	}
	out := make([]string, len(codes))
	copy(out, codes)
	return out, true
}

// PresetNames returns the defined preset names, sorted for stable menus.
func (r *Registry) PresetNames() []string {
	names := make([]string, 0, len(r.presets))
	for name := range r.presets {
		names = append(names, name)
	}
	// insertion order of maps is random; keep menus deterministic
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j] < names[j-1]; j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}
	return names
}

// Normalize collapses a detected language code onto the registry.
//
// Romanized-script tags (xx-Latn) collapse to the fallback language, the two
// Chinese script variants stay distinct, every other regional variant
// truncates to its base subtag, and anything still unknown falls back.
func (r *Registry) Normalize(detected string) string {
	if detected == "" {
		return r.fallback
	}
	if strings.HasSuffix(detected, "-Latn") {
		slog.Debug("langs.Normalize: romanized script collapsed to fallback", "detected", detected, "fallback", r.fallback)
		return r.fallback
	}
	if idx := strings.Index(detected, "-"); idx > 0 {
		base := detected[:idx]
		if base == "zh" {
			if detected == "zh-CN" || detected == "zh-TW" {
				return detected
			}
			return "zh-CN"
		}
		detected = base
	}
	if r.IsSupported(detected) {
		return detected
	}
	slog.Warn("langs.Normalize: unknown language code, using fallback", "detected", detected, "fallback", r.fallback)
	return r.fallback
}
