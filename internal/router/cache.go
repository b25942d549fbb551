package router

import "sync"

// TranslationCache keeps the most recent translation set per sender, in
// memory only. It exists to serve a "play audio" follow-up without
// re-translating. Entries are overwritten wholesale on each new translation
// and are never persisted; a miss means the cached content expired.
type TranslationCache struct {
	mu      sync.RWMutex
	entries map[string]map[string]string
}

// NewTranslationCache creates an empty cache.
func NewTranslationCache() *TranslationCache {
	return &TranslationCache{entries: make(map[string]map[string]string)}
}

// Put replaces the sender's cached translations with the given mapping from
// language code to translated text. The map is copied.
func (c *TranslationCache) Put(sender string, translations map[string]string) {
	cp := make(map[string]string, len(translations))
	for code, text := range translations {
		cp[code] = text
	}
	c.mu.Lock()
	c.entries[sender] = cp
	c.mu.Unlock()
}

// Get returns the cached translation for a sender and language code. The
// second return is false when nothing is cached for that pair; callers must
// treat that as expired, never as empty content.
func (c *TranslationCache) Get(sender, code string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	text, ok := c.entries[sender][code]
	return text, ok
}

// Drop removes all cached translations for a sender.
func (c *TranslationCache) Drop(sender string) {
	c.mu.Lock()
	delete(c.entries, sender)
	c.mu.Unlock()
}
