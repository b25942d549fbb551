// Package router contains the conversation core: the message classifier, the
// per-sender translation cache, and the state machine that turns classified
// inbound messages into outbound replies.
package router

import (
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/langrelay/langrelay/internal/models"
)

// DefaultStalenessThreshold is the maximum age of a text message before it is
// classified as unsupported. Protects against replaying provider backlog
// after a redeploy.
const DefaultStalenessThreshold = 300 * time.Second

// Classifier normalizes raw inbound messages into MessageUnits. Pure with
// respect to external state; its only inputs besides the message are the bot
// identity and the clock.
type Classifier struct {
	botNumber string
	staleness time.Duration
	now       func() time.Time
}

// ClassifierOpts holds configuration for a Classifier.
type ClassifierOpts struct {
	// BotNumber is the bot's own sender identity. Messages from this number
	// are classified as unsupported to break reply loops.
	BotNumber string
	// Staleness is the maximum text-message age; zero means the default.
	Staleness time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*ClassifierOpts)

// WithBotNumber sets the bot's own identity for the self-message loop guard.
func WithBotNumber(number string) ClassifierOption {
	return func(o *ClassifierOpts) { o.BotNumber = number }
}

// WithStaleness sets the text staleness threshold.
func WithStaleness(d time.Duration) ClassifierOption {
	return func(o *ClassifierOpts) { o.Staleness = d }
}

// WithClock sets the time source, for tests.
func WithClock(now func() time.Time) ClassifierOption {
	return func(o *ClassifierOpts) { o.Now = now }
}

// NewClassifier creates a Classifier with the given options.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	var o ClassifierOpts
	for _, opt := range opts {
		opt(&o)
	}
	if o.Staleness <= 0 {
		o.Staleness = DefaultStalenessThreshold
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return &Classifier{botNumber: digitsOnly(o.BotNumber), staleness: o.Staleness, now: o.Now}
}

// Classify inspects one raw inbound message and produces a dispatchable
// MessageUnit. Anything not recognized, self-sent, or stale comes back as
// unsupported and never reaches the router's reply logic.
func (c *Classifier) Classify(raw models.InboundMessage) models.MessageUnit {
	unit := models.MessageUnit{
		ID:     raw.ID,
		Sender: raw.From,
		Kind:   models.KindUnsupported,
	}
	if ts, err := strconv.ParseInt(raw.Timestamp, 10, 64); err == nil {
		unit.Timestamp = ts
	}

	if raw.From == "" {
		return unit
	}
	if c.botNumber != "" && digitsOnly(raw.From) == c.botNumber {
		slog.Debug("Classifier.Classify: dropping self-message", "messageID", raw.ID)
		return unit
	}

	switch raw.Type {
	case "text":
		if raw.Text == nil || strings.TrimSpace(raw.Text.Body) == "" {
			return unit
		}
		if unit.Timestamp > 0 {
			age := c.now().Sub(time.Unix(unit.Timestamp, 0))
			if age > c.staleness {
				slog.Debug("Classifier.Classify: dropping stale text", "messageID", raw.ID, "age", age)
				return unit
			}
		}
		unit.Kind = models.KindText
		unit.Text = truncateText(raw.Text.Body, models.MaxInboundTextLength)
	case "interactive":
		if raw.Interactive == nil {
			return unit
		}
		switch raw.Interactive.Type {
		case "button_reply":
			if raw.Interactive.ButtonReply == nil {
				return unit
			}
			unit.Kind = models.KindInteractiveButton
			unit.Selection = DecodeSelection(raw.Interactive.ButtonReply.ID)
		case "list_reply":
			if raw.Interactive.ListReply == nil {
				return unit
			}
			unit.Kind = models.KindInteractiveList
			unit.Selection = DecodeSelection(raw.Interactive.ListReply.ID)
		}
	}
	return unit
}

// DecodeSelection decodes a raw interactive reply identifier into its tagged
// variant. Identifiers outside the known vocabulary decode to
// SelectionUnknown with the raw value preserved for logging.
func DecodeSelection(id string) models.Selection {
	sel := models.Selection{Raw: id}
	switch {
	case id == "clear_all":
		sel.Kind = models.SelectionClearAll
	case id == "done_selecting":
		sel.Kind = models.SelectionDone
	case id == "romaji_on":
		sel.Kind = models.SelectionRomaji
		sel.Code = "on"
	case id == "romaji_off":
		sel.Kind = models.SelectionRomaji
		sel.Code = "off"
	case strings.HasPrefix(id, "play_audio_") && len(id) > len("play_audio_"):
		sel.Kind = models.SelectionPlayAudio
		sel.Code = id[len("play_audio_"):]
	case strings.HasPrefix(id, "preset_") && len(id) > len("preset_"):
		sel.Kind = models.SelectionPreset
		sel.Preset = id[len("preset_"):]
	case strings.HasPrefix(id, "add_") && len(id) > len("add_"):
		sel.Kind = models.SelectionAddLanguage
		sel.Code = id[len("add_"):]
	default:
		sel.Kind = models.SelectionUnknown
	}
	return sel
}

// truncateText bounds s to at most max bytes, backing off to the nearest
// rune boundary so the cut never leaves an invalid UTF-8 tail.
func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
