// Package output implements the session policy engine: it turns a stream
// of candidate text events into a filtered, formatted, rate-limited stream
// of sink calls, and keeps a single-slot "repeat last" buffer.
package output

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/LordLuceus/melonaccess/internal/speech"
	"github.com/LordLuceus/melonaccess/internal/textnorm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Built-in utterance categories. Values below CustomCategoryBase are a
// fixed public contract; callers define their own from CustomCategoryBase
// up.
const (
	CategoryDialogue = iota
	CategoryNarrator
	CategoryMenu
	CategoryMenuChoice
	CategorySystem
)

// CustomCategoryBase is the first category value available to callers.
const CustomCategoryBase = 100

// DefaultSuppressionWindow is how long an identical formatted string is
// dropped rather than re-spoken.
const DefaultSuppressionWindow = 500 * time.Millisecond

// FormatFunc fully replaces the default speaker-prefix formatting. It
// receives the already-normalized text.
type FormatFunc func(speaker, text string, category int) string

// RepeatPredicate fully replaces the default repeat-worthiness filter
// (dialogue and narration).
type RepeatPredicate func(category int) bool

// Utterance is a single accepted output event.
type Utterance struct {
	Speaker   string
	Text      string
	Category  int
	Formatted string
	At        time.Time
}

type repeatEntry struct {
	speaker  string
	text     string
	category int
}

// Recorder receives every emitted utterance, e.g. for the history store.
// Implementations must not call back into the Coordinator.
type Recorder interface {
	Record(u Utterance)
}

// Coordinator owns the per-session output state: the last emission used
// for duplicate suppression and the repeat buffer. All configuration is
// mutable at runtime and read at call time. Safe for concurrent use; each
// Output call's suppression check and state update are atomic with
// respect to the others.
type Coordinator struct {
	norm   *textnorm.Normalizer
	sink   speech.Sink
	logger *slog.Logger
	clock  func() time.Time

	mu       sync.Mutex
	lastText string
	lastAt   time.Time
	repeat   *repeatEntry
	window   time.Duration
	logging  bool
	braille  bool
	names    map[int]string
	formatFn FormatFunc
	repeatFn RepeatPredicate
	recorder Recorder

	emitted    metric.Int64Counter
	suppressed metric.Int64Counter
}

func NewCoordinator(norm *textnorm.Normalizer, sink speech.Sink, log *slog.Logger) *Coordinator {
	c := &Coordinator{
		norm:    norm,
		sink:    sink,
		logger:  log.With(slog.String("component", "output-coordinator")),
		clock:   time.Now,
		window:  DefaultSuppressionWindow,
		logging: true,
		braille: true,
		names: map[int]string{
			CategoryDialogue:   "dialogue",
			CategoryNarrator:   "narrator",
			CategoryMenu:       "menu",
			CategoryMenuChoice: "menu-choice",
			CategorySystem:     "system",
		},
	}
	c.initMetrics()
	return c
}

func (c *Coordinator) initMetrics() {
	meter := otel.Meter("github.com/LordLuceus/melonaccess/output")
	var err error
	c.emitted, err = meter.Int64Counter("utterances_emitted_total",
		metric.WithDescription("Utterances delivered to the output sink"))
	if err != nil {
		c.logger.Warn("failed to initialize emitted counter", slog.String("error", err.Error()))
	}
	c.suppressed, err = meter.Int64Counter("utterances_suppressed_total",
		metric.WithDescription("Utterances dropped as duplicates inside the suppression window"))
	if err != nil {
		c.logger.Warn("failed to initialize suppressed counter", slog.String("error", err.Error()))
	}
}

// Output accepts one candidate text event. Blank text is a no-op. The
// event is normalized and formatted, dropped if it repeats the previous
// emission inside the suppression window, stored for RepeatLast when its
// category qualifies, and finally handed to the sink.
func (c *Coordinator) Output(speaker, text string, category int) {
	if strings.TrimSpace(text) == "" {
		return
	}
	formatted := c.Format(speaker, text, category)
	if formatted == "" {
		return
	}
	now := c.clock()

	c.mu.Lock()
	if formatted == c.lastText && now.Sub(c.lastAt) < c.window {
		// The window is measured from the original emission; a suppressed
		// attempt must not refresh the timestamp.
		c.mu.Unlock()
		c.count(c.suppressed, category)
		return
	}
	c.lastText = formatted
	c.lastAt = now
	if c.storeForRepeatLocked(category) {
		c.repeat = &repeatEntry{speaker: speaker, text: text, category: category}
	}
	c.emitLocked(formatted, category)
	recorder := c.recorder
	c.mu.Unlock()
	c.count(c.emitted, category)
	if recorder != nil {
		recorder.Record(Utterance{Speaker: speaker, Text: text, Category: category, Formatted: formatted, At: now})
	}
}

// Announce is sugar for speaker-less system messages.
func (c *Coordinator) Announce(text string) {
	c.Output("", text, CategorySystem)
}

// Format normalizes text and applies speaker-prefix policy: dialogue with
// a speaker becomes "Speaker: text", everything else passes through. A
// registered override replaces the default policy entirely. Returns the
// empty string when normalization leaves nothing to say.
func (c *Coordinator) Format(speaker, text string, category int) string {
	cleaned := c.norm.Clean(text)
	if cleaned == "" {
		return ""
	}
	c.mu.Lock()
	override := c.formatFn
	c.mu.Unlock()
	if override != nil {
		return override(speaker, cleaned, category)
	}
	if category == CategoryDialogue && strings.TrimSpace(speaker) != "" {
		return speaker + ": " + cleaned
	}
	return cleaned
}

// RepeatLast re-emits the buffered utterance. It bypasses duplicate
// suppression and leaves both the suppression state and the buffer itself
// untouched, so it can be invoked any number of times.
func (c *Coordinator) RepeatLast() {
	c.mu.Lock()
	entry := c.repeat
	c.mu.Unlock()
	if entry == nil {
		c.logger.Info("nothing to repeat")
		return
	}
	formatted := c.Format(entry.speaker, entry.text, entry.category)
	if formatted == "" {
		return
	}
	c.mu.Lock()
	c.emitLocked(formatted, entry.category)
	recorder := c.recorder
	c.mu.Unlock()
	c.count(c.emitted, entry.category)
	if recorder != nil {
		recorder.Record(Utterance{Speaker: entry.speaker, Text: entry.text, Category: entry.category, Formatted: formatted, At: c.clock()})
	}
}

// Stop forwards to the sink without touching session state.
func (c *Coordinator) Stop() {
	if err := c.sink.Stop(); err != nil {
		c.logger.Error("stop failed", slog.String("error", err.Error()))
	}
}

// ClearRepeatBuffer empties the repeat buffer.
func (c *Coordinator) ClearRepeatBuffer() {
	c.mu.Lock()
	c.repeat = nil
	c.mu.Unlock()
}

// SetSuppressionWindow adjusts the duplicate-suppression interval.
func (c *Coordinator) SetSuppressionWindow(d time.Duration) {
	c.mu.Lock()
	c.window = d
	c.mu.Unlock()
}

// SetLoggingEnabled gates the per-utterance info log line.
func (c *Coordinator) SetLoggingEnabled(enabled bool) {
	c.mu.Lock()
	c.logging = enabled
	c.mu.Unlock()
}

// SetBrailleEnabled gates braille mirroring of emitted utterances.
func (c *Coordinator) SetBrailleEnabled(enabled bool) {
	c.mu.Lock()
	c.braille = enabled
	c.mu.Unlock()
}

// RegisterCategoryName maps a category value to a display name used in
// logs.
func (c *Coordinator) RegisterCategoryName(category int, name string) {
	c.mu.Lock()
	c.names[category] = name
	c.mu.Unlock()
}

// SetFormatOverride installs fn as the formatting policy; nil restores the
// default.
func (c *Coordinator) SetFormatOverride(fn FormatFunc) {
	c.mu.Lock()
	c.formatFn = fn
	c.mu.Unlock()
}

// SetRepeatPredicate installs fn as the repeat-worthiness filter; nil
// restores the default.
func (c *Coordinator) SetRepeatPredicate(fn RepeatPredicate) {
	c.mu.Lock()
	c.repeatFn = fn
	c.mu.Unlock()
}

// SetRecorder installs a recorder for emitted utterances; nil disables
// recording.
func (c *Coordinator) SetRecorder(r Recorder) {
	c.mu.Lock()
	c.recorder = r
	c.mu.Unlock()
}

func (c *Coordinator) storeForRepeatLocked(category int) bool {
	if c.repeatFn != nil {
		return c.repeatFn(category)
	}
	return category == CategoryDialogue || category == CategoryNarrator
}

func (c *Coordinator) emitLocked(formatted string, category int) {
	if err := c.sink.Speak(formatted, false); err != nil {
		c.logger.Error("speak failed", slog.String("error", err.Error()))
	}
	if c.braille {
		if err := c.sink.DisplayBraille(formatted); err != nil {
			c.logger.Error("braille output failed", slog.String("error", err.Error()))
		}
	}
	if c.logging {
		c.logger.Info("utterance",
			slog.String("category", c.categoryLabelLocked(category)),
			slog.String("text", formatted))
	}
}

func (c *Coordinator) categoryLabelLocked(category int) string {
	if name, ok := c.names[category]; ok {
		return name
	}
	return strconv.Itoa(category)
}

func (c *Coordinator) count(counter metric.Int64Counter, category int) {
	if counter == nil {
		return
	}
	counter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.Int("category", category)))
}
