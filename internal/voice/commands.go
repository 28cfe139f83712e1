// Package voice turns recognized speech into mirror commands. The speech
// engine itself is an external collaborator behind the Recognizer interface;
// this package owns the keyword matching and the latest-command handoff.
package voice

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dudu/mirrorcam/internal/crop"
)

// Kind distinguishes command families.
type Kind int

const (
	// KindZoom switches the display zoom mode.
	KindZoom Kind = iota + 1
	// KindFocus requests an autofocus search.
	KindFocus
)

// Command is one parsed voice command.
type Command struct {
	Kind Kind
	Mode crop.ZoomMode // set when Kind == KindZoom
}

// keywords are checked in order against the recognized text; the first
// phrase contained in the text wins. "zoom out" must precede the single-word
// phrases so it is not shadowed by an accidental match.
var keywords = []struct {
	phrase string
	cmd    Command
}{
	{"zoom out", Command{Kind: KindZoom, Mode: crop.ModeWide}},
	{"focus", Command{Kind: KindFocus}},
	{"eye", Command{Kind: KindZoom, Mode: crop.ModeEyes}},
	{"lips", Command{Kind: KindZoom, Mode: crop.ModeLips}},
	{"face", Command{Kind: KindZoom, Mode: crop.ModeFace}},
}

// Parse matches recognized text against the keyword table. Matching is
// case-insensitive substring containment, so "please zoom out now" works.
func Parse(text string) (Command, bool) {
	text = strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(text, k.phrase) {
			return k.cmd, true
		}
	}
	return Command{}, false
}

// Recognizer is the external speech-to-text collaborator. Listen blocks
// until an utterance is recognized or ctx is cancelled.
type Recognizer interface {
	Listen(ctx context.Context) (string, error)
}

// errorBackoff prevents a hot loop when the audio device misbehaves.
const errorBackoff = 100 * time.Millisecond

// Listener runs the recognition loop and publishes parsed commands into a
// single-slot channel: the latest command is authoritative, an unconsumed
// older one is dropped.
type Listener struct {
	rec Recognizer
	out chan Command
	log *slog.Logger
}

// NewListener creates a listener around a recognizer.
func NewListener(rec Recognizer, log *slog.Logger) *Listener {
	return &Listener{
		rec: rec,
		out: make(chan Command, 1),
		log: log,
	}
}

// Commands is the consumer side of the latest-command slot.
func (l *Listener) Commands() <-chan Command {
	return l.out
}

// Run listens until ctx is cancelled. Recognition errors are logged and the
// loop continues; they never terminate command ingestion.
func (l *Listener) Run(ctx context.Context) {
	for {
		text, err := l.rec.Listen(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			l.log.Warn("voice recognition error", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(errorBackoff):
			}
			continue
		}
		if text == "" {
			continue
		}

		cmd, ok := Parse(text)
		if !ok {
			l.log.Debug("no command in utterance", "text", text)
			continue
		}
		l.log.Info("voice command", "text", text, "kind", cmd.Kind, "mode", cmd.Mode)
		l.publish(cmd)
	}
}

// publish overwrites any unconsumed command so the consumer always sees the
// newest one.
func (l *Listener) publish(cmd Command) {
	select {
	case l.out <- cmd:
	default:
		select {
		case <-l.out:
		default:
		}
		l.out <- cmd
	}
}
