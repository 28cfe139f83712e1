package voice

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudu/mirrorcam/internal/crop"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    Command
		wantOK  bool
	}{
		{name: "eyes", text: "show my eyes", want: Command{Kind: KindZoom, Mode: crop.ModeEyes}, wantOK: true},
		{name: "eye singular", text: "eye", want: Command{Kind: KindZoom, Mode: crop.ModeEyes}, wantOK: true},
		{name: "lips", text: "lips please", want: Command{Kind: KindZoom, Mode: crop.ModeLips}, wantOK: true},
		{name: "face", text: "back to face", want: Command{Kind: KindZoom, Mode: crop.ModeFace}, wantOK: true},
		{name: "zoom out", text: "zoom out", want: Command{Kind: KindZoom, Mode: crop.ModeWide}, wantOK: true},
		{name: "zoom out in sentence", text: "could you zoom out a bit", want: Command{Kind: KindZoom, Mode: crop.ModeWide}, wantOK: true},
		{name: "focus", text: "focus", want: Command{Kind: KindFocus}, wantOK: true},
		{name: "case insensitive", text: "FOCUS NOW", want: Command{Kind: KindFocus}, wantOK: true},
		{name: "zoom out beats face", text: "zoom out of my face", want: Command{Kind: KindZoom, Mode: crop.ModeWide}, wantOK: true},
		{name: "unknown", text: "hello there", wantOK: false},
		{name: "empty", text: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

type scriptedRecognizer struct {
	utterances []string
	errs       []error
	i          int
}

func (r *scriptedRecognizer) Listen(ctx context.Context) (string, error) {
	if r.i >= len(r.utterances) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	text := r.utterances[r.i]
	var err error
	if r.i < len(r.errs) {
		err = r.errs[r.i]
	}
	r.i++
	return text, err
}

func TestListenerPublishesParsedCommands(t *testing.T) {
	rec := &scriptedRecognizer{utterances: []string{"blah blah", "lips"}}
	l := NewListener(rec, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	select {
	case cmd := <-l.Commands():
		assert.Equal(t, Command{Kind: KindZoom, Mode: crop.ModeLips}, cmd)
	case <-time.After(time.Second):
		t.Fatal("no command published")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestListenerSurvivesRecognizerErrors(t *testing.T) {
	rec := &scriptedRecognizer{
		utterances: []string{"", "focus"},
		errs:       []error{errors.New("audio underrun"), nil},
	}
	l := NewListener(rec, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	select {
	case cmd := <-l.Commands():
		assert.Equal(t, Command{Kind: KindFocus}, cmd)
	case <-time.After(time.Second):
		t.Fatal("listener stopped on error instead of continuing")
	}
}

func TestLatestCommandWins(t *testing.T) {
	l := NewListener(nil, slog.Default())

	l.publish(Command{Kind: KindZoom, Mode: crop.ModeEyes})
	l.publish(Command{Kind: KindZoom, Mode: crop.ModeWide})

	cmd := <-l.Commands()
	require.Equal(t, crop.ModeWide, cmd.Mode)

	select {
	case extra := <-l.Commands():
		t.Fatalf("stale command retained: %+v", extra)
	default:
	}
}
