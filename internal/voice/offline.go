package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/antoniostano/voicechat/internal/audio"
)

// OfflineSynthesizer renders speech without a network provider.
type OfflineSynthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// CommandSynthesizer pipes text into a local TTS command and reads audio from
// its stdout. Raw PCM16 output is wrapped into WAV.
type CommandSynthesizer struct {
	argv       []string
	format     string
	sampleRate int
	timeout    time.Duration
}

func NewCommandSynthesizer(command, format string, sampleRate int, timeout time.Duration) *CommandSynthesizer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CommandSynthesizer{
		argv:       strings.Fields(command),
		format:     strings.ToLower(strings.TrimSpace(format)),
		sampleRate: sampleRate,
		timeout:    timeout,
	}
}

// Available reports whether the command resolves on PATH.
func (s *CommandSynthesizer) Available() bool {
	if s == nil || len(s.argv) == 0 {
		return false
	}
	_, err := exec.LookPath(s.argv[0])
	return err == nil
}

func (s *CommandSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if len(s.argv) == 0 {
		return nil, errors.New("offline tts command not configured")
	}
	path, err := exec.LookPath(s.argv[0])
	if err != nil {
		return nil, fmt.Errorf("offline tts command %q: %w", s.argv[0], err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, s.argv[1:]...)
	cmd.Stdin = strings.NewReader(text)
	var stdout bytes.Buffer
	stderr := newTailBuffer(2 << 10)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("offline tts failed: %s", msg)
	}

	out := stdout.Bytes()
	if len(out) == 0 {
		return nil, errors.New("offline tts produced no audio")
	}
	if s.format == "pcm16" {
		return audio.EncodeWAVPCM16LE(out, s.sampleRate)
	}
	if !audio.IsWAV(out) {
		return nil, errors.New("offline tts output is not WAV")
	}
	return out, nil
}

// tailBuffer keeps only the last max bytes written.
type tailBuffer struct {
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
