package voice

import (
	"context"
	"errors"
)

// StaticSynthesizer is an OfflineSynthesizer returning fixed bytes or an error.
type StaticSynthesizer struct {
	Audio []byte
	Err   error
	Calls int
}

func (s *StaticSynthesizer) Synthesize(ctx context.Context, _ string) ([]byte, error) {
	s.Calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Audio) == 0 {
		return nil, errors.New("no audio")
	}
	return s.Audio, nil
}
