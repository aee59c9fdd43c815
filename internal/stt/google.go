package stt

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/antoniostano/voicechat/internal/reliability"
)

// GoogleProvider runs a synchronous Cloud Speech Recognize call. The client is
// created on first use from the service-account credentials file.
type GoogleProvider struct {
	credentialsFile string
	languageCode    string

	mu     sync.Mutex
	client *speech.Client
}

func NewGoogleProvider(credentialsFile, language string) *GoogleProvider {
	return &GoogleProvider{
		credentialsFile: strings.TrimSpace(credentialsFile),
		languageCode:    googleLanguageCode(language),
	}
}

func (p *GoogleProvider) Name() string     { return "google" }
func (p *GoogleProvider) Configured() bool { return p.credentialsFile != "" }

func (p *GoogleProvider) Transcribe(ctx context.Context, path string) (string, error) {
	audio, err := os.ReadFile(path)
	if err != nil {
		return "", reliability.Wrap(reliability.CategoryFile, "google read upload", err)
	}

	client, err := p.speechClient(ctx)
	if err != nil {
		return "", err
	}

	encoding, sampleRate := sniffEncoding(audio)
	resp, err := client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   encoding,
			SampleRateHertz:            sampleRate,
			LanguageCode:               p.languageCode,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return "", classifyGRPC(err)
	}

	var b strings.Builder
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strings.TrimSpace(alts[0].GetTranscript()))
	}
	return b.String(), nil
}

func (p *GoogleProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}

func (p *GoogleProvider) speechClient(ctx context.Context) (*speech.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	client, err := speech.NewClient(ctx, option.WithCredentialsFile(p.credentialsFile))
	if err != nil {
		return nil, reliability.Wrap(reliability.CategoryConfig, "google speech client", err)
	}
	p.client = client
	return client, nil
}

// classifyGRPC tags transport-level gRPC failures as network errors.
func classifyGRPC(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unavailable:
		return reliability.Wrap(reliability.CategoryNetwork, "google recognize", err)
	case codes.Unauthenticated, codes.PermissionDenied:
		return reliability.Wrap(reliability.CategoryConfig, "google recognize", err)
	}
	return fmt.Errorf("google recognize: %w", err)
}

// sniffEncoding picks the recognition encoding from the container magic.
// WAV and FLAC headers carry their own rate, so the rate is left unset.
func sniffEncoding(audio []byte) (speechpb.RecognitionConfig_AudioEncoding, int32) {
	switch {
	case bytes.HasPrefix(audio, []byte("RIFF")):
		return speechpb.RecognitionConfig_LINEAR16, 0
	case bytes.HasPrefix(audio, []byte("fLaC")):
		return speechpb.RecognitionConfig_FLAC, 0
	case bytes.HasPrefix(audio, []byte("OggS")):
		return speechpb.RecognitionConfig_OGG_OPUS, 48000
	case bytes.HasPrefix(audio, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return speechpb.RecognitionConfig_WEBM_OPUS, 48000
	case bytes.HasPrefix(audio, []byte("ID3")), len(audio) > 1 && audio[0] == 0xFF && audio[1]&0xE0 == 0xE0:
		return speechpb.RecognitionConfig_MP3, 0
	}
	return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, 0
}

func googleLanguageCode(lang string) string {
	lang = strings.TrimSpace(lang)
	switch {
	case lang == "":
		return "en-US"
	case lang == "en":
		return "en-US"
	}
	return lang
}
