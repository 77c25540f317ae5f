package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SynthesisResult is the raw output of a narration provider. DurationSec is
// nil when the provider does not report one.
type SynthesisResult struct {
	Audio       []byte
	ContentType string
	DurationSec *float64
}

// SpeechGateway abstracts the narration-synthesis provider. A single variant
// is active per process, selected by configuration at startup.
type SpeechGateway interface {
	Synthesize(ctx context.Context, text, voiceID string) (*SynthesisResult, error)
	Name() string
}

// AssetStore abstracts durable blob storage with public URL issuance. Each
// Put either fully succeeds or leaves nothing retrievable under the path.
type AssetStore interface {
	Put(ctx context.Context, data []byte, contentType, path string) (string, error)
}

// DurationProbe derives an audio duration in seconds from encoded bytes.
// Used when the provider does not report one.
type DurationProbe func(data []byte) (float64, error)

// Linker turns step text into a persisted, URL-addressable voice instruction
// and atomically attaches it to its step under an optimistic-concurrency
// guard.
type Linker struct {
	repo    Repository
	gateway SpeechGateway
	store   AssetStore
	probe   DurationProbe
}

// NewLinker constructs a Linker. probe may be nil.
func NewLinker(repo Repository, gateway SpeechGateway, store AssetStore, probe DurationProbe) *Linker {
	return &Linker{repo: repo, gateway: gateway, store: store, probe: probe}
}

// GeneratedAudio is a synthesized, uploaded narration that is not linked to
// any step.
type GeneratedAudio struct {
	AudioURL    string
	Transcript  string
	DurationSec *float64
}

// Attach synthesizes narration for text, persists it as a new immutable
// VoiceInstruction and repoints the step to it.
//
// Failures before the instruction insert leave no persisted state. A lost
// pointer race surfaces as ErrStaleWrite; the freshly inserted instruction
// then remains as an unreferenced orphan, never rolled back, and the caller
// decides whether to re-issue. Steps of a private package accept narration
// only from the package owner.
func (l *Linker) Attach(ctx context.Context, stepID, actorID, text, voiceID string) (*VoiceInstruction, error) {
	step, err := l.repo.GetStep(ctx, stepID)
	if err != nil {
		return nil, err
	}
	if step == nil {
		return nil, ErrStepNotFound
	}
	pkg, err := l.repo.GetPackage(ctx, step.PackageID)
	if err != nil {
		return nil, err
	}
	if pkg == nil {
		return nil, ErrStepNotFound
	}
	if pkg.OwnerID != "" && pkg.OwnerID != actorID {
		return nil, ErrNotOwner
	}

	res, err := l.gateway.Synthesize(ctx, text, voiceID)
	if err != nil {
		return nil, err
	}

	url, err := l.store.Put(ctx, res.Audio, res.ContentType, assetPath(res.ContentType))
	if err != nil {
		return nil, err
	}

	inst := VoiceInstruction{
		ID:          uuid.NewString(),
		StepID:      step.ID,
		Provider:    l.gateway.Name(),
		AudioURL:    url,
		Transcript:  text,
		DurationSec: l.duration(res),
		CreatedAt:   time.Now().UTC(),
	}

	if err := l.repo.InsertInstruction(ctx, inst); err != nil {
		return nil, err
	}

	if err := l.repo.SetStepVoicePointer(ctx, step.ID, inst.ID, step.Version); err != nil {
		return nil, err
	}
	return &inst, nil
}

// Generate synthesizes and uploads narration without touching the catalog.
// Nothing is written to the database.
func (l *Linker) Generate(ctx context.Context, text, voiceID string) (*GeneratedAudio, error) {
	res, err := l.gateway.Synthesize(ctx, text, voiceID)
	if err != nil {
		return nil, err
	}

	url, err := l.store.Put(ctx, res.Audio, res.ContentType, assetPath(res.ContentType))
	if err != nil {
		return nil, err
	}

	return &GeneratedAudio{
		AudioURL:    url,
		Transcript:  text,
		DurationSec: l.duration(res),
	}, nil
}

func (l *Linker) duration(res *SynthesisResult) *float64 {
	if res.DurationSec != nil {
		return res.DurationSec
	}
	if l.probe == nil {
		return nil
	}
	secs, err := l.probe(res.Audio)
	if err != nil {
		// Unknown duration is acceptable; the record carries nil.
		return nil
	}
	return &secs
}

func assetPath(contentType string) string {
	ext := ".bin"
	switch contentType {
	case "audio/mpeg":
		ext = ".mp3"
	case "audio/wav", "audio/x-wav":
		ext = ".wav"
	}
	return fmt.Sprintf("instructions/%s%s", uuid.NewString(), ext)
}
