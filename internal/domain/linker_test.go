package domain

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	result   *SynthesisResult
	err      error
	calls    int
	onSynth  func()
	lastText string
}

func (g *fakeGateway) Synthesize(_ context.Context, text, _ string) (*SynthesisResult, error) {
	g.calls++
	g.lastText = text
	if g.onSynth != nil {
		g.onSynth()
	}
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

func (g *fakeGateway) Name() string { return "fake" }

type fakeStore struct {
	baseURL string
	err     error
	puts    []string
}

func (s *fakeStore) Put(_ context.Context, _ []byte, _ string, path string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.puts = append(s.puts, path)
	return s.baseURL + "/" + path, nil
}

func TestAttachSuccess(t *testing.T) {
	repo := newFakeRepo()
	catalog := NewCatalog(repo)
	pkg := mustCreatePackage(t, catalog)
	step, err := catalog.AddStep(context.Background(), AddStepInput{
		PackageID: pkg.ID, Order: 1, Title: "Squats", DurationSec: 45, Exercise: ExerciseReps,
		Defaults: StepDefaults{Reps: intPtr(12)},
	})
	require.NoError(t, err)

	gateway := &fakeGateway{result: &SynthesisResult{
		Audio:       []byte("mp3-bytes"),
		ContentType: "audio/mpeg",
		DurationSec: floatPtr(3.2),
	}}
	store := &fakeStore{baseURL: "https://cdn.example"}
	linker := NewLinker(repo, gateway, store, nil)

	inst, err := linker.Attach(context.Background(), step.ID, "", "Do twelve squats, keep your back straight.", "")
	require.NoError(t, err)
	require.Equal(t, "Do twelve squats, keep your back straight.", inst.Transcript)
	require.Equal(t, "fake", inst.Provider)
	require.True(t, strings.HasPrefix(inst.AudioURL, "https://cdn.example/instructions/"))
	require.True(t, strings.HasSuffix(inst.AudioURL, ".mp3"))
	require.NotNil(t, inst.DurationSec)
	require.Equal(t, 3.2, *inst.DurationSec)

	reloaded, err := repo.GetStep(context.Background(), step.ID)
	require.NoError(t, err)
	require.Equal(t, inst.ID, reloaded.CurrentInstructionID)
	require.Equal(t, step.Version+1, reloaded.Version)
}

func TestAttachStepMissing(t *testing.T) {
	repo := newFakeRepo()
	gateway := &fakeGateway{}
	linker := NewLinker(repo, gateway, &fakeStore{}, nil)

	_, err := linker.Attach(context.Background(), "missing", "", "hello", "")
	require.ErrorIs(t, err, ErrStepNotFound)
	require.Zero(t, gateway.calls)
}

func TestAttachPrivatePackageRequiresOwner(t *testing.T) {
	repo := newFakeRepo()
	catalog := NewCatalog(repo)
	pkg, err := catalog.CreatePackage(context.Background(), CreatePackageInput{
		Title:                "Personal Plan",
		EstimatedDurationSec: 300,
		OwnerID:              "owner-a",
	})
	require.NoError(t, err)
	step, err := catalog.AddStep(context.Background(), AddStepInput{
		PackageID: pkg.ID, ActorID: "owner-a", Order: 1, Title: "Squats", DurationSec: 45, Exercise: ExerciseCustom,
	})
	require.NoError(t, err)

	gateway := &fakeGateway{}
	linker := NewLinker(repo, gateway, &fakeStore{}, nil)

	_, err = linker.Attach(context.Background(), step.ID, "intruder", "narration", "")
	require.ErrorIs(t, err, ErrNotOwner)
	require.Zero(t, gateway.calls)
	require.Empty(t, repo.instructions)
}

func TestAttachSynthesisFailureLeavesNothing(t *testing.T) {
	repo := newFakeRepo()
	catalog := NewCatalog(repo)
	pkg := mustCreatePackage(t, catalog)
	step, err := catalog.AddStep(context.Background(), AddStepInput{
		PackageID: pkg.ID, Order: 1, Title: "Plank", DurationSec: 60, Exercise: ExerciseDuration,
	})
	require.NoError(t, err)

	gateway := &fakeGateway{err: invalid("text", "must not be empty")}
	store := &fakeStore{}
	linker := NewLinker(repo, gateway, store, nil)

	_, err = linker.Attach(context.Background(), step.ID, "", "", "")
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Empty(t, store.puts)
	require.Empty(t, repo.instructions)

	reloaded, err := repo.GetStep(context.Background(), step.ID)
	require.NoError(t, err)
	require.Empty(t, reloaded.CurrentInstructionID)
}

func TestAttachUploadFailureLeavesNothing(t *testing.T) {
	repo := newFakeRepo()
	catalog := NewCatalog(repo)
	pkg := mustCreatePackage(t, catalog)
	step, err := catalog.AddStep(context.Background(), AddStepInput{
		PackageID: pkg.ID, Order: 1, Title: "Plank", DurationSec: 60, Exercise: ExerciseDuration,
	})
	require.NoError(t, err)

	gateway := &fakeGateway{result: &SynthesisResult{Audio: []byte("x"), ContentType: "audio/mpeg"}}
	store := &fakeStore{err: context.DeadlineExceeded}
	linker := NewLinker(repo, gateway, store, nil)

	_, err = linker.Attach(context.Background(), step.ID, "", "hold for sixty seconds", "")
	require.Error(t, err)
	require.Empty(t, repo.instructions)
}

func TestAttachLosesPointerRace(t *testing.T) {
	repo := newFakeRepo()
	catalog := NewCatalog(repo)
	pkg := mustCreatePackage(t, catalog)
	step, err := catalog.AddStep(context.Background(), AddStepInput{
		PackageID: pkg.ID, Order: 1, Title: "Lunges", DurationSec: 40, Exercise: ExerciseReps,
		Defaults: StepDefaults{Reps: intPtr(10)},
	})
	require.NoError(t, err)

	winner := VoiceInstruction{ID: "winner", StepID: step.ID, Provider: "fake", AudioURL: "u", Transcript: "t"}
	gateway := &fakeGateway{
		result: &SynthesisResult{Audio: []byte("x"), ContentType: "audio/mpeg"},
		onSynth: func() {
			// A concurrent regeneration lands while synthesis is in flight.
			require.NoError(t, repo.InsertInstruction(context.Background(), winner))
			require.NoError(t, repo.SetStepVoicePointer(context.Background(), step.ID, winner.ID, step.Version))
		},
	}
	linker := NewLinker(repo, gateway, &fakeStore{baseURL: "https://cdn.example"}, nil)

	_, err = linker.Attach(context.Background(), step.ID, "", "ten lunges each side", "")
	require.ErrorIs(t, err, ErrStaleWrite)

	// The loser's instruction stays behind as an orphan; the pointer and
	// version reflect the winner only.
	require.Len(t, repo.instructions, 2)
	reloaded, err := repo.GetStep(context.Background(), step.ID)
	require.NoError(t, err)
	require.Equal(t, winner.ID, reloaded.CurrentInstructionID)
	require.Equal(t, step.Version+1, reloaded.Version)
}

func TestAttachProbeFallback(t *testing.T) {
	repo := newFakeRepo()
	catalog := NewCatalog(repo)
	pkg := mustCreatePackage(t, catalog)
	step, err := catalog.AddStep(context.Background(), AddStepInput{
		PackageID: pkg.ID, Order: 1, Title: "Rest", DurationSec: 30, Exercise: ExerciseCustom,
	})
	require.NoError(t, err)

	gateway := &fakeGateway{result: &SynthesisResult{Audio: []byte("x"), ContentType: "audio/mpeg"}}
	probe := func([]byte) (float64, error) { return 2.5, nil }
	linker := NewLinker(repo, gateway, &fakeStore{baseURL: "https://cdn.example"}, probe)

	inst, err := linker.Attach(context.Background(), step.ID, "", "rest now", "")
	require.NoError(t, err)
	require.NotNil(t, inst.DurationSec)
	require.Equal(t, 2.5, *inst.DurationSec)
}

func TestGenerateDoesNotPersist(t *testing.T) {
	repo := newFakeRepo()
	gateway := &fakeGateway{result: &SynthesisResult{Audio: []byte("x"), ContentType: "audio/mpeg"}}
	store := &fakeStore{baseURL: "https://cdn.example"}
	linker := NewLinker(repo, gateway, store, nil)

	out, err := linker.Generate(context.Background(), "three, two, one, go", "voice-a")
	require.NoError(t, err)
	require.Equal(t, "three, two, one, go", out.Transcript)
	require.True(t, strings.HasPrefix(out.AudioURL, "https://cdn.example/instructions/"))
	require.Len(t, store.puts, 1)
	require.Empty(t, repo.instructions)
}
