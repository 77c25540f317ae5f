// Package api exposes HTTP handlers for the workout content service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/workouts/internal/auth"
	"example.com/workouts/internal/domain"
	"example.com/workouts/internal/objectstore"
	"example.com/workouts/internal/observability"
	"example.com/workouts/internal/speech"
)

// Handler coordinates HTTP requests with the catalog and the narration
// linker.
type Handler struct {
	catalog *domain.Catalog
	linker  *domain.Linker
}

// NewHandler builds a Handler.
func NewHandler(catalog *domain.Catalog, linker *domain.Linker) *Handler {
	return &Handler{catalog: catalog, linker: linker}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/workouts", h.workouts)
	mux.HandleFunc("/workouts/", h.workoutSubtree)
	mux.HandleFunc("/tts/generate", h.generateTTS)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) workouts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listWorkouts(w, r)
	case http.MethodPost:
		h.createWorkout(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) workoutSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/workouts/"), "/")
	segments := strings.Split(rest, "/")
	if rest == "" || segments[0] == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing workout id")
		return
	}

	packageID := segments[0]
	switch {
	case len(segments) == 1:
		h.workoutByID(w, r, packageID)
	case len(segments) == 2 && segments[1] == "steps":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
			return
		}
		h.addStep(w, r, packageID)
	case len(segments) == 3 && segments[1] == "steps":
		h.stepByID(w, r, segments[2])
	case len(segments) == 4 && segments[1] == "steps" && segments[3] == "voice":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
			return
		}
		h.attachVoice(w, r, segments[2])
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
	}
}

func (h *Handler) workoutByID(w http.ResponseWriter, r *http.Request, packageID string) {
	switch r.Method {
	case http.MethodGet:
		h.getWorkout(w, r, packageID)
	case http.MethodPut:
		h.updateWorkout(w, r, packageID)
	case http.MethodDelete:
		h.deleteWorkout(w, r, packageID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) stepByID(w http.ResponseWriter, r *http.Request, stepID string) {
	switch r.Method {
	case http.MethodPut:
		h.updateStep(w, r, stepID)
	case http.MethodDelete:
		h.deleteStep(w, r, stepID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) listWorkouts(w http.ResponseWriter, r *http.Request) {
	// Anonymous callers browse shared content only; authenticated callers
	// additionally see their own packages.
	ownerID := ""
	if claims, ok := auth.FromContext(r.Context()); ok {
		ownerID = claims.Subject
	}

	filter := domain.PackageFilter{
		OwnerID:  ownerID,
		Category: r.URL.Query().Get("category"),
		Limit:    queryInt(r, "limit", 100),
		Offset:   queryInt(r, "offset", 0),
	}

	packages, err := h.catalog.ListPackages(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	items := make([]WorkoutView, 0, len(packages))
	for _, pkg := range packages {
		items = append(items, toWorkoutView(pkg))
	}
	writeJSON(w, http.StatusOK, ListWorkoutsResponse{Items: items})
}

func (h *Handler) createWorkout(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeWorkoutsWrite)
	if !ok {
		return
	}

	var req CreateWorkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	pkg, err := h.catalog.CreatePackage(r.Context(), domain.CreatePackageInput{
		Title:                req.Title,
		Description:          req.Description,
		Category:             req.Category,
		EstimatedDurationSec: req.EstimatedDurationSec,
		CoverImageURL:        req.CoverImageURL,
		OwnerID:              claims.Subject,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkoutView(*pkg))
}

func (h *Handler) getWorkout(w http.ResponseWriter, r *http.Request, packageID string) {
	pkg, steps, err := h.catalog.GetPackageWithSteps(r.Context(), packageID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := WorkoutDetailView{WorkoutView: toWorkoutView(*pkg), Steps: make([]StepView, 0, len(steps))}
	for _, step := range steps {
		resp.Steps = append(resp.Steps, toStepView(step))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) updateWorkout(w http.ResponseWriter, r *http.Request, packageID string) {
	claims, ok := requireScope(w, r, auth.ScopeWorkoutsWrite)
	if !ok {
		return
	}

	var req UpdateWorkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	pkg, err := h.catalog.UpdatePackage(r.Context(), packageID, claims.Subject, domain.UpdatePackageInput{
		Title:                req.Title,
		Description:          req.Description,
		Category:             req.Category,
		EstimatedDurationSec: req.EstimatedDurationSec,
		CoverImageURL:        req.CoverImageURL,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkoutView(*pkg))
}

func (h *Handler) deleteWorkout(w http.ResponseWriter, r *http.Request, packageID string) {
	claims, ok := requireScope(w, r, auth.ScopeWorkoutsWrite)
	if !ok {
		return
	}

	if err := h.catalog.DeletePackage(r.Context(), packageID, claims.Subject); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addStep(w http.ResponseWriter, r *http.Request, packageID string) {
	claims, ok := requireScope(w, r, auth.ScopeWorkoutsWrite)
	if !ok {
		return
	}

	var req CreateStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if req.StepOrder == nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "step_order is required")
		return
	}

	step, err := h.catalog.AddStep(r.Context(), domain.AddStepInput{
		PackageID:       packageID,
		ActorID:         claims.Subject,
		Order:           *req.StepOrder,
		Title:           req.Title,
		Description:     req.Description,
		DurationSec:     req.DurationSec,
		Exercise:        domain.ExerciseType(req.ExerciseType),
		Defaults:        req.defaults(),
		PostureImageURL: req.PostureImageURL,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStepView(*step))
}

func (h *Handler) updateStep(w http.ResponseWriter, r *http.Request, stepID string) {
	claims, ok := requireScope(w, r, auth.ScopeWorkoutsWrite)
	if !ok {
		return
	}

	var req UpdateStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	in := domain.UpdateStepInput{
		Order:           req.StepOrder,
		Title:           req.Title,
		Description:     req.Description,
		DurationSec:     req.DurationSec,
		PostureImageURL: req.PostureImageURL,
	}
	if req.ExerciseType != nil {
		exercise := domain.ExerciseType(*req.ExerciseType)
		in.Exercise = &exercise
	}
	if d := req.defaults(); d != nil {
		in.Defaults = d
	}

	step, err := h.catalog.UpdateStep(r.Context(), stepID, claims.Subject, in)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStepView(*step))
}

func (h *Handler) deleteStep(w http.ResponseWriter, r *http.Request, stepID string) {
	claims, ok := requireScope(w, r, auth.ScopeWorkoutsWrite)
	if !ok {
		return
	}

	if err := h.catalog.DeleteStep(r.Context(), stepID, claims.Subject); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) attachVoice(w http.ResponseWriter, r *http.Request, stepID string) {
	claims, ok := requireScope(w, r, auth.ScopeTTSGenerate)
	if !ok {
		return
	}

	var req GenerateVoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	inst, err := h.linker.Attach(r.Context(), stepID, claims.Subject, req.Text, req.VoiceID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInstructionView(*inst))
}

func (h *Handler) generateTTS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if _, ok := requireScope(w, r, auth.ScopeTTSGenerate); !ok {
		return
	}

	var req GenerateVoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	audio, err := h.linker.Generate(r.Context(), req.Text, req.VoiceID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TTSGenerateResponse{
		AudioURL:    audio.AudioURL,
		Transcript:  audio.Transcript,
		DurationSec: audio.DurationSec,
	})
}

func requireScope(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return nil, false
	}
	return claims, true
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	var synthErr *speech.Error
	var uploadErr *objectstore.UploadError

	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, "validation_failed", validationErr.Error())
	case errors.Is(err, domain.ErrPackageNotFound),
		errors.Is(err, domain.ErrStepNotFound),
		errors.Is(err, domain.ErrInstructionNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrNotOwner):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, domain.ErrDuplicateStepOrder):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrStaleWrite):
		observability.RecordStaleWrite()
		writeError(w, http.StatusConflict, "stale_write", err.Error())
	case errors.Is(err, speech.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, "synthesis_timeout", err.Error())
	case errors.As(err, &synthErr):
		switch synthErr.Kind {
		case speech.KindQuota:
			writeError(w, http.StatusTooManyRequests, "synthesis_quota", synthErr.Error())
		case speech.KindInvalidVoice:
			writeError(w, http.StatusBadRequest, "invalid_voice", synthErr.Error())
		default:
			writeError(w, http.StatusBadGateway, "synthesis_failed", synthErr.Error())
		}
	case errors.As(err, &uploadErr):
		writeError(w, http.StatusBadGateway, "upload_failed", uploadErr.Error())
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

// CreateWorkoutRequest is the payload for POST /workouts.
type CreateWorkoutRequest struct {
	Title                string `json:"title"`
	Description          string `json:"description"`
	Category             string `json:"category"`
	EstimatedDurationSec int    `json:"estimated_duration_sec"`
	CoverImageURL        string `json:"cover_image_url"`
}

// UpdateWorkoutRequest is the payload for PUT /workouts/{id}; absent fields
// are left untouched.
type UpdateWorkoutRequest struct {
	Title                *string `json:"title"`
	Description          *string `json:"description"`
	Category             *string `json:"category"`
	EstimatedDurationSec *int    `json:"estimated_duration_sec"`
	CoverImageURL        *string `json:"cover_image_url"`
}

// CreateStepRequest is the payload for POST /workouts/{id}/steps.
type CreateStepRequest struct {
	StepOrder          *int     `json:"step_order"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	DurationSec        int      `json:"duration_sec"`
	ExerciseType       string   `json:"exercise_type"`
	DefaultReps        *int     `json:"default_reps"`
	DefaultDurationSec *int     `json:"default_duration_sec"`
	DefaultWeightKg    *float64 `json:"default_weight_kg"`
	DefaultDistanceM   *float64 `json:"default_distance_m"`
	DefaultCustom      *string  `json:"default_custom"`
	PostureImageURL    string   `json:"posture_image_url"`
}

func (r CreateStepRequest) defaults() domain.StepDefaults {
	return domain.StepDefaults{
		Reps:        r.DefaultReps,
		DurationSec: r.DefaultDurationSec,
		WeightKg:    r.DefaultWeightKg,
		DistanceM:   r.DefaultDistanceM,
		Custom:      r.DefaultCustom,
	}
}

// UpdateStepRequest is the payload for PUT /workouts/{id}/steps/{sid}.
type UpdateStepRequest struct {
	StepOrder          *int     `json:"step_order"`
	Title              *string  `json:"title"`
	Description        *string  `json:"description"`
	DurationSec        *int     `json:"duration_sec"`
	ExerciseType       *string  `json:"exercise_type"`
	DefaultReps        *int     `json:"default_reps"`
	DefaultDurationSec *int     `json:"default_duration_sec"`
	DefaultWeightKg    *float64 `json:"default_weight_kg"`
	DefaultDistanceM   *float64 `json:"default_distance_m"`
	DefaultCustom      *string  `json:"default_custom"`
	PostureImageURL    *string  `json:"posture_image_url"`
}

func (r UpdateStepRequest) defaults() *domain.StepDefaults {
	if r.DefaultReps == nil && r.DefaultDurationSec == nil && r.DefaultWeightKg == nil &&
		r.DefaultDistanceM == nil && r.DefaultCustom == nil {
		return nil
	}
	return &domain.StepDefaults{
		Reps:        r.DefaultReps,
		DurationSec: r.DefaultDurationSec,
		WeightKg:    r.DefaultWeightKg,
		DistanceM:   r.DefaultDistanceM,
		Custom:      r.DefaultCustom,
	}
}

// GenerateVoiceRequest is the payload for voice generation endpoints.
type GenerateVoiceRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
}

// TTSGenerateResponse is the body for POST /tts/generate.
type TTSGenerateResponse struct {
	AudioURL    string   `json:"audio_url"`
	Transcript  string   `json:"transcript"`
	DurationSec *float64 `json:"duration_sec,omitempty"`
}

// WorkoutView exposes a workout package.
type WorkoutView struct {
	ID                   string    `json:"id"`
	Title                string    `json:"title"`
	Description          string    `json:"description,omitempty"`
	Category             string    `json:"category,omitempty"`
	EstimatedDurationSec int       `json:"estimated_duration_sec"`
	CoverImageURL        string    `json:"cover_image_url,omitempty"`
	OwnerID              string    `json:"owner_id,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// WorkoutDetailView is a package with its steps, ordered ascending.
type WorkoutDetailView struct {
	WorkoutView
	Steps []StepView `json:"steps"`
}

// StepView exposes a workout step.
type StepView struct {
	ID                   string    `json:"id"`
	PackageID            string    `json:"package_id"`
	StepOrder            int       `json:"step_order"`
	Title                string    `json:"title"`
	Description          string    `json:"description,omitempty"`
	DurationSec          int       `json:"duration_sec"`
	ExerciseType         string    `json:"exercise_type"`
	DefaultReps          *int      `json:"default_reps,omitempty"`
	DefaultDurationSec   *int      `json:"default_duration_sec,omitempty"`
	DefaultWeightKg      *float64  `json:"default_weight_kg,omitempty"`
	DefaultDistanceM     *float64  `json:"default_distance_m,omitempty"`
	DefaultCustom        *string   `json:"default_custom,omitempty"`
	PostureImageURL      string    `json:"posture_image_url,omitempty"`
	CurrentInstructionID string    `json:"current_voice_instruction_id,omitempty"`
	Version              int64     `json:"version"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// InstructionView exposes a voice instruction.
type InstructionView struct {
	ID          string    `json:"id"`
	StepID      string    `json:"step_id"`
	Provider    string    `json:"provider"`
	AudioURL    string    `json:"audio_url"`
	Transcript  string    `json:"transcript"`
	DurationSec *float64  `json:"duration_sec,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListWorkoutsResponse packages list results.
type ListWorkoutsResponse struct {
	Items []WorkoutView `json:"items"`
}

func toWorkoutView(pkg domain.WorkoutPackage) WorkoutView {
	return WorkoutView{
		ID:                   pkg.ID,
		Title:                pkg.Title,
		Description:          pkg.Description,
		Category:             pkg.Category,
		EstimatedDurationSec: pkg.EstimatedDurationSec,
		CoverImageURL:        pkg.CoverImageURL,
		OwnerID:              pkg.OwnerID,
		CreatedAt:            pkg.CreatedAt,
		UpdatedAt:            pkg.UpdatedAt,
	}
}

func toStepView(step domain.WorkoutStep) StepView {
	return StepView{
		ID:                   step.ID,
		PackageID:            step.PackageID,
		StepOrder:            step.StepOrder,
		Title:                step.Title,
		Description:          step.Description,
		DurationSec:          step.DurationSec,
		ExerciseType:         string(step.Exercise),
		DefaultReps:          step.Defaults.Reps,
		DefaultDurationSec:   step.Defaults.DurationSec,
		DefaultWeightKg:      step.Defaults.WeightKg,
		DefaultDistanceM:     step.Defaults.DistanceM,
		DefaultCustom:        step.Defaults.Custom,
		PostureImageURL:      step.PostureImageURL,
		CurrentInstructionID: step.CurrentInstructionID,
		Version:              step.Version,
		CreatedAt:            step.CreatedAt,
		UpdatedAt:            step.UpdatedAt,
	}
}

func toInstructionView(inst domain.VoiceInstruction) InstructionView {
	return InstructionView{
		ID:          inst.ID,
		StepID:      inst.StepID,
		Provider:    inst.Provider,
		AudioURL:    inst.AudioURL,
		Transcript:  inst.Transcript,
		DurationSec: inst.DurationSec,
		CreatedAt:   inst.CreatedAt,
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{
		"type":   code,
		"detail": detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
