package auth

// Known OAuth scopes used by the service.
const (
	ScopeWorkoutsRead  = "workouts:read"
	ScopeWorkoutsWrite = "workouts:write"
	ScopeTTSGenerate   = "tts:generate"
)
