package outbox

// PackageCreated announces a new workout package.
type PackageCreated struct {
	PackageID string `json:"package_id"`
	OwnerID   string `json:"owner_id,omitempty"`
	Title     string `json:"title"`
	Category  string `json:"category,omitempty"`
}

// PackageDeleted announces a package removal, including its cascaded steps
// and voice instructions.
type PackageDeleted struct {
	PackageID string `json:"package_id"`
	OwnerID   string `json:"owner_id,omitempty"`
}

// InstructionCreated announces a newly persisted voice instruction.
type InstructionCreated struct {
	InstructionID string `json:"instruction_id"`
	StepID        string `json:"step_id"`
	Provider      string `json:"provider"`
	AudioURL      string `json:"audio_url"`
}
