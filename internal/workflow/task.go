package workflow

// WasteType enumerates the platform's waste categories.
type WasteType string

const (
	WastePlastic WasteType = "plastic"
	WasteOrganic WasteType = "organic"
	WasteMixed   WasteType = "mixed"
	WasteToxic   WasteType = "toxic"
	WasteSewage  WasteType = "sewage"
)

// Valid reports whether w is a known waste category.
func (w WasteType) Valid() bool {
	switch w {
	case WastePlastic, WasteOrganic, WasteMixed, WasteToxic, WasteSewage:
		return true
	}
	return false
}

// TaskStatus is the lifecycle status of a cleanup task.
type TaskStatus string

const (
	TaskActive  TaskStatus = "active"
	TaskCleaned TaskStatus = "cleaned"
)

// CleanupTask identifies one reported location awaiting cleanup. It is
// read-only to the workflow except for the status flip on successful
// submission.
type CleanupTask struct {
	ID             string     `json:"id"`
	BeforeImageRef string     `json:"before_image_ref"`
	Latitude       float64    `json:"latitude"`
	Longitude      float64    `json:"longitude"`
	WasteType      WasteType  `json:"waste_type"`
	Status         TaskStatus `json:"status"`
}

// Operator identifies who is running the workflow.
type Operator struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"` // individual or ngo
}

// VerificationResult is a remote verdict retained for the current attempt
// only; it is invalidated whenever the operator re-captures.
type VerificationResult struct {
	Verdict bool   `json:"verdict"`
	Message string `json:"message"`
}
