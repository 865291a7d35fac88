package types

// Result sources
const (
	SourceAI   = "ai"
	SourceDemo = "demo"
)

// OptimizationRequest represents the input for optimizing a resume
type OptimizationRequest struct {
	ResumeText     string `json:"resumeText"`
	JobDescription string `json:"jobDescription,omitempty"`
	// APIKey is a request-scoped credential override. It is never logged or echoed back.
	APIKey string `json:"apiKey,omitempty"`
	// Structured overrides the configured structured-output mode when set.
	Structured *bool `json:"structured,omitempty"`
}

// OptimizationResult represents the output of a resume optimization
type OptimizationResult struct {
	OptimizedText string   `json:"optimizedText"`
	Improvements  []string `json:"improvements,omitempty"`
	ATSScore      *int     `json:"atsScore,omitempty"`
	Source        string   `json:"source"`
	Model         string   `json:"model,omitempty"`
}

// IsDemo reports whether the result is a locally generated placeholder
func (r OptimizationResult) IsDemo() bool {
	return r.Source == SourceDemo
}

// DownloadRequest represents the JSON body accepted by the download action
type DownloadRequest struct {
	OptimizedText string `json:"optimizedText"`
}
