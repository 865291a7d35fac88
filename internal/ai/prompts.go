package ai

import (
	"strings"
	"sync/atomic"
)

// DefaultSystemPrompt is the fixed optimization instruction
const DefaultSystemPrompt = "You are a professional resume optimizer. Improve resumes for ATS, clarity, impact, and measurable achievements."

const jobDescriptionHeader = "Target job description:"

const structuredInstruction = "Respond only with a JSON object with these fields: " +
	"\"optimizedText\" (the complete improved resume as plain text), " +
	"\"improvements\" (a list of short notes describing what was changed) and " +
	"\"atsScore\" (an integer from 0 to 100 estimating ATS compatibility)."

// PromptSet holds the active system prompt. It is safe for concurrent use so the
// prompt file watcher can swap the prompt while requests are in flight.
type PromptSet struct {
	system atomic.Pointer[string]
}

// NewPromptSet returns a PromptSet using system, or DefaultSystemPrompt when it is blank
func NewPromptSet(system string) *PromptSet {
	ps := &PromptSet{}
	ps.SetSystemPrompt(system)
	return ps
}

// SetSystemPrompt replaces the system prompt. A blank value restores the default.
func (ps *PromptSet) SetSystemPrompt(system string) {
	system = strings.TrimSpace(system)
	if system == "" {
		system = DefaultSystemPrompt
	}
	ps.system.Store(&system)
}

// SystemPrompt returns the active system prompt
func (ps *PromptSet) SystemPrompt() string {
	if ps == nil {
		return DefaultSystemPrompt
	}
	if p := ps.system.Load(); p != nil {
		return *p
	}
	return DefaultSystemPrompt
}

// Build assembles the prompt for one optimization request
func (ps *PromptSet) Build(resumeText, jobDescription string, structured bool) Prompt {
	return Prompt{
		System: ps.SystemPrompt(),
		User:   BuildUserPrompt(resumeText, jobDescription, structured),
	}
}

// BuildUserPrompt returns the resume followed, when present, by the target job description
func BuildUserPrompt(resumeText, jobDescription string, structured bool) string {
	var b strings.Builder
	b.WriteString(resumeText)

	if jd := strings.TrimSpace(jobDescription); jd != "" {
		b.WriteString("\n\n")
		b.WriteString(jobDescriptionHeader)
		b.WriteString("\n")
		b.WriteString(jd)
	}

	if structured {
		b.WriteString("\n\n")
		b.WriteString(structuredInstruction)
	}

	return b.String()
}
