package ai

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"cvedge/internal/config"
	"cvedge/internal/errors"
	"cvedge/internal/types"
)

// FallbackPolicy decides what Optimize does with a failed completion
type FallbackPolicy string

const (
	// FallbackDemo substitutes the demo result when the caller supplied no credential of its own
	FallbackDemo FallbackPolicy = config.FallbackDemo
	// FallbackStrict always returns the failure
	FallbackStrict FallbackPolicy = config.FallbackStrict
)

// Demo scores are drawn from this inclusive range
const (
	DemoScoreMin = 82
	DemoScoreMax = 97
)

const demoPreamble = "[Demo mode] The optimization service is not available right now. " +
	"Your resume is shown below unchanged; connect an API key for a real optimization.\n\n"

var demoImprovements = []string{
	"Lead each bullet with a strong action verb",
	"Quantify achievements with concrete numbers and outcomes",
	"Mirror keywords from the target job description for ATS matching",
	"Tighten the summary to two or three lines focused on impact",
}

// ParseFallbackPolicy validates a configured policy name
func ParseFallbackPolicy(name string) (FallbackPolicy, error) {
	switch FallbackPolicy(name) {
	case FallbackDemo, FallbackStrict:
		return FallbackPolicy(name), nil
	case "":
		return FallbackDemo, nil
	default:
		return "", errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("invalid fallback policy: %s", name), nil)
	}
}

// Substitutes reports whether err should be replaced by the demo result.
// Empty input is never substituted, and neither is any failure of a caller supplied credential.
func (p FallbackPolicy) Substitutes(err error, callerCredential bool) bool {
	if err == nil || p != FallbackDemo || callerCredential {
		return false
	}
	return !errors.IsCode(err, errors.ErrCodeEmptyInput)
}

// DemoResult builds the placeholder result around resumeText
func DemoResult(resumeText string, score int) types.OptimizationResult {
	improvements := make([]string, len(demoImprovements))
	copy(improvements, demoImprovements)

	return types.OptimizationResult{
		OptimizedText: demoPreamble + resumeText,
		Improvements:  improvements,
		ATSScore:      &score,
		Source:        types.SourceDemo,
	}
}

// randomDemoScore returns a uniformly distributed score in [DemoScoreMin, DemoScoreMax]
func randomDemoScore() int {
	n, err := rand.Int(rand.Reader, big.NewInt(DemoScoreMax-DemoScoreMin+1))
	if err != nil {
		return DemoScoreMin
	}
	return DemoScoreMin + int(n.Int64())
}
