package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"cvedge/internal/errors"

	"github.com/xeipuuv/gojsonschema"
	"google.golang.org/genai"
)

// StructuredReplySchema is the JSON schema a structured reply must satisfy
const StructuredReplySchema = `{
  "type": "object",
  "properties": {
    "optimizedText": {"type": "string", "minLength": 1},
    "improvements": {"type": "array", "items": {"type": "string"}},
    "atsScore": {"type": "integer", "minimum": 0, "maximum": 100}
  },
  "required": ["optimizedText", "improvements", "atsScore"],
  "additionalProperties": false
}`

// structuredWireSchema is sent to OpenAI-compatible services. Strict mode rejects
// numeric and length bounds, so those are checked locally instead.
const structuredWireSchema = `{
  "type": "object",
  "properties": {
    "optimizedText": {"type": "string"},
    "improvements": {"type": "array", "items": {"type": "string"}},
    "atsScore": {"type": "integer"}
  },
  "required": ["optimizedText", "improvements", "atsScore"],
  "additionalProperties": false
}`

var structuredSchemaLoader = gojsonschema.NewStringLoader(StructuredReplySchema)

// StructuredReply is the decoded structured completion
type StructuredReply struct {
	OptimizedText string   `json:"optimizedText"`
	Improvements  []string `json:"improvements"`
	ATSScore      int      `json:"atsScore"`
}

// geminiReplySchema mirrors StructuredReplySchema for the genai ResponseSchema
func geminiReplySchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"optimizedText": {Type: genai.TypeString},
			"improvements": {
				Type:  genai.TypeArray,
				Items: &genai.Schema{Type: genai.TypeString},
			},
			"atsScore": {
				Type:    genai.TypeInteger,
				Minimum: genai.Ptr(0.0),
				Maximum: genai.Ptr(100.0),
			},
		},
		Required: []string{"optimizedText", "improvements", "atsScore"},
	}
}

// ParseStructuredReply validates text against StructuredReplySchema and decodes it.
// Any failure is reported as AI_RESPONSE_INVALID.
func ParseStructuredReply(text string) (*StructuredReply, error) {
	body := stripCodeFence(text)

	result, err := gojsonschema.Validate(structuredSchemaLoader, gojsonschema.NewStringLoader(body))
	if err != nil {
		return nil, errors.NewAIError(errors.ErrCodeAIResponseInvalid, "structured reply is not valid JSON", err)
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, errors.NewAIError(errors.ErrCodeAIResponseInvalid,
			fmt.Sprintf("structured reply does not match schema: %s", strings.Join(problems, "; ")), nil)
	}

	var reply StructuredReply
	if err := json.Unmarshal([]byte(body), &reply); err != nil {
		return nil, errors.NewAIError(errors.ErrCodeAIResponseInvalid, "failed to decode structured reply", err)
	}

	if strings.TrimSpace(reply.OptimizedText) == "" {
		return nil, errors.NewAIError(errors.ErrCodeAIResponseInvalid, "structured reply has empty optimizedText", nil)
	}

	return &reply, nil
}

// stripCodeFence removes a surrounding ```json fence some models add despite the response format
func stripCodeFence(text string) string {
	body := strings.TrimSpace(text)
	if !strings.HasPrefix(body, "```") {
		return body
	}
	body = strings.TrimPrefix(body, "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	}
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	return strings.TrimSpace(body)
}
