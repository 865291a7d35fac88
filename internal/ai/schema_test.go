package ai

import (
	"testing"

	"cvedge/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStructuredReply(t *testing.T) {
	tests := []struct {
		name        string
		reply       string
		expectError bool
		errorMsg    string
	}{
		{name: "valid", reply: `{"optimizedText":"Text","improvements":["one"],"atsScore":75}`},
		{name: "fenced", reply: "```json\n{\"optimizedText\":\"Text\",\"improvements\":[],\"atsScore\":0}\n```"},
		{name: "not json", reply: "Here is your resume", expectError: true, errorMsg: "not valid JSON"},
		{name: "missing field", reply: `{"optimizedText":"Text","atsScore":75}`, expectError: true, errorMsg: "does not match schema"},
		{name: "score out of range", reply: `{"optimizedText":"Text","improvements":[],"atsScore":140}`, expectError: true, errorMsg: "does not match schema"},
		{name: "extra field", reply: `{"optimizedText":"Text","improvements":[],"atsScore":1,"note":"x"}`, expectError: true, errorMsg: "does not match schema"},
		{name: "blank text", reply: `{"optimizedText":"   ","improvements":[],"atsScore":60}`, expectError: true, errorMsg: "empty optimizedText"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := ParseStructuredReply(tt.reply)
			if tt.expectError {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.ErrCodeAIResponseInvalid))
				assert.Contains(t, err.Error(), tt.errorMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Text", reply.OptimizedText)
		})
	}
}

func TestGeminiReplySchemaMatchesFields(t *testing.T) {
	schema := geminiReplySchema()
	assert.ElementsMatch(t, []string{"optimizedText", "improvements", "atsScore"}, schema.Required)
	assert.Len(t, schema.Properties, 3)
}
