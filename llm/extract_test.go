package llm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthplan/planner-engine/llm"
)

func TestExtractJSON_FencedBlock(t *testing.T) {
	response := "Here is the schedule:\n```json\n{\"events\": []}\n```\nLet me know!"

	out, err := llm.ExtractJSON(response)
	require.NoError(t, err)
	assert.JSONEq(t, `{"events": []}`, out)
}

func TestExtractJSON_UnlabeledFence(t *testing.T) {
	response := "```\n{\"rationale\": [\"ok\"]}\n```"

	out, err := llm.ExtractJSON(response)
	require.NoError(t, err)
	assert.JSONEq(t, `{"rationale": ["ok"]}`, out)
}

func TestExtractJSON_SkipsNonJSONFence(t *testing.T) {
	// A python fence first, then the actual payload in prose
	response := "```python\nprint('hi')\n```\nThe result is {\"a\": 1} as requested."

	out, err := llm.ExtractJSON(response)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1}`, out)
}

func TestExtractJSON_BalancedObjectInProse(t *testing.T) {
	response := `Sure! {"adds": [{"title": "Math {advanced}"}], "note": "a \"quoted\" brace }"} trailing text`

	out, err := llm.ExtractJSON(response)
	require.NoError(t, err)
	assert.Contains(t, out, `"adds"`)
	assert.JSONEq(t, `{"adds": [{"title": "Math {advanced}"}], "note": "a \"quoted\" brace }"}`, out)
}

func TestExtractJSON_TopLevelArray(t *testing.T) {
	out, err := llm.ExtractJSON(`here: [1, 2, 3]`)
	require.NoError(t, err)
	assert.JSONEq(t, `[1, 2, 3]`, out)
}

func TestExtractJSON_NoJSON(t *testing.T) {
	_, err := llm.ExtractJSON("I could not produce a schedule, sorry.")
	assert.Error(t, err)
}

func TestExtractJSON_UnbalancedBraces(t *testing.T) {
	_, err := llm.ExtractJSON(`{"events": [`)
	assert.Error(t, err)
}
