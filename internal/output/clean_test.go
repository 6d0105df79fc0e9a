package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/vlm-ocr/internal/common"
)

func TestClean_Fenced(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "strips fence and leading zeros",
			in:   "```json\n{\"id\": \"007\", \"count\": 0042}\n```",
			want: `{"id": "007", "count": 42}`,
		},
		{
			name: "every match rewritten",
			in:   "```json\n{\"a\": 01, \"b\": 0002, \"c\": 300}\n```",
			want: `{"a": 1, "b": 2, "c": 300}`,
		},
		{
			name: "surrounding whitespace",
			in:   "  \n```json\n  {\"total\": 12.50}  \n```\n\n",
			want: `{"total": 12.50}`,
		},
		{
			name: "missing closing fence keeps the rest",
			in:   "```json\n{\"n\": 005}",
			want: `{"n": 5}`,
		},
		{
			name: "text after closing fence dropped",
			in:   "```json\n{\"n\": 1}\n```\nanything else ```json {}```",
			want: `{"n": 1}`,
		},
		{
			name: "lone zero is not padded",
			in:   "```json\n{\"n\": 0}\n```",
			want: `{"n": 0}`,
		},
		{
			name: "no match returned unchanged",
			in:   "```json\n{\"name\": \"ACME\", \"items\": [1, 2]}\n```",
			want: `{"name": "ACME", "items": [1, 2]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, strict := range []bool{false, true} {
				got, err := Clean(tt.in, strict)
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestClean_NotFenced(t *testing.T) {
	in := "  Total: 0042 EUR\n"

	got, err := Clean(in, false)
	require.NoError(t, err)
	assert.Equal(t, "Total: 0042 EUR", got)

	_, err = Clean(in, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnexpectedFormat)
}

func TestClean_PlainFenceIsNotJSONFence(t *testing.T) {
	got, err := Clean("```\n{\"a\": 01}\n```", false)
	require.NoError(t, err)
	assert.Equal(t, "```\n{\"a\": 01}\n```", got)
}

func TestClean_Empty(t *testing.T) {
	got, err := Clean("   ", false)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestIsFenced(t *testing.T) {
	assert.True(t, IsFenced("\n```json{}```"))
	assert.False(t, IsFenced("{}"))
}
