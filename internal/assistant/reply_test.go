package assistant

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"penny/internal/core"
)

func TestExtractReply_EmbeddedJSON(t *testing.T) {
	raw := `Sure! {"response":"Hi","quit":false,"name":"Alex","predictiveText1":"A","predictiveText2":"B"} thanks`
	r := ExtractReply(raw, "friend")
	assert.Equal(t, "Hi", r.Response)
	assert.Equal(t, "Alex", r.Name)
	assert.False(t, r.Quit)
	assert.Equal(t, []string{"A", "B"}, r.Suggestions())
}

func TestExtractReply_Fallbacks(t *testing.T) {
	cases := map[string]string{
		"not json":        "not json at all",
		"broken json":     `{"response": "Hi", "quit": fal}`,
		"missing name":    `{"response":"Hi","quit":false}`,
		"missing quit":    `{"response":"Hi","name":"Alex"}`,
		"wrong type":      `{"response":"Hi","quit":"no","name":"Alex"}`,
		"reversed braces": `} nothing here {`,
		"empty":           ``,
		"fenced garbage":  "```json\n{\"response\": }\n```",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			r := ExtractReply(raw, "Sam")
			assert.Equal(t, FallbackReply("Sam"), r)
			assert.Equal(t, FallbackResponse, r.Response)
			assert.False(t, r.Quit)
			assert.Empty(t, r.PredictiveText1)
			assert.Empty(t, r.PredictiveText2)
		})
	}
}

func TestParseReply_ErrorsAreMalformed(t *testing.T) {
	_, err := ParseReply("nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrMalformedReply)

	_, err = ParseReply(`{"response":"x"}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrMalformedReply)
	assert.Contains(t, err.Error(), "quit")
	assert.Contains(t, err.Error(), "name")
}

func TestParseReply_OptionalPredictiveTexts(t *testing.T) {
	r, err := ParseReply("```json\n{\"response\":\"Bye!\",\"quit\":true,\"name\":\"Alex\"}\n```")
	require.NoError(t, err)
	assert.True(t, r.Quit)
	assert.Empty(t, r.Suggestions())
}

func TestExtractReply_BlankNameKeepsPrevious(t *testing.T) {
	r := ExtractReply(`{"response":"Hi","quit":false,"name":"  "}`, "Sam")
	assert.Equal(t, "Sam", r.Name)
}

func TestEnforceLength_CutsAtLastPeriod(t *testing.T) {
	text := strings.Repeat("a", 480) + "." + strings.Repeat("b", 119)
	require.Equal(t, 600, utf8.RuneCountInString(text))

	r := EnforceLength(Reply{Response: text, Name: "Alex"}, 500)
	assert.Equal(t, 481, utf8.RuneCountInString(r.Response))
	assert.True(t, strings.HasSuffix(r.Response, "."))
	assert.Equal(t, "Alex", r.Name)
}

func TestEnforceLength_HardCut(t *testing.T) {
	text := strings.Repeat("x", 600)
	r := EnforceLength(Reply{Response: text}, 500)
	assert.Equal(t, strings.Repeat("x", 500)+Ellipsis, r.Response)

	// a period right at the limit is not before it
	text = strings.Repeat("x", 500) + "." + strings.Repeat("y", 10)
	r = EnforceLength(Reply{Response: text}, 500)
	assert.Equal(t, strings.Repeat("x", 500)+Ellipsis, r.Response)
}

func TestEnforceLength_CountsRunes(t *testing.T) {
	text := strings.Repeat("é", 10)
	r := EnforceLength(Reply{Response: text}, 4)
	assert.Equal(t, "éééé"+Ellipsis, r.Response)

	short := Reply{Response: "Fine."}
	assert.Equal(t, short, EnforceLength(short, 500))
	assert.Equal(t, short, EnforceLength(short, 0))
}
