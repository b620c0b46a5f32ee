package assistant

import (
	"encoding/json"
	"fmt"
	"strings"

	"penny/internal/core"
)

// DefaultName is used when the user's first name is not known.
const DefaultName = "friend"

// FallbackResponse is shown whenever no usable reply could be produced.
const FallbackResponse = "Sorry, I couldn't put together an answer just now. Please try asking again in a moment."

// Reply is the structured answer the model is asked to produce.
type Reply struct {
	Response        string `json:"response"`
	Quit            bool   `json:"quit"`
	Name            string `json:"name"`
	PredictiveText1 string `json:"predictiveText1"`
	PredictiveText2 string `json:"predictiveText2"`
}

// Suggestions returns the non-empty predictive texts in order.
func (r Reply) Suggestions() []string {
	var out []string
	for _, s := range []string{r.PredictiveText1, r.PredictiveText2} {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// FallbackReply is the single failure representation handed to callers.
func FallbackReply(previousName string) Reply {
	return Reply{
		Response: FallbackResponse,
		Quit:     false,
		Name:     previousName,
	}
}

// wireReply distinguishes missing keys from zero values.
type wireReply struct {
	Response        *string `json:"response"`
	Quit            *bool   `json:"quit"`
	Name            *string `json:"name"`
	PredictiveText1 *string `json:"predictiveText1"`
	PredictiveText2 *string `json:"predictiveText2"`
}

// ParseReply takes the text between the first '{' and the last '}' of raw and
// decodes it strictly. The keys response, quit and name are required;
// errors wrap core.ErrMalformedReply.
func ParseReply(raw string) (Reply, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return Reply{}, fmt.Errorf("%w: no JSON object found", core.ErrMalformedReply)
	}

	var w wireReply
	if err := json.Unmarshal([]byte(raw[start:end+1]), &w); err != nil {
		return Reply{}, fmt.Errorf("%w: %v", core.ErrMalformedReply, err)
	}

	var missing []string
	if w.Response == nil {
		missing = append(missing, "response")
	}
	if w.Quit == nil {
		missing = append(missing, "quit")
	}
	if w.Name == nil {
		missing = append(missing, "name")
	}
	if len(missing) > 0 {
		return Reply{}, fmt.Errorf("%w: missing keys %s", core.ErrMalformedReply, strings.Join(missing, ", "))
	}

	r := Reply{
		Response: *w.Response,
		Quit:     *w.Quit,
		Name:     strings.TrimSpace(*w.Name),
	}
	if w.PredictiveText1 != nil {
		r.PredictiveText1 = *w.PredictiveText1
	}
	if w.PredictiveText2 != nil {
		r.PredictiveText2 = *w.PredictiveText2
	}
	return r, nil
}

// ExtractReply never fails: anything ParseReply rejects becomes
// FallbackReply(previousName). A blank name in an otherwise valid reply keeps
// previousName.
func ExtractReply(raw, previousName string) Reply {
	r, err := ParseReply(raw)
	if err != nil {
		return FallbackReply(previousName)
	}
	if r.Name == "" {
		r.Name = previousName
	}
	return r
}
