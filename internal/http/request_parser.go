package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"penny/internal/core"
)

const maxBodyBytes = 64 << 10

// dateLayout is the value format of <input type="date">.
const dateLayout = "2006-01-02"

var errFutureDate = errors.New("date cannot be in the future")

// ParseDateParam reads a yyyy-mm-dd form value. Empty means today; a value
// that does not parse is a field error. Dates after today are rejected.
func ParseDateParam(form url.Values, field string, now time.Time) (time.Time, error) {
	raw := strings.TrimSpace(form.Get(field))
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if raw == "" {
		return today, nil
	}
	d, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, &core.FieldError{Field: field, Value: raw, Err: core.ErrNotANumber}
	}
	if d.After(today) {
		return time.Time{}, &core.FieldError{Field: field, Value: raw, Err: errFutureDate}
	}
	return d, nil
}

// readBodyValues decodes a JSON object or a urlencoded form into url.Values.
// Scripts post JSON, htmx posts forms; handlers read both the same way.
// Nested JSON values are dropped.
func readBodyValues(r *http.Request) (url.Values, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(raw) == 0 {
		return url.Values{}, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" && raw[0] != '{' {
		return url.ParseQuery(string(raw))
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode json body: %w", err)
	}
	vals := make(url.Values, len(obj))
	for k, v := range obj {
		switch x := v.(type) {
		case string:
			vals.Set(k, x)
		case float64:
			vals.Set(k, strconv.FormatFloat(x, 'f', -1, 64))
		case bool:
			vals.Set(k, strconv.FormatBool(x))
		}
	}
	return vals, nil
}

// RequireMethod returns a 405 response unless r uses one of methods.
func RequireMethod(r *http.Request, methods ...string) *HTMXResponseBuilder {
	for _, m := range methods {
		if r.Method == m {
			return nil
		}
	}
	return MethodNotAllowedError(strings.Join(methods, ", "))
}

func RequirePOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodPost)
}

// RequireDeleteOrPOST guards endpoints htmx calls with hx-delete; plain forms
// fall back to POST.
func RequireDeleteOrPOST(r *http.Request) *HTMXResponseBuilder {
	return RequireMethod(r, http.MethodDelete, http.MethodPost)
}

// ParseFormOrFail parses r.Form with the body capped at maxBodyBytes.
func ParseFormOrFail(r *http.Request) *HTMXResponseBuilder {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return BadRequestError("The form could not be read. Please try again.")
	}
	return nil
}

func formValue(r *http.Request, key string) string {
	return sanitizeInput(r.Form.Get(key))
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
