package log

import "sort"

// Attribute keys shared by every component.
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldQuery      = "query"
	FieldUserAgent  = "user_agent"
	FieldReferer    = "referer"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldUserID     = "user_id"
	FieldSessionID  = "session_id"
	FieldGoalID     = "goal_id"
	FieldGoalName   = "goal_name"
	FieldTarget     = "target_amount"
	FieldMonths     = "months"
	FieldPersona    = "persona"
	FieldReplyChars = "reply_chars"
	FieldSheetsRef  = "sheets_ref"
)

// Component names, one per package that logs.
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentTrace     = "trace"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
	ComponentBudget    = "budget"
	ComponentGoal      = "goal"
	ComponentAssistant = "assistant"
	ComponentGenAI     = "genai"
	ComponentStorage   = "storage"
	ComponentBackend   = "backend"
	ComponentCache     = "cache"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
)

// Operations a goal or budget event reports.
const (
	OpCreate     = "create"
	OpRead       = "read"
	OpUpdate     = "update"
	OpDelete     = "delete"
	OpList       = "list"
	OpContribute = "contribute"
	OpAnalyze    = "analyze"
)

// ErrorTypeConfiguration tags startup failures caused by bad settings.
const ErrorTypeConfiguration = "configuration_error"

// LogFields collects attributes before handing them to slog. Builders skip
// empty values so lines only carry what is known.
type LogFields map[string]any

func NewFields() LogFields { return LogFields{} }

func (f LogFields) set(key string, v any) LogFields {
	if s, ok := v.(string); !ok || s != "" {
		f[key] = v
	}
	return f
}

func (f LogFields) WithRequestID(id string) LogFields { return f.set(FieldRequestID, id) }
func (f LogFields) WithClientIP(ip string) LogFields  { return f.set(FieldClientIP, ip) }
func (f LogFields) WithOperation(op string) LogFields { return f.set(FieldOperation, op) }
func (f LogFields) WithUser(userID string) LogFields  { return f.set(FieldUserID, userID) }

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithGoal(id, name, target string, months int) LogFields {
	return f.set(FieldGoalID, id).set(FieldGoalName, name).set(FieldTarget, target).set(FieldMonths, months)
}

// WithRequestMeta adds whichever of query, user agent and referer are set.
// Method and path travel on the request logger itself.
func (f LogFields) WithRequestMeta(query, userAgent, referer string) LogFields {
	return f.set(FieldQuery, query).set(FieldUserAgent, userAgent).set(FieldReferer, referer)
}

func (f LogFields) WithHTTPResponse(status int, durationMs int64) LogFields {
	return f.set(FieldStatusCode, status).set(FieldDuration, durationMs)
}

// ToSlice flattens f into slog key/value pairs, keys sorted so lines are
// stable.
func (f LogFields) ToSlice() []any {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		out = append(out, k, f[k])
	}
	return out
}
