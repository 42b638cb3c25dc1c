package log

import "github.com/google/uuid"

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldQuery       = "query"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldUserAgent   = "user_agent"
	FieldReferer     = "referer"
	FieldSuccess     = "success"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldUserID      = "user_id"
	FieldTable       = "table"
	FieldRecordID    = "record_id"
	FieldChangeType  = "change_type"
	FieldAmountCents = "amount_cents"
	FieldTxType      = "tx_type"
	FieldCount       = "count"
	FieldSheetsRef   = "sheets_ref"
	FieldObjectPath  = "object_path"
	FieldGeneration  = "generation"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentHooks     = "hooks"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentRealtime  = "realtime"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentCache     = "cache"
	ComponentAuth      = "auth"
	ComponentInsights  = "insights"
	ComponentObjects   = "objects"
	ComponentGoals     = "goals"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
	ComponentClient    = "client"
)

// Operations defines standard operation names
const (
	OpCreate    = "create"
	OpRead      = "read"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpList      = "list"
	OpFetch     = "fetch"
	OpAppend    = "append"
	OpPublish   = "publish"
	OpSubscribe = "subscribe"
	OpUpload    = "upload"
	OpGenerate  = "generate"
	OpSweep     = "sweep"
	OpShutdown  = "shutdown"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds error field; nil errors are ignored.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithUser(id uuid.UUID) LogFields {
	f[FieldUserID] = id.String()
	return f
}

// WithChange adds the fields identifying a change-feed event.
func (f LogFields) WithChange(table, changeType, recordID string) LogFields {
	f[FieldTable] = table
	f[FieldChangeType] = changeType
	if recordID != "" {
		f[FieldRecordID] = recordID
	}
	return f
}

// WithTransaction adds transaction amount and type fields
func (f LogFields) WithTransaction(txType string, amountCents int64) LogFields {
	f[FieldTxType] = txType
	f[FieldAmountCents] = amountCents
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query, userAgent, referer string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	f[FieldReferer] = referer
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
