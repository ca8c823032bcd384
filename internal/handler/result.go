package handler

// LogLevel is one of the five levels the captured handler logger accepts.
type LogLevel string

const (
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelDebug LogLevel = "debug"
	LevelTrace LogLevel = "trace"
)

// LogRecord is one entry captured by the per-invocation logger.
type LogRecord struct {
	Level     LogLevel       `json:"level"`
	Handler   string         `json:"handler"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields"`
	Timestamp string         `json:"timestamp"`
}

// TriggerRecord is an explicit request, made during handler execution,
// to emit a named event after the handler completes. Re-dispatch is the
// engine adapter's job, not this module's.
type TriggerRecord struct {
	EventName string `json:"event_name"`
	Payload   any    `json:"payload"`
}

// ExecutionResult is the outcome of one invocation. Handler-level
// failures (missing compilation, load failure, handler not found,
// runtime error) are all expressed here with Success=false; the RPC
// error channel is reserved for transport faults.
type ExecutionResult struct {
	Success             bool            `json:"success"`
	Data                any             `json:"data"`
	Error               *string         `json:"error"`
	ExecutionTimeMs     int64           `json:"execution_time_ms"`
	Logs                []LogRecord     `json:"logs"`
	Triggers            []TriggerRecord `json:"triggers"`
	AutoTriggerPayloads map[string]any  `json:"auto_trigger_payloads"`
}

// Succeeded creates a successful result carrying data.
func Succeeded(data any, elapsedMs int64) *ExecutionResult {
	return &ExecutionResult{
		Success:             true,
		Data:                data,
		ExecutionTimeMs:     elapsedMs,
		Logs:                []LogRecord{},
		Triggers:            []TriggerRecord{},
		AutoTriggerPayloads: map[string]any{},
	}
}

// Errored creates a failed result carrying an error string.
func Errored(message string, elapsedMs int64) *ExecutionResult {
	return &ExecutionResult{
		Success:             false,
		Error:               &message,
		ExecutionTimeMs:     elapsedMs,
		Logs:                []LogRecord{},
		Triggers:            []TriggerRecord{},
		AutoTriggerPayloads: map[string]any{},
	}
}

// ErrorMessage returns the error string, or "" for successful results.
func (r *ExecutionResult) ErrorMessage() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}
