package logger

import (
	"time"

	"go.uber.org/zap"
)

// String creates a field with a string value.
// Example: logger.Info("topic created", String("title", "My Title"))
func String(key, val string) Field {
	return zap.String(key, val)
}

// Int creates a field with an int value.
// Example: logger.Info("messages processed", Int("count", 42))
func Int(key string, val int) Field {
	return zap.Int(key, val)
}

// Int64 creates a field with an int64 value.
// Example: logger.Info("message", Int64("message_id", 123456))
func Int64(key string, val int64) Field {
	return zap.Int64(key, val)
}

// Bool creates a field with a boolean value.
// Example: logger.Info("mode", Bool("production", true))
func Bool(key string, val bool) Field {
	return zap.Bool(key, val)
}

// Duration creates a field with a time.Duration value.
// Example: logger.Info("request completed", Duration("elapsed", time.Second))
func Duration(key string, val time.Duration) Field {
	return zap.Duration(key, val)
}

// Time creates a field with a time.Time value.
// Example: logger.Info("cutoff computed", Time("cutoff", t))
func Time(key string, val time.Time) Field {
	return zap.Time(key, val)
}

// Error creates a field for an error value.
// The error is logged with the key "error" and includes the error message.
// Example: logger.Error("operation failed", Error(err))
func Error(err error) Field {
	return zap.Error(err)
}

// NamedError creates a field for an error value with a custom key.
// Use this when you want to log multiple errors or use a custom field name.
// Example: logger.Error("record failed", NamedError("tracker_error", err))
func NamedError(key string, err error) Field {
	return zap.NamedError(key, err)
}

// Strings creates a field with a slice of strings.
// Example: logger.Info("tags", Strings("hashtags", []string{"sync"}))
func Strings(key string, val []string) Field {
	return zap.Strings(key, val)
}

// Any creates a field with an arbitrary value.
// The value is serialized using reflection, which may be slower than typed fields.
// Prefer typed field constructors (String, Int, etc.) when possible.
func Any(key string, val any) Field {
	return zap.Any(key, val)
}
