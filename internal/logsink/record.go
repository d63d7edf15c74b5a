package logsink

import (
	"log/slog"
	"time"
)

func newRecord(message string, fields Fields) slog.Record {
	record := slog.NewRecord(time.Now(), slog.LevelDebug, message, 0)
	for _, key := range fields.Keys() {
		record.AddAttrs(attr(key, fields[key]))
	}
	return record
}

func attr(key string, value any) slog.Attr {
	switch v := value.(type) {
	case nil:
		return slog.Any(key, nil)
	case *float64:
		if v == nil {
			return slog.Any(key, nil)
		}
		return slog.Float64(key, *v)
	case float64:
		return slog.Float64(key, v)
	case string:
		return slog.String(key, v)
	default:
		return slog.Any(key, v)
	}
}
