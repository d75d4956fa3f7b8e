package logger

import (
	"log/slog"
	"strconv"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups the non-nil errors under "errors". It returns an empty Attr
// when every error is nil.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error records err under "error". A nil err yields an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Namespace records the cache and snapshot namespace.
func Namespace(ns string) slog.Attr {
	return slog.String("namespace", ns)
}

func Domain(domain string) slog.Attr {
	return slog.String("domain", domain)
}

func FlagKey(key string) slog.Attr {
	return slog.String("flag_key", key)
}

// SyncMode records the fetch mode of a sync cycle ("full" or "time-only").
func SyncMode(mode string) slog.Attr {
	return slog.String("sync_mode", mode)
}

// UpdatedAt records a configuration timestamp given in milliseconds.
func UpdatedAt(ms int64) slog.Attr {
	return slog.Time("updated_at", time.UnixMilli(ms).UTC())
}

func SnapshotID(id int64) slog.Attr {
	return slog.Int64("snapshot_id", id)
}

func RetryCount(count int) slog.Attr {
	return slog.Int("retry_count", count)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}
