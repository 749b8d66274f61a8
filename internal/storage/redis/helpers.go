package redis

import (
	"fmt"

	"github.com/goodtune/sitetime/internal/storage"
)

func fieldKey(prefix string, f storage.Field) string {
	return fmt.Sprintf("%s:%s", prefix, f)
}

func updatedAtKey(prefix string) string {
	return prefix + ":updatedAt"
}

// parseValues converts an MGET reply into a Record. Nil replies are absent
// fields.
func parseValues(fields []storage.Field, values []interface{}) (storage.Record, error) {
	var rec storage.Record
	if len(values) != len(fields) {
		return rec, fmt.Errorf("expected %d values, got %d", len(fields), len(values))
	}

	for i, v := range values {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return rec, fmt.Errorf("unexpected %T for %s", v, fields[i])
		}
		if err := storage.DecodeField(&rec, fields[i], []byte(s)); err != nil {
			return rec, err
		}
	}

	return rec, nil
}
