package storage

import (
	"encoding/json"
	"fmt"
)

// EncodeField serializes the value of f held in rec as JSON.
func EncodeField(rec Record, f Field) ([]byte, error) {
	var value any
	switch f {
	case FieldTimeData:
		value = rec.TimeData
	case FieldHistory:
		value = rec.History
	case FieldLastReset:
		value = rec.LastReset
	case FieldDailyLimit:
		value = rec.DailyLimit
	case FieldAlertsEnabled:
		value = rec.AlertsEnabled
	default:
		return nil, fmt.Errorf("unknown field: %s", f)
	}
	if !rec.Has(f) {
		return nil, fmt.Errorf("field %s is absent", f)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", f, err)
	}
	return data, nil
}

// DecodeField parses data as field f and stores it in rec.
func DecodeField(rec *Record, f Field, data []byte) error {
	var err error
	switch f {
	case FieldTimeData:
		td := TimeData{}
		err = json.Unmarshal(data, &td)
		if td == nil {
			td = TimeData{}
		}
		rec.TimeData = td
	case FieldHistory:
		h := History{}
		err = json.Unmarshal(data, &h)
		if h == nil {
			h = History{}
		}
		rec.History = h
	case FieldLastReset:
		var s string
		err = json.Unmarshal(data, &s)
		rec.LastReset = &s
	case FieldDailyLimit:
		var v int64
		err = json.Unmarshal(data, &v)
		rec.DailyLimit = &v
	case FieldAlertsEnabled:
		var v bool
		err = json.Unmarshal(data, &v)
		rec.AlertsEnabled = &v
	default:
		return fmt.Errorf("unknown field: %s", f)
	}
	if err != nil {
		return fmt.Errorf("unmarshal %s: %w", f, err)
	}
	return nil
}
