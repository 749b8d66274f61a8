package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordPresence(t *testing.T) {
	var rec Record
	require.True(t, rec.Empty())

	rec.TimeData = TimeData{}
	require.True(t, rec.Has(FieldTimeData), "empty non-nil map is present")
	require.False(t, rec.Has(FieldHistory))
	require.Equal(t, []Field{FieldTimeData}, rec.Fields())
}

func TestRecordMerge(t *testing.T) {
	base := Record{
		TimeData:  TimeData{"a.com": 10},
		History:   History{"2024-01-01": {"a.com": 10}},
		LastReset: String("2024-01-01"),
	}
	reset := Record{
		TimeData:  TimeData{},
		LastReset: String("2024-01-02"),
	}

	merged := base.Merge(reset)
	require.Empty(t, merged.TimeData)
	require.NotNil(t, merged.TimeData)
	require.Equal(t, "2024-01-02", *merged.LastReset)
	require.Len(t, merged.History, 1)
}

func TestRecordCloneIsDeep(t *testing.T) {
	rec := Record{
		TimeData:   TimeData{"a.com": 10},
		History:    History{"2024-01-01": {"a.com": 10}},
		DailyLimit: Int64(5),
	}
	clone := rec.Clone()

	rec.TimeData["a.com"] = 99
	rec.History["2024-01-01"]["a.com"] = 99
	*rec.DailyLimit = 6

	require.Equal(t, int64(10), clone.TimeData["a.com"])
	require.Equal(t, int64(10), clone.History["2024-01-01"]["a.com"])
	require.Equal(t, int64(5), *clone.DailyLimit)
}

func TestHistoryDatesDescending(t *testing.T) {
	h := History{
		"2024-01-03": {},
		"2023-12-31": {},
		"2024-01-10": {},
	}
	require.Equal(t, []string{"2024-01-10", "2024-01-03", "2023-12-31"}, h.Dates())
}

func TestDecodeFieldNullIsEmpty(t *testing.T) {
	var rec Record
	require.NoError(t, DecodeField(&rec, FieldTimeData, []byte("null")))
	require.NotNil(t, rec.TimeData)
	require.Empty(t, rec.TimeData)
}

func TestTimeDataTotal(t *testing.T) {
	require.Equal(t, int64(61000), TimeData{"a.com": 60000, "b.com": 1000}.Total())
	require.Equal(t, int64(0), TimeData(nil).Total())
}
