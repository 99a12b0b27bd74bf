package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchedule(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		raw    string
		source string
		next   time.Time
	}{
		{"10s", "duration", base.Add(10 * time.Second)},
		{"every:2m", "duration", base.Add(2 * time.Minute)},
		{"00:05", "hhmm", base.Add(5 * time.Minute)},
		{"@every 30s", "cron", base.Add(30 * time.Second)},
		{"*/15 * * * *", "cron", base.Add(15 * time.Minute)},
		{"cron:*/20 * * * * *", "cron", base.Add(20 * time.Second)},
	}
	for _, tc := range cases {
		p, err := ParseSchedule(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.source, p.Source, tc.raw)
		assert.Equal(t, tc.next, p.Schedule.Next(base), tc.raw)
	}
}

func TestParseScheduleErrors(t *testing.T) {
	for _, raw := range []string{"", "soon", "500ms", "-1m", "00:75", "cron:", "* * *"} {
		_, err := ParseSchedule(raw)
		assert.Error(t, err, raw)
	}
}

func TestParsedScheduleString(t *testing.T) {
	assert.Equal(t, "every 10s", MustSchedule("10s").String())
	assert.Equal(t, "every 30s", MustSchedule("@every 30s").String())
	assert.Equal(t, "*/15 * * * *", MustSchedule("*/15 * * * *").String())
}
