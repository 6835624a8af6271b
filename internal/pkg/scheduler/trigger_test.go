package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerNext(t *testing.T) {
	from := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		trigger Trigger
		want    time.Time
	}{
		{"interval", Every(time.Hour), from.Add(time.Hour)},
		{"daily cron later today", Cron("0 18 * * *"), time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)},
		{"daily cron tomorrow", Cron("0 9 * * *"), time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		{"weekly cron", Cron("0 3 * * 0"), time.Date(2026, 3, 8, 3, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.trigger.Next(from)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestTriggerValidate(t *testing.T) {
	assert.NoError(t, Every(5*time.Second).Validate())
	assert.NoError(t, Cron("*/5 * * * *").Validate())

	for _, tr := range []Trigger{
		Every(0),
		Every(500 * time.Millisecond),
		Cron("not a cron"),
		Cron(""),
		{Kind: "date"},
	} {
		err := tr.Validate()
		assert.True(t, errors.Is(err, ErrInvalidTrigger), "expected invalid trigger for %+v", tr)
	}
}
