package schedule

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()

	logger := zerolog.Nop()

	s, err := New(context.Background(), &logger)
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Stop() })

	return s
}

func noopJob(context.Context) error { return nil }

func TestAddJob(t *testing.T) {
	tests := []struct {
		name      string
		jobName   string
		cron      string
		job       Job
		wantAdded bool
		wantErr   bool
	}{
		{name: "valid", jobName: "telegram", cron: "*/15 * * * *", job: noopJob, wantAdded: true},
		{name: "disabled", jobName: "whatsapp", cron: "  ", job: noopJob},
		{name: "invalid cron", jobName: "dedup", cron: "every tuesday", job: noopJob, wantErr: true},
		{name: "empty name", jobName: "", cron: "* * * * *", job: noopJob, wantErr: true},
		{name: "nil job", jobName: "nil", cron: "* * * * *", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestScheduler(t)

			added, err := s.AddJob(tt.jobName, tt.cron, tt.job)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantAdded, added)

			want := 0
			if tt.wantAdded {
				want = 1
			}

			assert.Equal(t, want, s.Jobs())
		})
	}
}

func TestWrap_SkipsAfterCancel(t *testing.T) {
	logger := zerolog.Nop()
	ctx, cancel := context.WithCancel(context.Background())

	s, err := New(ctx, &logger)
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Stop() })

	calls := 0
	task := s.wrap("job", func(context.Context) error {
		calls++

		return nil
	})

	task()
	cancel()
	task()

	assert.Equal(t, 1, calls)
}

func TestWrap_RecoversPanic(t *testing.T) {
	s := newTestScheduler(t)

	task := s.wrap("panics", func(context.Context) error {
		panic("boom")
	})

	assert.NotPanics(t, task)
}
