package jobs

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, job *Job) ([]ProgressMsg, ResultMsg) {
	t.Helper()
	var progress []ProgressMsg
	var result *ResultMsg
	for msg := range job.Events() {
		switch m := msg.(type) {
		case ProgressMsg:
			progress = append(progress, m)
		case ResultMsg:
			require.Nil(t, result, "more than one result")
			result = &m
		}
	}
	require.NotNil(t, result)
	return progress, *result
}

func TestGate(t *testing.T) {
	g := NewGate("email")
	assert.False(t, g.Running())
	assert.True(t, g.TryStart())
	assert.False(t, g.TryStart())
	assert.True(t, g.Running())
	g.Done()
	assert.True(t, g.TryStart())
}

func TestRunner_ProgressAndResult(t *testing.T) {
	r := NewRunner(nil)
	job, err := r.Go(context.Background(), r.Email, "search",
		func(ctx context.Context, progress func(int, int, string)) (any, error) {
			for i := 1; i <= 3; i++ {
				progress(i, 3, "msg")
			}
			return 42, nil
		})
	require.NoError(t, err)

	progress, res := drain(t, job)
	assert.Len(t, progress, 3)
	assert.Equal(t, ProgressMsg{Job: "search", Done: 3, Total: 3, Label: "msg"}, progress[2])
	assert.Equal(t, "search", res.Job)
	assert.Equal(t, 42, res.Value)
	assert.NoError(t, res.Err)
	assert.False(t, res.Cancelled)
	assert.False(t, r.Email.Running())
}

func TestRunner_RejectsSecondLaunch(t *testing.T) {
	r := NewRunner(nil)
	release := make(chan struct{})

	first, err := r.Go(context.Background(), r.Email, "list",
		func(ctx context.Context, _ func(int, int, string)) (any, error) {
			<-release
			return nil, nil
		})
	require.NoError(t, err)

	_, err = r.Go(context.Background(), r.Email, "search",
		func(context.Context, func(int, int, string)) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrBusy)

	// The other gate is independent.
	other, err := r.Go(context.Background(), r.Extraction, "extract",
		func(context.Context, func(int, int, string)) (any, error) { return nil, nil })
	require.NoError(t, err)
	drain(t, other)

	close(release)
	drain(t, first)

	again, err := r.Go(context.Background(), r.Email, "search",
		func(context.Context, func(int, int, string)) (any, error) { return nil, nil })
	require.NoError(t, err)
	drain(t, again)
}

func TestRunner_Cancel(t *testing.T) {
	r := NewRunner(nil)
	started := make(chan struct{})

	job, err := r.Go(context.Background(), r.Extraction, "extract",
		func(ctx context.Context, _ func(int, int, string)) (any, error) {
			close(started)
			<-ctx.Done()
			return []string{"partial"}, nil
		})
	require.NoError(t, err)

	<-started
	job.Cancel()
	_, res := drain(t, job)
	assert.True(t, res.Cancelled)
	assert.NoError(t, res.Err)
	assert.Equal(t, []string{"partial"}, res.Value)
}

func TestRunner_ErrorResult(t *testing.T) {
	r := NewRunner(nil)
	boom := errors.New("boom")

	job, err := r.Go(context.Background(), r.Email, "list",
		func(context.Context, func(int, int, string)) (any, error) { return nil, boom })
	require.NoError(t, err)

	job.Wait()
	assert.False(t, r.Email.Running())

	_, res := drain(t, job)
	assert.ErrorIs(t, res.Err, boom)
	assert.False(t, res.Cancelled)
}

func TestJob_WaitForEvent(t *testing.T) {
	r := NewRunner(nil)
	job, err := r.Go(context.Background(), r.Email, "count",
		func(_ context.Context, progress func(int, int, string)) (any, error) {
			progress(1, 1, "")
			return 7, nil
		})
	require.NoError(t, err)

	cmd := job.WaitForEvent()
	var msgs []tea.Msg
	for msg := cmd(); msg != nil; msg = cmd() {
		msgs = append(msgs, msg)
	}
	require.Len(t, msgs, 2)
	assert.IsType(t, ProgressMsg{}, msgs[0])
	assert.Equal(t, 7, msgs[1].(ResultMsg).Value)
}
