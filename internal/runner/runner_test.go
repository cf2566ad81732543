package runner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRun_NeverExceedsConcurrencyCap(t *testing.T) {
	t.Parallel()

	for _, cap := range []int{1, 2, 5, 50} {
		t.Run(fmt.Sprintf("cap_%d", cap), func(t *testing.T) {
			t.Parallel()

			var inFlight, peak atomic.Int64
			tasks := make([]Task[int], 100)
			for i := range tasks {
				idx := i
				tasks[i] = Task[int]{
					Label: fmt.Sprintf("item-%d", idx),
					Fn: func(_ context.Context) (int, error) {
						now := inFlight.Add(1)
						for {
							p := peak.Load()
							if now <= p || peak.CompareAndSwap(p, now) {
								break
							}
						}
						time.Sleep(time.Millisecond)
						inFlight.Add(-1)
						return idx, nil
					},
				}
			}

			outcomes, err := Run(context.Background(), cap, tasks)
			require.NoError(t, err)
			require.Len(t, outcomes, 100)
			require.LessOrEqual(t, peak.Load(), int64(cap))
			require.Greater(t, peak.Load(), int64(0))
		})
	}
}

func TestRun_MixedFailuresReturnExactCounts(t *testing.T) {
	t.Parallel()

	failing := map[int]bool{3: true, 7: true, 11: true}
	tasks := make([]Task[string], 20)
	for i := range tasks {
		idx := i
		tasks[i] = Task[string]{
			Label: fmt.Sprintf("item-%d", idx),
			Fn: func(_ context.Context) (string, error) {
				if failing[idx] {
					return "", errors.New("injected failure")
				}
				return fmt.Sprintf("ok-%d", idx), nil
			},
		}
	}

	outcomes, err := Run(context.Background(), 4, tasks)
	require.NoError(t, err)
	require.Len(t, outcomes, 20)
	require.Equal(t, 3, CountFailed(outcomes))
	require.Len(t, Successes(outcomes), 17)

	for i, o := range outcomes {
		require.Equal(t, i, o.Index)
		require.Equal(t, fmt.Sprintf("item-%d", i), o.Label)
		if failing[i] {
			require.Error(t, o.Err)
		} else {
			require.Equal(t, fmt.Sprintf("ok-%d", i), o.Value)
		}
	}
}

func TestRun_RejectsInvalidLimit(t *testing.T) {
	t.Parallel()

	_, err := Run(context.Background(), 0, []Task[int]{})
	require.Error(t, err)

	_, err = Run(context.Background(), -3, []Task[int]{})
	require.Error(t, err)
}

func TestRun_EmptyBatch(t *testing.T) {
	t.Parallel()

	outcomes, err := Run(context.Background(), 5, []Task[int]{})
	require.NoError(t, err)
	require.Empty(t, outcomes)
}

func TestRun_CanceledContextMarksUnstartedTasks(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	release := make(chan struct{})
	tasks := []Task[int]{
		{
			Label: "blocker",
			Fn: func(_ context.Context) (int, error) {
				close(started)
				<-release
				return 1, nil
			},
		},
		{
			Label: "never-started",
			Fn: func(_ context.Context) (int, error) {
				return 2, nil
			},
		},
	}

	go func() {
		<-started
		cancel()
		close(release)
	}()

	outcomes, err := Run(ctx, 1, tasks)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	require.NoError(t, outcomes[0].Err)
	require.Error(t, outcomes[1].Err)
	require.ErrorIs(t, outcomes[1].Err, context.Canceled)
}
