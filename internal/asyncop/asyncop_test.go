package asyncop

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect[T any](op *Operation[T]) []Event[T] {
	var events []Event[T]
	for ev := range op.Events() {
		events = append(events, ev)
	}
	return events
}

func TestOperationCompletes(t *testing.T) {
	op := Start(context.Background(), func(ctx context.Context, report ReportFunc) (string, error) {
		report(Progress{Step: "upload", Completed: 1, Total: 2})
		report(Progress{Step: "submit", Completed: 2, Total: 2})
		return "done", nil
	})

	events := collect(op)
	require.Len(t, events, 3)
	assert.Equal(t, EventProgress, events[0].Kind)
	assert.Equal(t, "submit", events[1].Progress.Step)
	assert.Equal(t, EventCompleted, events[2].Kind)
	assert.Equal(t, "done", events[2].Result)

	res, err := op.Wait()
	require.NoError(t, err)
	assert.Equal(t, "done", res)
	assert.Equal(t, EventCompleted, op.State())
}

func TestOperationFails(t *testing.T) {
	boom := errors.New("boom")
	op := Start(context.Background(), func(ctx context.Context, report ReportFunc) (int, error) {
		return 0, boom
	})
	_, err := op.Wait()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, EventFailed, op.State())
}

func TestOperationCancelled(t *testing.T) {
	started := make(chan struct{})
	op := Start(context.Background(), func(ctx context.Context, report ReportFunc) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	})
	<-started
	op.Cancel()

	events := collect(op)
	require.NotEmpty(t, events)
	assert.Equal(t, EventCancelled, events[len(events)-1].Kind)
}

func TestOperationRecoversPanics(t *testing.T) {
	op := Start(context.Background(), func(ctx context.Context, report ReportFunc) (int, error) {
		panic("kaboom")
	})
	_, err := op.Wait()
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "kaboom", pe.Value)
}

func TestProgressNeverBlocksWorker(t *testing.T) {
	op := Start(context.Background(), func(ctx context.Context, report ReportFunc) (int, error) {
		for i := 0; i < 10*eventBuffer; i++ {
			report(Progress{Completed: i})
		}
		return 7, nil
	})
	res, err := op.Wait()
	require.NoError(t, err)
	assert.Equal(t, 7, res)

	events := collect(op)
	assert.Equal(t, EventCompleted, events[len(events)-1].Kind)
}
