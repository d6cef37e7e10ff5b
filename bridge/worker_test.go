package bridge

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"

	"github.com/chazu/starbridge/host"
)

func TestWorker_Exec(t *testing.T) {
	b, _ := newTestBridge(t)
	w := NewWorker(b)
	defer w.Stop()

	require.NoError(t, w.Exec(`
load("hostbridge", "main")
main.total = 0
`, nil, nil))

	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			locals := host.MapOf(map[string]any{"n": i})
			assert.NoError(t, w.Exec(`
load("hostbridge", "main")
main.total = main.total + n
`, locals, nil))
		}(i)
	}
	wg.Wait()

	total, ok := b.Interpreter().Main().Get("total")
	require.True(t, ok)
	assert.Equal(t, starlark.MakeInt(55), total)
}

func TestWorker_UsesOneContext(t *testing.T) {
	b, _ := newTestBridge(t)
	w := NewWorker(b)
	defer w.Stop()

	seen := make(chan uint64, 1)
	probe := &host.Func{Name: "probe", Fn: func(env *host.Env, _ []any) (any, error) {
		seen <- env.ID()
		return nil, nil
	}}
	require.NoError(t, w.Exec("probe.call()", host.MapOf(map[string]any{"probe": probe}), nil))
	assert.Equal(t, w.Env().ID(), <-seen)
}

func TestWorker_RecoversPanics(t *testing.T) {
	b, _ := newTestBridge(t)
	w := NewWorker(b)
	defer w.Stop()

	_, err := w.Do(func(*host.Env) (any, error) {
		panic("worker blew up")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker blew up")

	v, err := w.Do(func(env *host.Env) (any, error) { return env.ID(), nil })
	require.NoError(t, err)
	assert.Equal(t, w.Env().ID(), v)
}

func TestWorker_Stopped(t *testing.T) {
	b, _ := newTestBridge(t)
	w := NewWorker(b)
	w.Stop()

	_, err := w.Do(func(*host.Env) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrWorkerStopped)
}

func TestWorker_StopTwice(t *testing.T) {
	b, _ := newTestBridge(t)
	w := NewWorker(b)
	w.Stop()
	assert.NotPanics(t, w.Stop)
}

func TestWorker_StopAnswersAcceptedWork(t *testing.T) {
	b, _ := newTestBridge(t)
	w := NewWorker(b)

	started := make(chan struct{})
	release := make(chan struct{})
	type reply struct {
		value any
		err   error
	}
	running := make(chan reply, 1)
	queued := make(chan reply, 1)

	go func() {
		v, err := w.Do(func(*host.Env) (any, error) {
			close(started)
			<-release
			return "finished", nil
		})
		running <- reply{v, err}
	}()
	<-started

	go func() {
		v, err := w.Do(func(*host.Env) (any, error) { return "queued", nil })
		queued <- reply{v, err}
	}()
	require.Eventually(t, func() bool { return len(w.requests) == 1 }, time.Second, time.Millisecond)

	w.Stop()
	close(release)

	r := <-running
	require.NoError(t, r.err)
	assert.Equal(t, "finished", r.value)

	select {
	case r := <-queued:
		if r.err != nil {
			assert.ErrorIs(t, r.err, ErrWorkerStopped)
		} else {
			assert.Equal(t, "queued", r.value)
		}
	case <-time.After(time.Second):
		t.Fatal("queued work was never answered")
	}

	_, err := w.Do(func(*host.Env) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrWorkerStopped)
}
