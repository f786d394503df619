package handler_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pyama86/dlpwatch/domain/entity"
	"github.com/pyama86/dlpwatch/domain/incident"
	"github.com/pyama86/dlpwatch/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	calls atomic.Int32
	fetch func(ctx context.Context, call int) (any, error)
}

func (s *fakeSource) FetchIncidents(ctx context.Context) (any, error) {
	n := int(s.calls.Add(1))
	return s.fetch(ctx, n)
}

func payloadOf(ids ...string) any {
	entries := make([]any, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, map[string]any{
			"id":            id,
			"timestamp":     "2025-12-07T22:00:00Z",
			"incident_type": "INN",
		})
	}
	return map[string]any{"incidents": entries}
}

func viewIDs(s *incident.Store) []string {
	ids := []string{}
	for _, inc := range s.View() {
		ids = append(ids, inc.ID)
	}
	return ids
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func TestPollerFetchesImmediately(t *testing.T) {
	src := &fakeSource{fetch: func(context.Context, int) (any, error) {
		return payloadOf("1", "2"), nil
	}}
	store := incident.NewStore()
	p := handler.NewPoller(src, nil, store, handler.WithPollInterval(time.Hour))

	stop := p.Start(context.Background())
	defer stop()

	require.Eventually(t, func() bool { return store.Len() == 2 }, waitFor, tick)
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, entity.PollSuccess, store.Status().State)
}

func TestPollerSkipsTicksWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	src := &fakeSource{fetch: func(ctx context.Context, call int) (any, error) {
		if call == 1 {
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return payloadOf(fmt.Sprint(call)), nil
	}}
	store := incident.NewStore()
	p := handler.NewPoller(src, nil, store, handler.WithPollInterval(10*time.Millisecond))

	stop := p.Start(context.Background())
	defer stop()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, entity.PollLoading, store.Status().State)

	// 手動更新は実行中でも発行される
	require.NoError(t, p.Refresh())
	require.Eventually(t, func() bool { return src.calls.Load() == 2 }, waitFor, tick)

	close(release)
	require.Eventually(t, func() bool { return src.calls.Load() > 2 }, waitFor, tick)
}

func TestPollerDiscardsStaleResult(t *testing.T) {
	release := make(chan struct{})
	firstDone := make(chan struct{})
	src := &fakeSource{fetch: func(ctx context.Context, call int) (any, error) {
		if call == 1 {
			defer close(firstDone)
			<-release
			return payloadOf("old"), nil
		}
		return payloadOf("new"), nil
	}}
	store := incident.NewStore()
	var mu sync.Mutex
	var notified []uint64
	p := handler.NewPoller(src, nil, store,
		handler.WithPollInterval(time.Hour),
		handler.WithPollListener(handler.PollListenerFunc(func(_ context.Context, r handler.PollResult) {
			mu.Lock()
			defer mu.Unlock()
			notified = append(notified, r.Seq)
		})),
	)

	stop := p.Start(context.Background())
	defer stop()

	// seq 1 が先に取得を始めてから更新を発行する
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, waitFor, tick)
	require.NoError(t, p.Refresh())
	require.Eventually(t, func() bool { return store.Len() == 1 }, waitFor, tick)
	assert.Equal(t, []string{"new"}, viewIDs(store))

	close(release)
	<-firstDone
	require.Eventually(t, func() bool { return p.InFlight() == 0 }, waitFor, tick)

	assert.Equal(t, []string{"new"}, viewIDs(store))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{2}, notified)
}

func TestPollerFailureKeepsSnapshot(t *testing.T) {
	ids := make([]string, 0, 8)
	for i := 1; i <= 8; i++ {
		ids = append(ids, fmt.Sprint(i))
	}
	boom := errors.New("connection refused")
	src := &fakeSource{fetch: func(_ context.Context, call int) (any, error) {
		if call == 1 {
			return payloadOf(ids...), nil
		}
		return nil, boom
	}}
	store := incident.NewStore()
	p := handler.NewPoller(src, nil, store, handler.WithPollInterval(time.Hour))

	stop := p.Start(context.Background())
	defer stop()

	require.Eventually(t, func() bool { return store.Len() == 8 }, waitFor, tick)
	require.NoError(t, p.Refresh())
	require.Eventually(t, func() bool { return store.Status().State == entity.PollFailure }, waitFor, tick)

	st := store.Status()
	assert.Equal(t, 8, store.Len())
	assert.ErrorIs(t, st.Err, boom)
	assert.True(t, st.Banner())
	assert.False(t, st.FullScreenError())
}

func TestPollerFirstFailureIsFullScreen(t *testing.T) {
	src := &fakeSource{fetch: func(context.Context, int) (any, error) {
		return nil, errors.New("503")
	}}
	store := incident.NewStore()
	p := handler.NewPoller(src, nil, store, handler.WithPollInterval(time.Hour))

	stop := p.Start(context.Background())
	defer stop()

	require.Eventually(t, func() bool { return store.Status().State == entity.PollFailure }, waitFor, tick)
	assert.True(t, store.Status().FullScreenError())
	assert.Equal(t, 0, store.Len())
}

func TestPollerTimeout(t *testing.T) {
	src := &fakeSource{fetch: func(ctx context.Context, _ int) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	store := incident.NewStore()
	p := handler.NewPoller(src, nil, store,
		handler.WithPollInterval(time.Hour),
		handler.WithPollTimeout(20*time.Millisecond),
	)

	stop := p.Start(context.Background())
	defer stop()

	require.Eventually(t, func() bool { return store.Status().State == entity.PollFailure }, waitFor, tick)
	assert.ErrorIs(t, store.Status().Err, context.DeadlineExceeded)
}

func TestPollerStop(t *testing.T) {
	started := make(chan struct{})
	src := &fakeSource{fetch: func(ctx context.Context, _ int) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	store := incident.NewStore()
	p := handler.NewPoller(src, nil, store, handler.WithPollInterval(10*time.Millisecond))

	assert.ErrorIs(t, p.Refresh(), handler.ErrPollerNotRunning)

	stop := p.Start(context.Background())
	<-started
	stop()
	stop()

	assert.Equal(t, 0, p.InFlight())
	assert.Equal(t, int32(1), src.calls.Load())
	// 停止中の結果は反映されない
	assert.Equal(t, entity.PollLoading, store.Status().State)
	assert.ErrorIs(t, p.Refresh(), handler.ErrPollerNotRunning)
}

type fakeArchive struct {
	mu    sync.Mutex
	saved [][]entity.Incident
	err   error
}

func (a *fakeArchive) SaveIncidents(_ context.Context, incidents []entity.Incident) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.saved = append(a.saved, incidents)
	return a.err
}

func (a *fakeArchive) FindIncident(_ context.Context, id string) (*entity.Incident, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := len(a.saved) - 1; i >= 0; i-- {
		for _, inc := range a.saved[i] {
			if inc.ID == id {
				return &inc, nil
			}
		}
	}
	return nil, nil
}

func (a *fakeArchive) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.saved)
}

func TestArchiveListener(t *testing.T) {
	archive := &fakeArchive{}
	l := handler.NewArchiveListener(archive)

	l.OnPoll(context.Background(), handler.PollResult{Err: errors.New("boom")})
	l.OnPoll(context.Background(), handler.PollResult{})
	assert.Equal(t, 0, archive.count())

	l.OnPoll(context.Background(), handler.PollResult{Incidents: []entity.Incident{{ID: "1"}}})
	assert.Equal(t, 1, archive.count())

	archive.err = errors.New("throttled")
	l.OnPoll(context.Background(), handler.PollResult{Incidents: []entity.Incident{{ID: "2"}}})
	assert.Equal(t, 2, archive.count())

	// 失敗したスナップショットは次回も保存を試みる
	archive.err = nil
	l.OnPoll(context.Background(), handler.PollResult{Incidents: []entity.Incident{{ID: "2"}}})
	assert.Equal(t, 3, archive.count())

	found, err := archive.FindIncident(context.Background(), "1")
	require.NoError(t, err)
	require.NotNil(t, found)
}

func TestArchiveListenerSkipsUnchangedSnapshot(t *testing.T) {
	archive := &fakeArchive{}
	src := &fakeSource{fetch: func(context.Context, int) (any, error) {
		return payloadOf("1", "2"), nil
	}}
	store := incident.NewStore()
	p := handler.NewPoller(src, nil, store,
		handler.WithPollInterval(time.Hour),
		handler.WithPollListener(handler.NewArchiveListener(archive)),
	)

	stop := p.Start(context.Background())
	defer stop()

	require.Eventually(t, func() bool { return archive.count() == 1 }, waitFor, tick)
	require.NoError(t, p.Refresh())
	require.Eventually(t, func() bool { return src.calls.Load() == 2 && p.InFlight() == 0 }, waitFor, tick)

	assert.Equal(t, 1, archive.count())
}
