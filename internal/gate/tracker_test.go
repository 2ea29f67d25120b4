package gate_test

import (
	"context"
	"errors"
	"testing"

	"github.com/navikt/liveroom/internal/gate"
	"github.com/navikt/liveroom/internal/metrics"
	"github.com/navikt/liveroom/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingProber hands each call's answer over a channel so tests can
// control the order responses arrive in
type blockingProber struct {
	started chan struct{}
	answers chan *models.CanJoinResponse
}

func newBlockingProber() *blockingProber {
	return &blockingProber{
		started: make(chan struct{}, 4),
		answers: make(chan *models.CanJoinResponse, 4),
	}
}

func (b *blockingProber) CanJoin(ctx context.Context, _ int) (*models.CanJoinResponse, error) {
	b.started <- struct{}{}
	select {
	case resp := <-b.answers:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestTrackerRefresh(t *testing.T) {
	prober := &stubProber{resp: &models.CanJoinResponse{CanJoin: true, Session: activeSession()}}
	tracker := gate.NewTracker(gate.New(prober, nil), 42)

	assert.True(t, tracker.State().Loading)

	var seen []models.RoomAccessState
	tracker.OnChange(func(state models.RoomAccessState) {
		seen = append(seen, state)
	})

	state, applied := tracker.Refresh(context.Background())
	assert.True(t, applied)
	assert.False(t, state.Loading)
	assert.True(t, state.CanJoin)
	assert.Equal(t, "Keynote", state.SessionInfo.Title)

	require.Len(t, seen, 2)
	assert.True(t, seen[0].Loading)
	assert.False(t, seen[1].Loading)
}

func TestTrackerRefreshFailure(t *testing.T) {
	prober := &stubProber{err: errors.New("timeout")}
	tracker := gate.NewTracker(gate.New(prober, nil), 42)

	state, applied := tracker.Refresh(context.Background())
	assert.True(t, applied)
	assert.False(t, state.CanJoin)
	assert.Equal(t, gate.CheckFailedMessage, state.Err)
}

func TestTrackerDiscardsStaleResponse(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	prober := newBlockingProber()
	tracker := gate.NewTracker(gate.New(prober, m), 42)

	firstDone := make(chan bool)
	go func() {
		_, applied := tracker.Refresh(context.Background())
		firstDone <- applied
	}()
	<-prober.started

	secondDone := make(chan bool)
	go func() {
		_, applied := tracker.Refresh(context.Background())
		secondDone <- applied
	}()
	<-prober.started

	// Both checks are in flight. Whichever call receives the grant first,
	// only the later-issued check may be applied.
	prober.answers <- &models.CanJoinResponse{CanJoin: true, Session: activeSession()}
	prober.answers <- &models.CanJoinResponse{CanJoin: false, Reason: "Aucune session live active"}

	firstApplied := <-firstDone
	secondApplied := <-secondDone

	assert.False(t, firstApplied)
	assert.True(t, secondApplied)
	assert.False(t, tracker.State().Loading)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StaleAccessResponses))
}

func TestTrackerClosedIgnoresResults(t *testing.T) {
	prober := newBlockingProber()
	tracker := gate.NewTracker(gate.New(prober, nil), 42)

	done := make(chan bool)
	go func() {
		_, applied := tracker.Refresh(context.Background())
		done <- applied
	}()
	<-prober.started

	tracker.Close()
	prober.answers <- &models.CanJoinResponse{CanJoin: true, Session: activeSession()}

	assert.False(t, <-done)
	assert.False(t, tracker.State().CanJoin)

	_, applied := tracker.Refresh(context.Background())
	assert.False(t, applied)
}

func TestTrackerSetHasLeft(t *testing.T) {
	tracker := gate.NewTracker(gate.New(&stubProber{}, nil), 42)

	calls := 0
	tracker.OnChange(func(models.RoomAccessState) { calls++ })

	tracker.SetHasLeft(true)
	tracker.SetHasLeft(true)
	assert.True(t, tracker.State().HasLeft)
	assert.Equal(t, 1, calls)
}
