// Package gate decides whether the current user may enter a conference's
// live room. A check that cannot reach a verdict always denies.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/navikt/liveroom/internal/metrics"
	"github.com/navikt/liveroom/internal/models"
)

// CheckFailedMessage is shown when the eligibility probe itself failed
const CheckFailedMessage = "Impossible de vérifier l'accès à la session"

// ErrInvalidConference is returned for a non-positive conference id
var ErrInvalidConference = errors.New("invalid conference id")

// Prober asks the backend whether a joinable session exists
type Prober interface {
	CanJoin(ctx context.Context, conferenceID int) (*models.CanJoinResponse, error)
}

// Gate wraps the eligibility probe
type Gate struct {
	prober  Prober
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a gate over prober. m may be nil.
func New(prober Prober, m *metrics.Metrics) *Gate {
	return &Gate{prober: prober, metrics: m, now: time.Now}
}

// Check probes conferenceID. It never returns CanJoin=true unless the
// backend explicitly granted access with a session attached.
func (g *Gate) Check(ctx context.Context, conferenceID int) models.AccessResult {
	result := models.AccessResult{ConferenceID: conferenceID, CheckedAt: g.now()}

	if conferenceID <= 0 {
		result.Err = fmt.Errorf("%w: %d", ErrInvalidConference, conferenceID)
		result.Reason = CheckFailedMessage
		g.metrics.RecordAccessCheck(metrics.OutcomeFailed)
		return result
	}

	resp, err := g.prober.CanJoin(ctx, conferenceID)
	if err != nil {
		log.Printf("Access check failed for conference %d: %v", conferenceID, err)
		result.Err = err
		result.Reason = CheckFailedMessage
		g.metrics.RecordAccessCheck(metrics.OutcomeFailed)
		return result
	}

	if !resp.CanJoin || resp.Session == nil {
		result.Reason = resp.Reason
		g.metrics.RecordAccessCheck(metrics.OutcomeDenied)
		return result
	}

	result.CanJoin = true
	result.Session = resp.Session
	g.metrics.RecordAccessCheck(metrics.OutcomeGranted)
	return result
}
