package service

import (
	"context"
	"log"
	"sort"

	"github.com/navikt/liveroom/internal/models"
)

// PublicLister lists a conference's public sessions
type PublicLister interface {
	ListPublicSessions(ctx context.Context, conferenceID int) ([]models.LiveSession, error)
}

// Schedule serves the public session schedule of conferences
type Schedule struct {
	lister PublicLister
}

// NewSchedule creates a schedule backed by lister
func NewSchedule(lister PublicLister) *Schedule {
	return &Schedule{lister: lister}
}

// Sessions returns the conference's sessions ordered by scheduled time.
// A failed fetch yields an empty schedule.
func (s *Schedule) Sessions(ctx context.Context, conferenceID int) []models.LiveSession {
	sessions, err := s.lister.ListPublicSessions(ctx, conferenceID)
	if err != nil {
		log.Printf("Error loading public schedule for conference %d: %v", conferenceID, err)
		return []models.LiveSession{}
	}

	sorted := append([]models.LiveSession(nil), sessions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SessionTime.Before(sorted[j].SessionTime)
	})
	return sorted
}
