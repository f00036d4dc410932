package janitor

import (
	"context"
	"testing"
	"time"

	"bastion/internal/admission/models"
	"bastion/internal/admission/store"

	"github.com/stretchr/testify/suite"
)

type JanitorSuite struct {
	suite.Suite
	counters *store.CounterStore
	janitor  *Janitor
	base     time.Time
}

func TestJanitorSuite(t *testing.T) {
	suite.Run(t, new(JanitorSuite))
}

func (s *JanitorSuite) SetupTest() {
	s.counters = store.New()
	s.janitor = New(s.counters, WithIdleEvictionAge(time.Hour))
	s.base = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
}

func (s *JanitorSuite) seed(identity string, mutate func(*models.CounterRecord)) {
	s.counters.Update(models.Key{Class: "login", Identity: identity}, mutate)
}

func (s *JanitorSuite) TestEvictsExpiredBlocks() {
	s.seed("expired-block", func(r *models.CounterRecord) {
		r.ResetWindow(s.base)
		r.Block(s.base, 15*time.Minute)
	})
	s.seed("active-block", func(r *models.CounterRecord) {
		r.ResetWindow(s.base)
		r.Block(s.base, 2*time.Hour)
	})

	res := s.janitor.RunOnce(s.base.Add(time.Hour))

	s.Equal(2, res.Scanned)
	s.Equal(1, res.Evicted)
	s.Equal(1, res.ActiveBlocks)
	s.Equal(1, s.counters.Len())
}

func (s *JanitorSuite) TestEvictsLongIdleUnblockedRecords() {
	s.seed("idle", func(r *models.CounterRecord) {
		r.ResetWindow(s.base)
		r.Count = 2
	})
	s.seed("recent", func(r *models.CounterRecord) {
		r.ResetWindow(s.base.Add(90 * time.Minute))
		r.Count = 2
	})

	res := s.janitor.RunOnce(s.base.Add(2 * time.Hour))

	s.Equal(1, res.Evicted)
	s.Equal(1, s.counters.Len(), "only the idle record is gone")
	found := s.counters.View(models.Key{Class: "login", Identity: "recent"}, func(*models.CounterRecord) {})
	s.True(found)
}

func (s *JanitorSuite) TestIdleThresholdIsIndependentOfPolicyWindow() {
	// A record whose own window would be long expired still stays until the
	// generous idle threshold passes.
	s.seed("short-window-key", func(r *models.CounterRecord) {
		r.ResetWindow(s.base)
	})

	res := s.janitor.RunOnce(s.base.Add(30 * time.Minute))
	s.Equal(0, res.Evicted)

	res = s.janitor.RunOnce(s.base.Add(61 * time.Minute))
	s.Equal(1, res.Evicted)
}

func (s *JanitorSuite) TestStartStopsOnContextCancel() {
	j := New(s.counters, WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := j.Start(ctx)
	s.ErrorIs(err, context.DeadlineExceeded)
}

func (s *JanitorSuite) TestEmptyStoreSweep() {
	res := s.janitor.RunOnce(s.base)
	s.Equal(0, res.Scanned)
	s.Equal(0, res.Evicted)
}
