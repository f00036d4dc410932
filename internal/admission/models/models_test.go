package models

import (
	"testing"
	"time"

	dErrors "bastion/pkg/domain-errors"

	"github.com/stretchr/testify/suite"
)

type ModelsSuite struct {
	suite.Suite
}

func TestModelsSuite(t *testing.T) {
	suite.Run(t, new(ModelsSuite))
}

func (s *ModelsSuite) TestNewKeyValidation() {
	s.Run("rejects empty class", func() {
		_, err := NewKey("", "1.2.3.4")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("rejects empty identity", func() {
		_, err := NewKey(ClassLogin, "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("unknown is an ordinary identity", func() {
		key, err := NewKey(ClassLogin, "unknown")
		s.NoError(err)
		s.Equal("login:unknown", key.String())
	})
}

func (s *ModelsSuite) TestParseConsumptionMode() {
	mode, err := ParseConsumptionMode("explicit")
	s.NoError(err)
	s.Equal(ModeExplicit, mode)

	_, err = ParseConsumptionMode("eager")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ModelsSuite) TestPolicyValid() {
	s.True(DefaultPolicy().Valid())

	invalid := []Policy{
		{MaxAttempts: 0, Window: time.Minute, BlockDuration: time.Minute, Mode: ModeOptimistic},
		{MaxAttempts: 5, Window: 0, BlockDuration: time.Minute, Mode: ModeOptimistic},
		{MaxAttempts: 5, Window: time.Minute, BlockDuration: 0, Mode: ModeOptimistic},
		{MaxAttempts: 5, Window: time.Minute, BlockDuration: time.Minute, Mode: "eager"},
	}
	for _, p := range invalid {
		s.False(p.Valid())
	}
}

func (s *ModelsSuite) TestCounterRecordTransitions() {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	r := &CounterRecord{}
	s.True(r.WindowExpired(now, time.Hour), "zero window start counts as expired")

	r.ResetWindow(now)
	s.Equal(0, r.Count)
	s.Equal(now, r.WindowStartedAt)
	s.False(r.WindowExpired(now.Add(time.Hour), time.Hour), "boundary is exclusive")
	s.True(r.WindowExpired(now.Add(time.Hour+time.Second), time.Hour))

	r.Block(now, 15*time.Minute)
	s.True(r.BlockActive(now.Add(14*time.Minute)))
	s.False(r.BlockActive(now.Add(15*time.Minute)), "block ends exactly at blockedUntil")

	r.ResetWindow(now.Add(16 * time.Minute))
	s.False(r.Blocked)
	s.True(r.BlockedUntil.IsZero())
}
