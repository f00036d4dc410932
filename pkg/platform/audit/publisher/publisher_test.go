package publisher

import (
	"context"
	"testing"
	"time"

	"bastion/pkg/platform/audit"

	"github.com/stretchr/testify/suite"
)

type PublisherSuite struct {
	suite.Suite
	store *audit.InMemoryStore
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.store = audit.NewInMemoryStore(0)
}

func (s *PublisherSuite) TestSyncEmitAppendsImmediately() {
	p := New(s.store)

	e := audit.NewEvent(audit.ActionBlocked, time.Now())
	e.EndpointClass = "login"
	s.NoError(p.Emit(context.Background(), e))

	events := s.store.Events()
	s.Require().Len(events, 1)
	s.Equal(audit.ActionBlocked, events[0].Action)
	s.Equal("login", events[0].EndpointClass)
}

func (s *PublisherSuite) TestAsyncEmitDrainsOnClose() {
	p := New(s.store, WithAsyncBuffer(16))

	for i := 0; i < 5; i++ {
		s.NoError(p.Emit(context.Background(), audit.NewEvent(audit.ActionReset, time.Now())))
	}
	p.Close()

	s.Len(s.store.Events(), 5)
}

func (s *PublisherSuite) TestEmitStampsTimestamp() {
	p := New(s.store)

	s.NoError(p.Emit(context.Background(), audit.Event{Action: audit.ActionBlocked}))
	s.False(s.store.Events()[0].Timestamp.IsZero())
}
