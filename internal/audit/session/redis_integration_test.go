//go:build integration

package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"helpdesk/pkg/testutil/containers"
)

type RedisTrackerSuite struct {
	suite.Suite
	redis   *containers.RedisContainer
	tracker *RedisTracker
}

func TestRedisTrackerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisTrackerSuite))
}

func (s *RedisTrackerSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
}

func (s *RedisTrackerSuite) TearDownSuite() {
	_ = s.redis.Client.Close()
	_ = s.redis.Container.Terminate(context.Background())
}

func (s *RedisTrackerSuite) SetupTest() {
	s.tracker = NewRedisTracker(s.redis.Client, 5, time.Hour)
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisTrackerSuite) TestRecordAndRecentNewestFirst() {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 3; i++ {
		s.Require().NoError(s.tracker.Record(ctx, "u-1", "sess-1", Activity{
			Action:     fmt.Sprintf("ticket.update.%d", i),
			Timestamp:  base.Add(time.Duration(i) * time.Second),
			Endpoint:   "/api/tickets/t-1",
			StatusCode: 200,
		}))
	}

	activities, err := s.tracker.Recent(ctx, "u-1", "sess-1", 10)
	s.Require().NoError(err)
	s.Require().Len(activities, 3)
	s.Equal("ticket.update.2", activities[0].Action)
	s.Equal("ticket.update.0", activities[2].Action)
}

func (s *RedisTrackerSuite) TestBoundEvictsOldest() {
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		s.Require().NoError(s.tracker.Record(ctx, "u-1", "sess-1", Activity{
			Action:    fmt.Sprintf("action.%d", i),
			Timestamp: time.Now().UTC(),
		}))
	}

	activities, err := s.tracker.Recent(ctx, "u-1", "sess-1", 0)
	s.Require().NoError(err)
	s.Require().Len(activities, 5)
	s.Equal("action.7", activities[0].Action)
	s.Equal("action.3", activities[4].Action)
}

func (s *RedisTrackerSuite) TestSessionsAreIsolated() {
	ctx := context.Background()

	s.Require().NoError(s.tracker.Record(ctx, "u-1", "sess-1", Activity{Action: "a"}))
	s.Require().NoError(s.tracker.Record(ctx, "u-1", "sess-2", Activity{Action: "b"}))
	s.Require().NoError(s.tracker.Record(ctx, "u-2", "sess-1", Activity{Action: "c"}))

	activities, err := s.tracker.Recent(ctx, "u-1", "sess-1", 10)
	s.Require().NoError(err)
	s.Require().Len(activities, 1)
	s.Equal("a", activities[0].Action)
}

func (s *RedisTrackerSuite) TestKeyCarriesTTL() {
	ctx := context.Background()

	s.Require().NoError(s.tracker.Record(ctx, "u-1", "sess-1", Activity{Action: "a"}))

	ttl, err := s.redis.Client.TTL(ctx, "audit:session:u-1:sess-1").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, time.Hour)
}
