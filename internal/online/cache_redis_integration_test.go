//go:build integration

package online_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"skyreg/internal/online"
	"skyreg/internal/registry"
	"skyreg/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *online.RedisCache
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.cache = online.NewRedisCache(s.redis.Client, time.Minute)
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisCacheSuite) TestPositiveRoundTrip() {
	ctx := context.Background()
	summary := &registry.Summary{
		Registration: "N123AB",
		ModeSHex:     "A1B2C3",
		Owner:        "SKY HOLDINGS",
		Source:       "online",
	}
	s.Require().NoError(s.cache.Put(ctx, "N123AB", summary))

	entry, err := s.cache.Get(ctx, "N123AB")
	s.Require().NoError(err)
	s.Require().NotNil(entry)
	s.False(entry.NotFound)
	s.Equal(summary, entry.Summary)
}

func (s *RedisCacheSuite) TestNegativeRoundTrip() {
	ctx := context.Background()
	s.Require().NoError(s.cache.Put(ctx, "N999ZZ", nil))

	entry, err := s.cache.Get(ctx, "N999ZZ")
	s.Require().NoError(err)
	s.Require().NotNil(entry)
	s.True(entry.NotFound)
	s.Nil(entry.Summary)
}

func (s *RedisCacheSuite) TestMissingKey() {
	entry, err := s.cache.Get(context.Background(), "absent")
	s.Require().NoError(err)
	s.Nil(entry)
}

func (s *RedisCacheSuite) TestExpiry() {
	ctx := context.Background()
	short := online.NewRedisCache(s.redis.Client, 50*time.Millisecond)
	s.Require().NoError(short.Put(ctx, "N123AB", nil))

	time.Sleep(100 * time.Millisecond)
	entry, err := short.Get(ctx, "N123AB")
	s.Require().NoError(err)
	s.Nil(entry)
}

func (s *RedisCacheSuite) TestLen() {
	ctx := context.Background()
	s.Require().NoError(s.cache.Put(ctx, "a", nil))
	s.Require().NoError(s.cache.Put(ctx, "b", nil))

	n, err := s.cache.Len(ctx)
	s.Require().NoError(err)
	s.Equal(2, n)
}
