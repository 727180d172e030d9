//go:build integration

package audit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"skyreg/internal/audit"
	"skyreg/pkg/testutil/containers"
)

const testTopic = "skyreg.sync.events"

type KafkaPublisherSuite struct {
	suite.Suite
	redpanda  *containers.RedpandaContainer
	publisher *audit.KafkaPublisher
}

func TestKafkaPublisherSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaPublisherSuite))
}

func (s *KafkaPublisherSuite) SetupSuite() {
	s.redpanda = containers.NewRedpandaContainer(s.T())

	publisher, err := audit.NewKafkaPublisher(context.Background(), []string{s.redpanda.Broker}, testTopic)
	s.Require().NoError(err)
	s.publisher = publisher
	s.T().Cleanup(publisher.Close)
}

func (s *KafkaPublisherSuite) TestEmitRoundTrip() {
	ctx := context.Background()

	events := []audit.Event{
		{Type: audit.TypeSyncStarted, RunID: "run-1", Details: map[string]string{"url": "http://registry.example.org/data.zip"}},
		{Type: audit.TypeSyncCompleted, RunID: "run-1", Details: map[string]string{"records": "3", "skipped": "1"}},
	}
	for _, ev := range events {
		s.Require().NoError(s.publisher.Emit(ctx, ev))
	}

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Broker),
		kgo.ConsumeTopics(testTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	var got []audit.Event
	deadline := time.Now().Add(15 * time.Second)
	for len(got) < len(events) && time.Now().Before(deadline) {
		pollCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		fetches := consumer.PollFetches(pollCtx)
		cancel()
		fetches.EachRecord(func(rec *kgo.Record) {
			var ev audit.Event
			s.Require().NoError(json.Unmarshal(rec.Value, &ev))
			s.Equal(ev.RunID, string(rec.Key))
			got = append(got, ev)
		})
	}

	s.Require().Len(got, len(events))
	s.Equal(audit.TypeSyncStarted, got[0].Type)
	s.Equal(audit.TypeSyncCompleted, got[1].Type)
	for _, ev := range got {
		s.NotEmpty(ev.ID)
		s.False(ev.Timestamp.IsZero())
		s.Equal("run-1", ev.RunID)
	}
}

func (s *KafkaPublisherSuite) TestReconnectToExistingTopic() {
	// Creating a second publisher against an already-existing topic must not
	// fail.
	publisher, err := audit.NewKafkaPublisher(context.Background(), []string{s.redpanda.Broker}, testTopic)
	s.Require().NoError(err)
	publisher.Close()
}
