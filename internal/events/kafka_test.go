package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/ArenaGo/consts"
	"github.com/dyike/ArenaGo/internal/models"
)

func TestKafkaPublisherSendsKeyedJSON(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)

	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev TickEvent
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.Type != TickCompleted || ev.Day != 3 || len(ev.Decisions) != 1 {
			return errors.New("unexpected payload")
		}
		return nil
	})

	pub := NewKafkaPublisherWithProducer(producer, "")
	err := pub.Publish(context.Background(), TickEvent{
		SimulationID: "sim-1",
		Day:          3,
		Status:       consts.StatusRunning,
		Decisions:    []models.DecisionView{{BotType: consts.BotAlgo, Action: consts.ActionHold}},
	})
	require.NoError(t, err)
	require.NoError(t, pub.Close())
}

func TestKafkaPublisherSurfacesErrors(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub := NewKafkaPublisherWithProducer(producer, "custom")
	err := pub.Publish(context.Background(), TickEvent{SimulationID: "sim-1"})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, pub.Close())
}

func TestKafkaPublisherHonoursCancelledContext(t *testing.T) {
	cfg := mocks.NewTestConfig()
	producer := mocks.NewSyncProducer(t, cfg)
	pub := NewKafkaPublisherWithProducer(producer, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, pub.Publish(ctx, TickEvent{}), context.Canceled)
	require.NoError(t, pub.Close())
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), TickEvent{}))
	assert.NoError(t, p.Close())
}
