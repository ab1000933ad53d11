package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ontology/internal/pipeline"
)

type recorder struct {
	sent map[string]int
}

func (r *recorder) RecordMessageSent(topic, status string) {
	r.sent[topic+":"+status]++
}

func testConfig() *sarama.Config {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	return cfg
}

func TestPublishRunEvent(t *testing.T) {
	mock := mocks.NewSyncProducer(t, testConfig())
	rec := &recorder{sent: map[string]int{}}
	producer := NewRunEventProducer(mock, "analytics-runs", rec, nil)

	summary := &pipeline.OntologySummary{CustomerCount: 12, KeyInsights: []string{"x"}}
	event := pipeline.RunEvent{
		RunID:          uuid.New(),
		OrganizationID: uuid.New(),
		Status:         pipeline.RunStatusCompleted,
		CompletedSteps: 8,
		TotalSteps:     8,
		Summary:        summary,
		OccurredAt:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}

	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != event.OrganizationID.String() {
			return errors.New("message not keyed by organization")
		}
		if msg.Topic != "analytics-runs" {
			return errors.New("wrong topic")
		}
		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var decoded pipeline.RunEvent
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return err
		}
		if decoded.RunID != event.RunID || decoded.Summary == nil || decoded.Summary.CustomerCount != 12 {
			return errors.New("payload does not round-trip")
		}
		return nil
	})

	require.NoError(t, producer.PublishRunEvent(context.Background(), event))
	assert.Equal(t, 1, rec.sent["analytics-runs:sent"])
	require.NoError(t, producer.Close())
}

func TestPublishRunEventFailure(t *testing.T) {
	mock := mocks.NewSyncProducer(t, testConfig())
	rec := &recorder{sent: map[string]int{}}
	producer := NewRunEventProducer(mock, "analytics-runs", rec, nil)

	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	msg := "analytics step ltv failed: boom"
	err := producer.PublishRunEvent(context.Background(), pipeline.RunEvent{
		RunID:          uuid.New(),
		OrganizationID: uuid.New(),
		Status:         pipeline.RunStatusFailed,
		Error:          &msg,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	assert.Equal(t, 1, rec.sent["analytics-runs:failed"])
	require.NoError(t, producer.Close())
}

func TestRunEventHeaders(t *testing.T) {
	event := pipeline.RunEvent{RunID: uuid.New(), OrganizationID: uuid.New(), Status: pipeline.RunStatusRunning, CompletedSteps: 0}
	headers := map[string]string{}
	for _, h := range runEventHeaders(event) {
		headers[string(h.Key)] = string(h.Value)
	}
	assert.Equal(t, "analytics_run.running", headers["event_type"])
	assert.Equal(t, event.RunID.String(), headers["run_id"])
	assert.Equal(t, "0", headers["completed_steps"])
}

func TestSaramaConfig(t *testing.T) {
	cfg := DefaultKafkaProducerConfig().SaramaConfig()
	assert.True(t, cfg.Producer.Return.Successes)
	assert.True(t, cfg.Producer.Idempotent)
	assert.Equal(t, 1, cfg.Net.MaxOpenRequests)
	assert.Equal(t, sarama.WaitForAll, cfg.Producer.RequiredAcks)
	assert.NoError(t, cfg.Validate())
}
