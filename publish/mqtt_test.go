package publish

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airquality-service/config"
	"airquality-service/models"
)

// fakeToken satisfies mqtt.Token for publishes that complete immediately
type fakeToken struct {
	mqtt.Token
	err error
}

func (t *fakeToken) Wait() bool { return true }

func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }

func (t *fakeToken) Error() error { return t.err }

type fakeClient struct {
	mqtt.Client
	topic    string
	retained bool
	payload  []byte
	err      error
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.topic = topic
	c.retained = retained
	c.payload = payload.([]byte)
	return &fakeToken{err: c.err}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func reading(label string, v float64) models.AirQualityReading {
	return models.AirQualityReading{LocationLabel: label, RawValue: &v, CategoryLabel: "x"}
}

func TestMQTTPublisher_PublishesSortedView(t *testing.T) {
	client := &fakeClient{}
	p := newMQTTPublisherWithClient(client, config.MQTTConfig{Topic: "airquality/ranking"}, testLogger())

	result := models.RankingResult{
		ID:      "r1",
		Entries: []models.AirQualityReading{reading("a", 42), reading("b", 187)},
		Errors:  []string{"WAQI: invalid API key"},
	}
	require.NoError(t, p.Publish(context.Background(), result))

	assert.Equal(t, "airquality/ranking", client.topic)
	assert.True(t, client.retained)

	var view models.RankingView
	require.NoError(t, json.Unmarshal(client.payload, &view))
	assert.Equal(t, "r1", view.ID)
	require.Len(t, view.Entries, 2)
	assert.Equal(t, "b", view.Entries[0].LocationLabel)
	assert.Equal(t, "WAQI: invalid API key", view.ErrorSummary)
}

func TestMQTTPublisher_PublishError(t *testing.T) {
	client := &fakeClient{err: errors.New("broker gone")}
	p := newMQTTPublisherWithClient(client, config.MQTTConfig{Topic: "t"}, testLogger())

	err := p.Publish(context.Background(), models.RankingResult{})

	assert.ErrorContains(t, err, "broker gone")
}

func TestMQTTPublisher_NotConnected(t *testing.T) {
	p := newMQTTPublisherWithClient(&fakeClient{}, config.MQTTConfig{Topic: "t"}, testLogger())
	p.setConnected(false)

	assert.Error(t, p.Publish(context.Background(), models.RankingResult{}))
}

func TestPublisherFunc(t *testing.T) {
	var got string
	var p Publisher = PublisherFunc(func(ctx context.Context, r models.RankingResult) error {
		got = r.ID
		return nil
	})

	require.NoError(t, p.Publish(context.Background(), models.RankingResult{ID: "abc"}))
	assert.Equal(t, "abc", got)
}
