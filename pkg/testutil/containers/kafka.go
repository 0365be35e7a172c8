//go:build integration

package containers

import (
	"context"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaContainer is a single-node Redpanda broker speaking the Kafka protocol.
type KafkaContainer struct {
	Container testcontainers.Container
	Brokers   string
}

func startKafka(ctx context.Context) (*KafkaContainer, error) {
	c, err := kafka.Run(ctx, "redpandadata/redpanda:latest", kafka.WithClusterID("rekamed-test"))
	if err != nil {
		return nil, err
	}
	brokers, err := c.Brokers(ctx)
	if err != nil {
		return nil, abandon(ctx, c, err)
	}
	return &KafkaContainer{Container: c, Brokers: brokers[0]}, nil
}

// Consume reads topic from the beginning until n records arrive or wait
// elapses, returning whatever it got.
func (k *KafkaContainer) Consume(ctx context.Context, topic string, n int, wait time.Duration) ([]*kgo.Record, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(k.Brokers),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	var got []*kgo.Record
	for len(got) < n && ctx.Err() == nil {
		fetches := client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			break
		}
		got = append(got, fetches.Records()...)
	}
	return got, nil
}
