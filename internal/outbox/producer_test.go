package outbox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterForTopicIsCached(t *testing.T) {
	producer := NewKafkaProducer([]string{"localhost:9092"})
	defer producer.Close()

	first := producer.writerForTopic("workout_events")
	second := producer.writerForTopic("workout_events")
	require.Same(t, first, second)

	other := producer.writerForTopic("audit_events")
	require.NotSame(t, first, other)
}

func TestCloseReleasesWriters(t *testing.T) {
	producer := NewKafkaProducer([]string{"localhost:9092"})
	producer.writerForTopic("workout_events")

	require.NoError(t, producer.Close())
	require.Empty(t, producer.writers)
}
