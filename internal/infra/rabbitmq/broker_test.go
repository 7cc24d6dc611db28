package rabbitmq

import (
	"context"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"go.uber.org/zap"
)

const (
	testExchange = "actionframes"
	testQueue    = "frames.extraction"
	testStatus   = "frames.status"
	testDLQ      = "frames.extraction.dlq"
)

func TestRequestStatusAndDLQRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := tcrabbitmq.Run(ctx, "rabbitmq:3.12-management-alpine")
	require.NoError(t, err)
	defer container.Terminate(context.Background())

	url, err := container.AmqpURL(ctx)
	require.NoError(t, err)

	conn, err := amqp.Dial(url)
	require.NoError(t, err)
	defer conn.Close()

	received := make(chan string, 1)
	consumer, err := NewConsumer(ConsumerConfig{
		URL:         url,
		Queue:       testQueue,
		Exchange:    testExchange,
		DLQ:         testDLQ,
		StatusQueue: testStatus,
		Prefetch:    1,
		WorkerCount: 1,
		BaseDelayMs: 10,
	}, func(_ context.Context, body []byte) error {
		received <- string(body)
		return nil
	}, zap.NewNop())
	require.NoError(t, err)
	defer consumer.Close()

	consumerCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		consumer.Start(consumerCtx)
	}()

	pub, err := NewPublisher(conn, testExchange)
	require.NoError(t, err)
	defer pub.Close()

	require.NoError(t, NewRequestPublisher(pub).PublishRequest(ctx, []byte(`{"video_key":"a.mp4"}`)))

	select {
	case body := <-received:
		assert.JSONEq(t, `{"video_key":"a.mp4"}`, body)
	case <-ctx.Done():
		t.Fatal("request was not consumed")
	}
	stop()
	<-done

	require.NoError(t, NewStatusPublisher(pub).PublishStatus(ctx, []byte(`{"status":"COMPLETED"}`)))
	require.NoError(t, NewDLQPublisher(pub, testDLQ).PublishToDLQ(ctx, []byte(`garbage`), "unmarshal_error"))

	status := getOne(t, pub.Channel(), testStatus)
	assert.JSONEq(t, `{"status":"COMPLETED"}`, string(status.Body))

	parked := getOne(t, pub.Channel(), testDLQ)
	assert.Equal(t, "garbage", string(parked.Body))
	assert.Equal(t, "unmarshal_error", parked.Headers["x-dlq-reason"])
}

func getOne(t *testing.T, ch *amqp.Channel, queue string) amqp.Delivery {
	t.Helper()
	var d amqp.Delivery
	require.Eventually(t, func() bool {
		msg, ok, err := ch.Get(queue, true)
		if err != nil || !ok {
			return false
		}
		d = msg
		return true
	}, 10*time.Second, 100*time.Millisecond)
	return d
}
