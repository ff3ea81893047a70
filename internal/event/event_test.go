package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuanvumaihuynh/versioned-catalog/internal/log"
	"github.com/tuanvumaihuynh/versioned-catalog/internal/storage/mq"
	"github.com/tuanvumaihuynh/versioned-catalog/pkg/correlationid"
	"github.com/tuanvumaihuynh/versioned-catalog/pkg/ptr"
)

type recordingInvalidator struct {
	ids []string
	err error
}

func (r *recordingInvalidator) InvalidateProduct(_ context.Context, id string) error {
	r.ids = append(r.ids, id)
	return r.err
}

type recordingProducer struct {
	msgs []mq.ProduceMsg
}

func (r *recordingProducer) Produce(_ context.Context, msg mq.ProduceMsg) error {
	r.msgs = append(r.msgs, msg)
	return nil
}

type fakeConsumer struct {
	handlers map[string]mq.HandlerFunc
}

func (f *fakeConsumer) RegisterHandler(topic string, handler mq.HandlerFunc) error {
	if f.handlers == nil {
		f.handlers = map[string]mq.HandlerFunc{}
	}
	f.handlers[topic] = handler
	return nil
}

func (f *fakeConsumer) Run(context.Context) (mq.CleanupFunc, error) {
	return func() {}, nil
}

func TestLocalNotifier(t *testing.T) {
	inv := &recordingInvalidator{}
	n := NewLocalNotifier(inv)

	require.NoError(t, n.NotifyProductChanged(context.Background(), ProductChanged{ProductID: "p1", Operation: OperationUpdated}))
	assert.Equal(t, []string{"p1"}, inv.ids)

	inv.err = errors.New("redis down")
	assert.ErrorIs(t, n.NotifyProductChanged(context.Background(), ProductChanged{ProductID: "p2"}), inv.err)
}

func TestKafkaNotifier(t *testing.T) {
	producer := &recordingProducer{}
	n := NewKafkaNotifier(producer, "product.changed")
	ctx := correlationid.NewContext(context.Background(), "corr-1")

	err := n.NotifyProductChanged(ctx, ProductChanged{ProductID: "p1", Version: ptr.New(int64(5)), Operation: OperationCreated})
	require.NoError(t, err)

	require.Len(t, producer.msgs, 1)
	msg := producer.msgs[0]
	assert.Equal(t, "product.changed", msg.Topic)
	assert.Equal(t, "p1", *msg.PartitionKey)
	assert.Equal(t, "corr-1", msg.Headers[correlationid.Header])
	assert.JSONEq(t, `{"product_id":"p1","version":5,"operation":"created"}`, string(msg.Payload))
}

func TestServiceInvalidatesOnMessage(t *testing.T) {
	inv := &recordingInvalidator{}
	consumer := &fakeConsumer{}
	svc := New(log.NewDiscardLogger(), consumer, "product.changed", inv)

	cleanup, err := svc.Run(context.Background())
	require.NoError(t, err)
	defer cleanup()

	handler, ok := consumer.handlers["product.changed"]
	require.True(t, ok)

	payload, err := json.Marshal(ProductChanged{ProductID: "p9", Operation: OperationDeleted})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), "product.changed", payload))
	assert.Equal(t, []string{"p9"}, inv.ids)

	assert.Error(t, handler(context.Background(), "product.changed", []byte("not json")))
	assert.Error(t, handler(context.Background(), "product.changed", []byte(`{"operation":"deleted"}`)))
}
