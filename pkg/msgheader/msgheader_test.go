package msgheader_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/tuanvumaihuynh/versioned-catalog/pkg/correlationid"
	"github.com/tuanvumaihuynh/versioned-catalog/pkg/msgheader"
)

func TestCorrelationIDRoundTrip(t *testing.T) {
	ctx := correlationid.NewContext(context.Background(), "req-42")

	headers := msgheader.BuildHeaders(ctx)
	assert.Equal(t, "req-42", headers[correlationid.Header])

	rec := &kgo.Record{}
	for k, v := range headers {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}

	got := msgheader.ExtractContextFromHeaders(context.Background(), msgheader.FromRecord(rec))
	id, ok := correlationid.FromContext(got)
	require.True(t, ok)
	assert.Equal(t, "req-42", id)
}

func TestExtractWithoutCorrelationID(t *testing.T) {
	ctx := msgheader.ExtractContextFromHeaders(context.Background(), map[string]string{})

	_, ok := correlationid.FromContext(ctx)
	assert.False(t, ok)
}
