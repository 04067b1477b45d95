package memory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsMessages(t *testing.T) {
	t.Parallel()

	p := New()
	id, err := p.Publish(context.Background(), map[string]string{"status": "completed"})
	require.NoError(t, err)
	assert.Equal(t, "1", id)

	msgs := p.Messages()
	require.Len(t, msgs, 1)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(msgs[0], &decoded))
	assert.Equal(t, "completed", decoded["status"])
}

func TestPublisherRejectsUnmarshalablePayload(t *testing.T) {
	t.Parallel()

	p := New()
	_, err := p.Publish(context.Background(), make(chan int))
	require.Error(t, err)
	assert.Empty(t, p.Messages())
}
