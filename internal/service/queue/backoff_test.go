package queue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ifuryst/herald/internal/service/queue"
)

func TestBackoffDelay(t *testing.T) {
	t.Parallel()

	b := queue.Backoff{time.Minute, 10 * time.Minute}

	assert.Equal(t, time.Minute, b.Delay(0))
	assert.Equal(t, time.Minute, b.Delay(1))
	assert.Equal(t, 10*time.Minute, b.Delay(2))
	assert.Equal(t, 10*time.Minute, b.Delay(7))

	var empty queue.Backoff
	assert.Equal(t, 15*time.Minute, empty.Delay(2))
}
