package notify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ifuryst/herald/internal/models"
	"github.com/ifuryst/herald/internal/service/notify"
)

type recordingWriter struct {
	rows []*models.Notification
	err  error
}

func (w *recordingWriter) CreateNotification(_ context.Context, n *models.Notification) error {
	if w.err != nil {
		return w.err
	}
	w.rows = append(w.rows, n)
	return nil
}

func TestNotify(t *testing.T) {
	t.Parallel()

	writer := &recordingWriter{}
	n := notify.NewNotifier(writer, zap.NewNop())

	n.Notify(context.Background(), "acct-1", models.CategoryPublishSuccess, "Published to Facebook",
		notify.WithJob("job-1"),
		notify.WithContentItem("item-1"),
		notify.WithPlatform("facebook"),
		notify.WithMetadata(map[string]any{"external_id": "123_456"}),
	)

	require.Len(t, writer.rows, 1)
	row := writer.rows[0]
	assert.NotEmpty(t, row.ID)
	assert.Equal(t, "acct-1", row.AccountID)
	assert.Equal(t, models.CategoryPublishSuccess, row.Category)
	assert.Equal(t, "Published to Facebook", row.Message)
	assert.Equal(t, "job-1", row.Metadata["job_id"])
	assert.Equal(t, "item-1", row.Metadata["content_item_id"])
	assert.Equal(t, "facebook", row.Metadata["platform"])
	assert.Equal(t, "123_456", row.Metadata["external_id"])
}

func TestNotify_WriteFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	writer := &recordingWriter{err: errors.New("db down")}
	n := notify.NewNotifier(writer, zap.NewNop())

	assert.NotPanics(t, func() {
		n.Notify(context.Background(), "acct-1", models.CategoryPublishFailed, "boom")
	})
	assert.Empty(t, writer.rows)
}
