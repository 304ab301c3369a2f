package publisher_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ifuryst/herald/internal/service/publisher"
)

func TestAPIClient_DoFormSendsBody(t *testing.T) {
	t.Parallel()

	var contentType, message, rawQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		rawQuery = r.URL.RawQuery
		message = r.PostFormValue("message")
		_, _ = w.Write([]byte(`{"id":"1"}`))
	}))
	t.Cleanup(srv.Close)

	client := publisher.NewAPIClient("facebook", 0, zap.NewNop())

	params := url.Values{}
	params.Set("message", "hello & welcome")

	resp, err := client.DoForm(context.Background(), http.MethodPost, srv.URL+"/feed", nil, params)
	require.NoError(t, err)

	assert.True(t, resp.OK())
	assert.Equal(t, "application/x-www-form-urlencoded", contentType)
	assert.Equal(t, "hello & welcome", message)
	assert.Empty(t, rawQuery)
}

func TestAPIClient_TransportErrorOmitsQuery(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL + "/container"
	srv.Close()

	client := publisher.NewAPIClient("instagram", 0, zap.NewNop())

	params := url.Values{}
	params.Set("fields", "status_code")
	params.Set("access_token", "leaky-token")

	_, err := client.DoForm(context.Background(), http.MethodGet, endpoint, nil, params)
	require.Error(t, err)

	assert.Equal(t, publisher.KindTransient, publisher.KindOf(err))
	assert.NotContains(t, err.Error(), "leaky-token")
	assert.NotContains(t, err.Error(), "status_code")
	assert.Contains(t, err.Error(), "/container")
}
