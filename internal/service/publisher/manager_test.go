package publisher_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ifuryst/herald/internal/service/publisher"
)

type stubPublisher struct {
	platform string
}

func (s stubPublisher) Platform() string { return s.platform }

func (s stubPublisher) Publish(context.Context, publisher.Request) (*publisher.Result, error) {
	return &publisher.Result{Platform: s.platform}, nil
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := publisher.NewRegistry(zap.NewNop())
	require.NoError(t, reg.Register(stubPublisher{platform: publisher.PlatformInstagram}))
	require.NoError(t, reg.Register(stubPublisher{platform: publisher.PlatformFacebook}))

	err := reg.Register(stubPublisher{platform: publisher.PlatformFacebook})
	assert.Error(t, err)

	p, err := reg.Get(publisher.PlatformFacebook)
	require.NoError(t, err)
	assert.Equal(t, publisher.PlatformFacebook, p.Platform())

	_, err = reg.Get(publisher.PlatformGoogleBusiness)
	assert.Error(t, err)

	assert.Equal(t, []string{"facebook", "instagram"}, reg.Platforms())
}
