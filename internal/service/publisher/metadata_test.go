package publisher_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/ifuryst/herald/internal/service/publisher"
)

func TestResolveMetadata(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		platform string
		raw      map[string]any
		want     publisher.Metadata
	}{
		{
			name:     "facebook camel case",
			platform: publisher.PlatformFacebook,
			raw:      map[string]any{"pageId": "123", "pageName": "Cafe"},
			want:     publisher.Metadata{PageID: "123"},
		},
		{
			name:     "facebook numeric id",
			platform: publisher.PlatformFacebook,
			raw:      map[string]any{"page_id": float64(104857600)},
			want:     publisher.Metadata{PageID: "104857600"},
		},
		{
			name:     "instagram business id",
			platform: publisher.PlatformInstagram,
			raw:      map[string]any{"instagramBusinessId": "1784"},
			want:     publisher.Metadata{BusinessID: "1784"},
		},
		{
			name:     "google business location with account",
			platform: publisher.PlatformGoogleBusiness,
			raw:      map[string]any{"location_id": " locations/42 ", "accountId": "accounts/7"},
			want:     publisher.Metadata{LocationID: "accounts/7/locations/42"},
		},
		{
			name:     "google business bare ids",
			platform: publisher.PlatformGoogleBusiness,
			raw:      map[string]any{"locationId": "42", "account_id": "7"},
			want:     publisher.Metadata{LocationID: "accounts/7/locations/42"},
		},
		{
			name:     "google business full resource name",
			platform: publisher.PlatformGoogleBusiness,
			raw:      map[string]any{"locationId": "accounts/7/locations/42"},
			want:     publisher.Metadata{LocationID: "accounts/7/locations/42"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := publisher.ResolveMetadata(tt.platform, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveMetadata_NumericIDsFromDatabase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		platform string
		column   string
		want     publisher.Metadata
	}{
		{
			name:     "facebook page id",
			platform: publisher.PlatformFacebook,
			column:   `{"pageId": 104235678901234}`,
			want:     publisher.Metadata{PageID: "104235678901234"},
		},
		{
			name:     "instagram business id keeps all digits",
			platform: publisher.PlatformInstagram,
			column:   `{"business_id": 17841400000000001}`,
			want:     publisher.Metadata{BusinessID: "17841400000000001"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var raw datatypes.JSONMap
			require.NoError(t, raw.Scan([]byte(tt.column)))

			got, err := publisher.ResolveMetadata(tt.platform, raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveMetadata_Missing(t *testing.T) {
	t.Parallel()

	_, err := publisher.ResolveMetadata(publisher.PlatformGoogleBusiness, map[string]any{})
	require.Error(t, err)
	assert.Equal(t, "Google Business connection missing locationId metadata", err.Error())

	var metaErr *publisher.MetadataError
	require.True(t, errors.As(err, &metaErr))
	assert.Equal(t, "locationId", metaErr.Field)

	_, err = publisher.ResolveMetadata(publisher.PlatformGoogleBusiness, map[string]any{"locationId": "42"})
	assert.EqualError(t, err, "Google Business connection missing accountId metadata")

	_, err = publisher.ResolveMetadata(publisher.PlatformFacebook, map[string]any{"pageId": "  "})
	assert.EqualError(t, err, "Facebook connection missing pageId metadata")

	_, err = publisher.ResolveMetadata(publisher.PlatformInstagram, nil)
	assert.EqualError(t, err, "Instagram connection missing businessId metadata")
}

func TestResolveMetadata_UnsupportedPlatform(t *testing.T) {
	t.Parallel()

	_, err := publisher.ResolveMetadata("myspace", map[string]any{"pageId": "1"})
	require.Error(t, err)

	var metaErr *publisher.MetadataError
	assert.False(t, errors.As(err, &metaErr))
}
