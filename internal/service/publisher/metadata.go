package publisher

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Metadata holds the single provider identifier a publisher needs.
type Metadata struct {
	PageID     string `json:"page_id,omitempty"`
	BusinessID string `json:"business_id,omitempty"`
	// LocationID is the full accounts/{a}/locations/{l} resource name.
	LocationID string `json:"location_id,omitempty"`
}

// MetadataError names the identifier missing from a connection.
type MetadataError struct {
	Platform string
	Field    string
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("%s connection missing %s metadata", DisplayName(e.Platform), e.Field)
}

var metadataFields = map[string][]string{
	PlatformFacebook:       {"pageId", "page_id"},
	PlatformInstagram:      {"businessId", "business_id", "instagramBusinessId", "instagram_business_id"},
	PlatformGoogleBusiness: {"locationId", "location_id"},
}

func DisplayName(platform string) string {
	switch platform {
	case PlatformFacebook:
		return "Facebook"
	case PlatformInstagram:
		return "Instagram"
	case PlatformGoogleBusiness:
		return "Google Business"
	default:
		return platform
	}
}

// ResolveMetadata extracts the identifier platform needs from a connection's
// raw metadata. It performs no I/O.
func ResolveMetadata(platform string, raw map[string]any) (Metadata, error) {
	keys, ok := metadataFields[platform]
	if !ok {
		return Metadata{}, fmt.Errorf("unsupported platform %q", platform)
	}

	value := lookup(raw, keys)
	if value == "" {
		return Metadata{}, &MetadataError{Platform: platform, Field: keys[0]}
	}

	switch platform {
	case PlatformFacebook:
		return Metadata{PageID: value}, nil
	case PlatformInstagram:
		return Metadata{BusinessID: value}, nil
	default:
		name, ok := locationResourceName(value, lookup(raw, accountFields))
		if !ok {
			return Metadata{}, &MetadataError{Platform: platform, Field: accountFields[0]}
		}
		return Metadata{LocationID: name}, nil
	}
}

var accountFields = []string{"accountId", "account_id"}

// locationResourceName builds the accounts/{a}/locations/{l} name the v4
// localPosts API addresses. A bare location id needs the account id.
func locationResourceName(location, account string) (string, bool) {
	if strings.HasPrefix(location, "accounts/") {
		return location, true
	}
	if account == "" {
		return "", false
	}

	location = strings.TrimPrefix(location, "locations/")
	account = strings.TrimPrefix(account, "accounts/")
	return fmt.Sprintf("accounts/%s/locations/%s", account, location), true
}

func lookup(raw map[string]any, keys []string) string {
	for _, key := range keys {
		switch v := raw[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			// jsonb columns decode with UseNumber; ids are sometimes stored unquoted
			return v.String()
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int64:
			return strconv.FormatInt(v, 10)
		case int:
			return strconv.Itoa(v)
		}
	}
	return ""
}
