package fallback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deal_aggregator/internal/domain"
	"deal_aggregator/internal/normalize"
	"deal_aggregator/internal/validate"
)

var fixedNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func TestLoad_BundledDatasetIsValid(t *testing.T) {
	deals, err := NewLoader(normalize.DefaultExpiryTable()).Load(fixedNow)
	require.NoError(t, err)
	require.NotEmpty(t, deals)

	for _, d := range deals {
		assert.NoError(t, validate.Check(d), d.Title)
		assert.Equal(t, domain.SourceFallback, d.Source)
		assert.True(t, d.ExpiryEstimated)
		require.NotNil(t, d.Expiry)
		assert.Greater(t, *d.Expiry, fixedNow.Unix())
		assert.NotEmpty(t, d.URL)
	}
}

func TestLoad_EstimatesFromDiscount(t *testing.T) {
	data := []byte(`[{"title":"Portal 2","steamAppID":620,"salePrice":1.99,"normalPrice":9.99,"discount":85}]`)

	deals, err := NewLoaderFromBytes(data, normalize.DefaultExpiryTable()).Load(fixedNow)
	require.NoError(t, err)
	require.Len(t, deals, 1)

	assert.Equal(t, fixedNow.Unix()+5*86400, *deals[0].Expiry)
	assert.Equal(t, "https://store.steampowered.com/app/620", deals[0].URL)
}

func TestLoad_Malformed(t *testing.T) {
	_, err := NewLoaderFromBytes([]byte(`{`), normalize.DefaultExpiryTable()).Load(fixedNow)
	assert.Error(t, err)
}
