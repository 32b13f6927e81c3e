package ipapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocate_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/json/", r.URL.Path)
		assert.Contains(t, r.URL.Query().Get("fields"), "regionName")
		_, _ = w.Write([]byte(`{"status":"success","city":"Amherst","regionName":"Massachusetts","country":"United States","lat":42.3732,"lon":-72.5199}`))
	}))
	defer ts.Close()

	info, err := NewClient(ts.URL, ts.Client()).Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Amherst, Massachusetts, United States", info.Hint())
	require.NotNil(t, info.Coords)
	assert.InDelta(t, 42.3732, info.Coords.Lat, 1e-9)
}

func TestLocate_FailStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"fail","message":"reserved range"}`))
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL, ts.Client()).Locate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved range")
}

func TestLocate_PartialFields(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","country":"Canada"}`))
	}))
	defer ts.Close()

	info, err := NewClient(ts.URL, ts.Client()).Locate(context.Background())
	require.NoError(t, err)
	assert.Nil(t, info.Coords)
	assert.Equal(t, "N/A, N/A, Canada", info.Hint())
}
