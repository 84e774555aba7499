package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsHTTPMethod(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		expected bool
	}{
		{"upper get", "GET", true},
		{"lower post", "post", true},
		{"mixed case", "Delete", true},
		{"padded", " put ", true},
		{"options", "options", true},
		{"trace unsupported", "trace", false},
		{"path item field", "parameters", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsHTTPMethod(tt.method))
		})
	}
}

func TestParseEndpointID(t *testing.T) {
	tests := []struct {
		name    string
		input   interface{}
		want    EndpointID
		wantErr bool
	}{
		{"json number", float64(7), NumericEndpointID(7), false},
		{"int", 3, NumericEndpointID(3), false},
		{"numeric string", "42", NumericEndpointID(42), false},
		{"padded numeric string", " 42 ", NumericEndpointID(42), false},
		{"path string", "/api/client/campaign", PathEndpointID("/api/client/campaign"), false},
		{"json.Number", json.Number("11"), NumericEndpointID(11), false},
		{"nil", nil, EndpointID{}, true},
		{"empty string", "", EndpointID{}, true},
		{"fractional", float64(1.5), EndpointID{}, true},
		{"bool", true, EndpointID{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEndpointID(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEndpointID_JSONRoundTrip(t *testing.T) {
	t.Run("numeric form", func(t *testing.T) {
		var id EndpointID
		require.NoError(t, json.Unmarshal([]byte(`17`), &id))
		assert.True(t, id.Numeric)
		assert.Equal(t, int64(17), id.Num)

		out, err := json.Marshal(id)
		require.NoError(t, err)
		assert.JSONEq(t, `17`, string(out))
	})

	t.Run("digit string normalizes to numeric", func(t *testing.T) {
		var id EndpointID
		require.NoError(t, json.Unmarshal([]byte(`"17"`), &id))
		assert.True(t, id.Numeric)
		assert.Equal(t, int64(17), id.Num)
	})

	t.Run("path form", func(t *testing.T) {
		var id EndpointID
		require.NoError(t, json.Unmarshal([]byte(`"/api/v2/campaigns"`), &id))
		assert.False(t, id.Numeric)
		assert.Equal(t, "/api/v2/campaigns", id.Path)

		out, err := json.Marshal(id)
		require.NoError(t, err)
		assert.JSONEq(t, `"/api/v2/campaigns"`, string(out))
	})

	t.Run("object rejected", func(t *testing.T) {
		var id EndpointID
		assert.Error(t, json.Unmarshal([]byte(`{"id":1}`), &id))
	})
}

func TestAPI_BaseURL(t *testing.T) {
	tests := []struct {
		name     string
		servers  []string
		expected string
	}{
		{"first server wins", []string{"https://api.shop.example/v2/", "https://backup.example"}, "https://api.shop.example/v2"},
		{"no servers", nil, DefaultBaseURL},
		{"blank server", []string{"   "}, DefaultBaseURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &API{Servers: tt.servers}
			assert.Equal(t, tt.expected, api.BaseURL())
		})
	}
}
