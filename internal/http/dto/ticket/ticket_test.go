package ticket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dropDatabas3/wsaa/internal/wsaa"
	"github.com/stretchr/testify/require"
)

func TestFromTicket_GenerationTime(t *testing.T) {
	exp := time.Date(2024, 6, 10, 18, 33, 20, 0, time.UTC)

	t.Run("omitted when zero", func(t *testing.T) {
		resp := FromTicket("wsfe", &wsaa.AccessTicket{Token: "T", Sign: "S", ExpiresAt: exp})
		require.Nil(t, resp.GenerationTime)

		raw, err := json.Marshal(resp)
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal(raw, &m))
		require.NotContains(t, m, "generationTime")
		require.Equal(t, "2024-06-10T18:33:20Z", m["expirationTime"])
		require.Equal(t, "wsfe", m["service"])
	})

	t.Run("present when set", func(t *testing.T) {
		gen := exp.Add(-12 * time.Hour)
		resp := FromTicket("wsfe", &wsaa.AccessTicket{Token: "T", Sign: "S", GeneratedAt: gen, ExpiresAt: exp})
		require.NotNil(t, resp.GenerationTime)

		raw, err := json.Marshal(resp)
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal(raw, &m))
		require.Equal(t, "2024-06-10T06:33:20Z", m["generationTime"])
	})
}
