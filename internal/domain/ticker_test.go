package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTicker(t *testing.T) {
	ot, err := ParseTicker("O:SPY220121C00420000")
	require.NoError(t, err)

	assert.Equal(t, "SPY", ot.Root)
	assert.Equal(t, time.Date(2022, 1, 21, 0, 0, 0, 0, time.UTC), ot.Expiry)
	assert.Equal(t, Call, ot.Right)
	assert.Equal(t, 420.0, ot.Strike)
}

func TestParseTicker_FractionalStrike(t *testing.T) {
	ot, err := ParseTicker("O:IWM230616P00187500")
	require.NoError(t, err)

	assert.Equal(t, "IWM", ot.Root)
	assert.Equal(t, Put, ot.Right)
	assert.Equal(t, 187.5, ot.Strike)
}

func TestParseTicker_LongSymbol(t *testing.T) {
	// El símbolo es ancho variable: todo entre el prefijo y la cola fija.
	ot, err := ParseTicker("O:GOOGL240119C01500000")
	require.NoError(t, err)
	assert.Equal(t, "GOOGL", ot.Root)
	assert.Equal(t, 1500.0, ot.Strike)
}

func TestParseTicker_Errors(t *testing.T) {
	cases := []struct {
		name   string
		ticker string
	}{
		{"too short", "O:SPY"},
		{"missing prefix", "X:SPY220121C00420000"},
		{"invalid right", "O:SPY220121X00420000"},
		{"non-digit strike", "O:SPY220121C0042000a"},
		{"invalid expiry", "O:SPY22AB21C00420000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseTicker(tc.ticker)
			assert.Error(t, err)
		})
	}
}

func TestFormatTicker_RoundTrip(t *testing.T) {
	expiry := time.Date(2022, 1, 21, 0, 0, 0, 0, time.UTC)

	ticker := FormatTicker("SPY", expiry, Put, 437.5)
	assert.Equal(t, "O:SPY220121P00437500", ticker)

	ot, err := ParseTicker(ticker)
	require.NoError(t, err)
	assert.Equal(t, "SPY", ot.Root)
	assert.Equal(t, Put, ot.Right)
	assert.Equal(t, 437.5, ot.Strike)
	assert.Equal(t, expiry, ot.Expiry)
}

func TestParseRight(t *testing.T) {
	r, err := ParseRight("C")
	require.NoError(t, err)
	assert.Equal(t, Call, r)

	_, err = ParseRight("call")
	assert.Error(t, err)
}
