package analysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDirection(t *testing.T) {
	cases := map[string]string{
		"buy": DirectionBuy, "LONG": DirectionBuy, "Bullish": DirectionBuy,
		"sell": DirectionSell, "short": DirectionSell, "BEARISH": DirectionSell,
		"hold": DirectionHold, "WAIT": DirectionHold, "neutral": DirectionHold, "flat": DirectionHold,
		"maybe": "", "": "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeDirection(in), in)
	}
}

func TestRecommendationValidate(t *testing.T) {
	good := Recommendation{
		Pair: "EURUSD", Direction: DirectionBuy, Confidence: 70,
		StopLoss:   PricePips{Pips: 20},
		TakeProfit: PricePips{Pips: 40},
	}
	require.NoError(t, good.Validate())

	hold := Recommendation{Pair: "EURUSD", Direction: DirectionHold, Confidence: 40}
	require.NoError(t, hold.Validate())

	bad := good
	bad.Direction = "UP"
	require.Error(t, bad.Validate())

	bad = good
	bad.Confidence = 120
	require.Error(t, bad.Validate())

	bad = good
	bad.Pair = ""
	require.Error(t, bad.Validate())

	bad = good
	bad.StopLoss = PricePips{}
	require.Error(t, bad.Validate())

	bad = good
	bad.TakeProfit = PricePips{}
	require.Error(t, bad.Validate())
}

func TestBuildEnginesModes(t *testing.T) {
	models := []ModelConfig{
		{ID: "gpt", Enabled: true, Model: "gpt-4o", APIKey: "k"},
		{ID: "off", Enabled: false, Model: "claude"},
	}

	engines, err := BuildEngines("", nil, time.Second, false)
	require.NoError(t, err)
	require.Len(t, engines, 1)
	assert.Equal(t, "indicator", engines[0].Name())

	engines, err = BuildEngines("chat", models, time.Second, false)
	require.NoError(t, err)
	require.Len(t, engines, 1)
	assert.Equal(t, "gpt", engines[0].Name())

	engines, err = BuildEngines("both", models, time.Second, true)
	require.NoError(t, err)
	assert.Len(t, engines, 2)

	_, err = BuildEngines("chat", nil, time.Second, false)
	require.Error(t, err)

	_, err = BuildEngines("oracle", models, time.Second, false)
	require.Error(t, err)
}

func TestBuildEnginesDefaultsIDToModel(t *testing.T) {
	engines, err := BuildEngines("chat", []ModelConfig{{Enabled: true, Model: "deepseek-chat"}}, 0, false)
	require.NoError(t, err)
	require.Len(t, engines, 1)
	assert.Equal(t, "deepseek-chat", engines[0].Name())
}
