package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to MarketStatus }{
		{MarketStatusOpen, MarketStatusResolved},
		{MarketStatusResolved, MarketStatusSettled},
		{MarketStatusSettled, MarketStatusFinalized},
		{MarketStatusOpen, MarketStatusInvalid},
		{MarketStatusResolved, MarketStatusInvalid},
	}
	for _, tt := range allowed {
		assert.True(t, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}

	denied := []struct{ from, to MarketStatus }{
		{MarketStatusOpen, MarketStatusSettled},
		{MarketStatusOpen, MarketStatusFinalized},
		{MarketStatusResolved, MarketStatusFinalized},
		{MarketStatusResolved, MarketStatusOpen},
		{MarketStatusSettled, MarketStatusResolved},
		{MarketStatusSettled, MarketStatusInvalid},
		{MarketStatusFinalized, MarketStatusInvalid},
		{MarketStatusFinalized, MarketStatusSettled},
		{MarketStatusInvalid, MarketStatusOpen},
		{MarketStatusInvalid, MarketStatusResolved},
		{MarketStatusInvalid, MarketStatusInvalid},
		{MarketStatusOpen, MarketStatusOpen},
		{"bogus", MarketStatusResolved},
		{MarketStatusOpen, "bogus"},
	}
	for _, tt := range denied {
		assert.False(t, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestRuleManual(t *testing.T) {
	assert.True(t, Rule{Source: SourceManual}.Manual())
	assert.False(t, Rule{Source: "coingecko:bitcoin", Metric: "price_usd", Op: OpGTE, Target: 1}.Manual())
}
