package metadata

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tora-Build/soothsayer-core/internal/domain"
)

const sampleMarket = `::question Will ETH trade above $2,800 by mid-February?
::rule
source:coingecko-ethereum
metric:usd
op:gte
target:2800
:::liquidity initial:10 min:1
::category crypto
::event eth-feb
`

func TestParseKnownTags(t *testing.T) {
	md, err := Parse(sampleMarket)
	require.NoError(t, err)

	assert.Equal(t, "Will ETH trade above $2,800 by mid-February?", md.Question)
	assert.Equal(t, "coingecko-ethereum", md.Rule.Source)
	assert.Equal(t, "usd", md.Rule.Metric)
	assert.Equal(t, domain.OpGTE, md.Rule.Op)
	assert.Equal(t, 2800.0, md.Rule.Target)
	assert.Equal(t, "crypto", md.Category)
	assert.Equal(t, "eth-feb", md.Event)
	require.Contains(t, md.RuleSubs, "liquidity")
	assert.Equal(t, map[string]string{"initial": "10", "min": "1"}, md.RuleSubs["liquidity"])
}

func TestParseManualRule(t *testing.T) {
	md, err := Parse("::question Will the merger close?\n::rule\nsource:manual\nresolver:soothsayer")
	require.NoError(t, err)
	assert.True(t, md.Rule.Manual())
	assert.Equal(t, "soothsayer", md.Rule.Resolver)
}

func TestParseUnknownTagsPreserved(t *testing.T) {
	raw := sampleMarket + "::banner neon\n::odds\nyes:0.6\nno:0.4\n"
	md, err := Parse(raw)
	require.NoError(t, err)

	require.Contains(t, md.Extra, "banner")
	assert.Equal(t, "neon", md.Extra["banner"].Scalar)
	require.Contains(t, md.Extra, "odds")
	assert.Equal(t, "0.6", md.Extra["odds"].Fields["yes"])
}

func TestParseSubTagWithoutOpenBlockDropped(t *testing.T) {
	raw := ":::stray a:b\n" + sampleMarket
	md, err := Parse(raw)
	require.NoError(t, err)
	assert.NotContains(t, md.Extra, "stray")
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		field string
	}{
		{"missing question", "::rule\nsource:manual", "question"},
		{"missing rule", "::question Q?", "rule"},
		{"missing source", "::question Q?\n::rule\nop:gte", "rule.source"},
		{"missing metric", "::question Q?\n::rule\nsource:coingecko-btc\nop:gte\ntarget:1", "rule.metric"},
		{"missing op", "::question Q?\n::rule\nsource:coingecko-btc\nmetric:usd\ntarget:1", "rule.op"},
		{"bad op", "::question Q?\n::rule\nsource:coingecko-btc\nmetric:usd\nop:near\ntarget:1", "rule.op"},
		{"missing target", "::question Q?\n::rule\nsource:coingecko-btc\nmetric:usd\nop:gte", "rule.target"},
		{"bad target", "::question Q?\n::rule\nsource:coingecko-btc\nmetric:usd\nop:gte\ntarget:moon", "rule.target"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrParse))
			var pe *domain.ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tc.field, pe.Field)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	raws := []string{
		sampleMarket,
		"::question Will the merger close?\n::rule\nsource:manual",
		sampleMarket + "::banner neon\n::odds\nyes:0.6\nno:0.4\n",
	}
	for _, raw := range raws {
		first, err := Parse(raw)
		require.NoError(t, err)
		second, err := Parse(Format(first))
		require.NoError(t, err)
		assert.Equal(t, first, second)
	}
}

func TestParseCommit(t *testing.T) {
	c, ok := ParseCommit("[COMMIT] YES 75%\nbecause momentum")
	require.True(t, ok)
	assert.Equal(t, domain.PositionYes, c.Position)
	assert.Equal(t, 75, c.Confidence)

	c, ok = ParseCommit("  [commit] no 60%")
	require.True(t, ok)
	assert.Equal(t, domain.PositionNo, c.Position)
	assert.Equal(t, 60, c.Confidence)

	for _, bad := range []string{
		"[COMMIT] MAYBE 50%",
		"[COMMIT] YES 150%",
		"[COMMIT] YES 75",
		"great market, YES 75%",
		"reasoning first\n[COMMIT] YES 75%",
	} {
		_, ok := ParseCommit(bad)
		assert.False(t, ok, "should reject %q", bad)
	}
}
