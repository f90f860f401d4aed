// Package scan discovers predictions in Moltbook posts and comments and
// registers them as markets. Detection is deliberately strict: a post only
// qualifies when it carries a prediction indicator plus either an explicit
// tag or a time element, and clears a minimum quality score.
package scan

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// minQualityScore is the floor below which indicator matches are treated as
// chatter rather than predictions.
const minQualityScore = 2

const predictionTag = "[PREDICTION]"

// Scoring weights: explicit tag +3, price target +2, time element +2,
// confidence percentage +1.
const (
	tagWeight        = 3
	priceWeight      = 2
	timeWeight       = 2
	confidenceWeight = 1
)

var predictionIndicators = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\[PREDICTION\]`),
	regexp.MustCompile(`(?i)\b(?:I predict|my prediction|prediction:)`),
	regexp.MustCompile(`(?i)\bcalling it(?:\s+now)?[:.]`),
	regexp.MustCompile(`(?i)\bwill\s+(?:reach|hit|break|cross|surpass|exceed|drop\s+to|fall\s+to|be\s+at|be\s+above|be\s+below|pump\s+to|dump\s+to|moon\s+to|crash\s+to)\s+\$?[\d,\.]+k?\b`),
	regexp.MustCompile(`(?i)\b(?:price\s+target|target(?:ing)?|heading\s+to|going\s+to)\s+\$\s*[\d,\.]+k?\b`),
	regexp.MustCompile(`(?i)\$\s*[\d,]+\.?\d*k?\s+(?:by|before|within|in\s+\d)`),
	regexp.MustCompile(`(?i)\b\d{1,3}\s*%\s+(?:chance|probability|likely|likelihood|odds)\b`),
	regexp.MustCompile(`(?i)\bI\s+expect\b.*?\b(?:to|will)\b`),
	regexp.MustCompile(`(?i)\b(?:betting\s+that|I'm\s+betting|bet(?:ting)?\s+on)\b`),
	regexp.MustCompile(`(?i)\b(?:I\s+think|I\s+believe)\b.*?\bwill\b`),
}

var timePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:by|before|after|until|around)\s+(?:January|February|March|April|May|June|July|August|September|October|November|December)(?:\s+\d{1,2})?(?:,?\s+\d{4})?`),
	regexp.MustCompile(`(?i)\b(?:by|in|before|during)\s+Q[1-4]\s*\d{4}?\b`),
	regexp.MustCompile(`(?i)\b(?:by|in|before|during)\s+(?:end\s+of\s+)?\d{4}\b`),
	regexp.MustCompile(`(?i)\b(?:this|next)\s+(?:week|month|quarter|year)\b`),
	regexp.MustCompile(`(?i)\bwithin\s+\d+\s+(?:days?|weeks?|months?|years?)\b`),
	regexp.MustCompile(`(?i)\bby\s+(?:end\s+of\s+)?(?:the\s+)?(?:week|month|quarter|year)\b`),
	regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`(?i)\bin\s+\d+\s+(?:days?|weeks?|months?|years?)\b`),
	regexp.MustCompile(`\b(?:EOY|EOM|EOW|EOD)\b`),
	regexp.MustCompile(`(?i)\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{4}\b`),
}

var (
	priceRe      = regexp.MustCompile(`(?i)\$\s*([\d,]+\.?\d*)\s*(k)?`)
	confidenceRe = regexp.MustCompile(`(\d{1,3})\s*%`)
)

var claimPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\[PREDICTION\]\s*(.{10,300})`),
	regexp.MustCompile(`(?i)(?:I predict|my prediction[:\s]|prediction[:\s]|calling it(?:\s+now)?[:\s])\s*(.{10,300})`),
	regexp.MustCompile(`(?i)((?:BTC|ETH|SOL|Bitcoin|Ethereum|Solana|XRP|DOGE)\b.*?\bwill\s+(?:reach|hit|break|cross|surpass|drop to|fall to|be at)\s+[\$\d,\.]+k?.*?)(?:\.|$)`),
}

// cryptoAssets maps common ticker mentions to CoinGecko coin ids. A claim
// naming several assets resolves to the one mentioned first; slice order
// breaks ties at the same position.
var cryptoAssets = []struct {
	symbol string
	coinID string
}{
	{"btc", "bitcoin"}, {"bitcoin", "bitcoin"},
	{"eth", "ethereum"}, {"ethereum", "ethereum"},
	{"sol", "solana"}, {"solana", "solana"},
	{"bnb", "binancecoin"}, {"doge", "dogecoin"},
	{"ada", "cardano"}, {"xrp", "ripple"},
	{"dot", "polkadot"}, {"avax", "avalanche-2"},
	{"matic", "matic-network"}, {"link", "chainlink"},
	{"atom", "cosmos"}, {"uni", "uniswap"},
	{"arb", "arbitrum"}, {"op", "optimism"},
	{"sui", "sui"},
}

var assetPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(cryptoAssets))
	for i, a := range cryptoAssets {
		out[i] = regexp.MustCompile(`\b` + a.symbol + `\b`)
	}
	return out
}()

// PriceTarget is an extracted crypto price claim suitable for automated
// resolution.
type PriceTarget struct {
	CoinID    string
	Price     float64
	Direction string // "above" or "below"
}

// QualityScore rates how concrete a candidate prediction is.
func QualityScore(text string) int {
	score := 0
	if strings.Contains(strings.ToUpper(text), predictionTag) {
		score += tagWeight
	}
	if priceRe.MatchString(text) {
		score += priceWeight
	}
	if hasTimeElement(text) {
		score += timeWeight
	}
	if m := confidenceRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil && v >= 1 && v <= 100 {
			score += confidenceWeight
		}
	}
	return score
}

func hasPredictionIndicator(text string) bool {
	for _, p := range predictionIndicators {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func hasTimeElement(text string) bool {
	for _, p := range timePatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// IsPrediction reports whether text is a real prediction and its quality.
// An explicit tag qualifies on its own; anything else also needs a time
// element. Either way the quality floor applies.
func IsPrediction(text string) (bool, int) {
	if !hasPredictionIndicator(text) {
		return false, 0
	}

	quality := QualityScore(text)

	if strings.Contains(strings.ToUpper(text), predictionTag) {
		return quality >= minQualityScore, quality
	}
	if !hasTimeElement(text) {
		return false, quality
	}
	return quality >= minQualityScore, quality
}

// ExtractClaim trims text to the predicted claim, capped at 300 characters.
func ExtractClaim(text string) string {
	for _, p := range claimPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return truncate(strings.TrimSpace(m[1]), 300)
		}
	}
	return truncate(strings.TrimSpace(text), 300)
}

// DetectCategory buckets a claim for reputation breakdowns.
func DetectCategory(text string) string {
	t := strings.ToLower(text)
	switch {
	case containsAny(t, "btc", "eth", "sol", "bitcoin", "ethereum", "crypto", "token", "defi", "$"):
		return "crypto"
	case containsAny(t, "election", "president", "congress", "vote", "poll"):
		return "politics"
	case containsAny(t, "ai", "gpt", "model", "agent", "llm", "agi"):
		return "ai"
	case containsAny(t, "stock", "market", "s&p", "nasdaq", "dow"):
		return "markets"
	default:
		return "general"
	}
}

// ExtractConfidence returns the first 1-100 percentage in text as a
// fraction, or nil.
func ExtractConfidence(text string) *float64 {
	m := confidenceRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.Atoi(m[1])
	if err != nil || v < 1 || v > 100 {
		return nil
	}
	f := float64(v) / 100.0
	return &f
}

// ExtractPriceTarget pulls a crypto price target for automated resolution.
// It returns nil when no known asset or no dollar amount is mentioned.
func ExtractPriceTarget(text string) *PriceTarget {
	t := strings.ToLower(text)

	var coinID string
	first := -1
	for i, p := range assetPatterns {
		loc := p.FindStringIndex(t)
		if loc == nil {
			continue
		}
		if first == -1 || loc[0] < first {
			first = loc[0]
			coinID = cryptoAssets[i].coinID
		}
	}
	if coinID == "" {
		return nil
	}

	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	price, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return nil
	}
	if strings.EqualFold(m[2], "k") {
		price *= 1000
	}

	direction := "above"
	if containsAny(t, "drop", "fall", "below", "crash", "dump", "under") {
		direction = "below"
	}

	return &PriceTarget{CoinID: coinID, Price: price, Direction: direction}
}

var monthNames = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

var (
	deadlineISORe      = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	deadlineQuarterRe  = regexp.MustCompile(`(?i)\bby\s+Q([1-4])\s*(\d{4})`)
	deadlineYearRe     = regexp.MustCompile(`(?i)\b(?:by\s+(?:end\s+of\s+)?|in\s+)(\d{4})\b`)
	deadlineMonthDayRe = regexp.MustCompile(`(?i)\b(?:by|before)\s+(January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{1,2})(?:,?\s+(\d{4}))?`)
	deadlineMonthYrRe  = regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{4})\b`)
	deadlineEndOfRe    = regexp.MustCompile(`(?i)\b(?:by\s+end\s+of|this|next)\s+(week|month|quarter|year)\b`)
	deadlineWithinRe   = regexp.MustCompile(`(?i)\b(?:within|in)\s+(\d+)\s+(days?|weeks?|months?|years?)\b`)
)

var quarterEnds = map[int]struct {
	month time.Month
	day   int
}{
	1: {time.March, 31},
	2: {time.June, 30},
	3: {time.September, 30},
	4: {time.December, 31},
}

// ExtractDeadline normalizes the first recognizable deadline in text to a
// date. It returns the zero time when no deadline is found.
func ExtractDeadline(text string, now time.Time) time.Time {
	if m := deadlineISORe.FindStringSubmatch(text); m != nil {
		if ts, err := time.Parse("2006-01-02", m[1]); err == nil {
			return ts.UTC()
		}
	}

	if m := deadlineMonthDayRe.FindStringSubmatch(text); m != nil {
		month := monthNames[strings.ToLower(m[1])]
		day, _ := strconv.Atoi(m[2])
		year := now.Year()
		if m[3] != "" {
			year, _ = strconv.Atoi(m[3])
		}
		ts := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		if m[3] == "" && ts.Before(now) {
			ts = ts.AddDate(1, 0, 0)
		}
		return ts
	}

	if m := deadlineQuarterRe.FindStringSubmatch(text); m != nil {
		q, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[2])
		end := quarterEnds[q]
		return time.Date(year, end.month, end.day, 0, 0, 0, 0, time.UTC)
	}

	if m := deadlineMonthYrRe.FindStringSubmatch(text); m != nil {
		month := monthNames[strings.ToLower(m[1])]
		year, _ := strconv.Atoi(m[2])
		// End of the named month.
		return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	}

	if m := deadlineYearRe.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	}

	if m := deadlineWithinRe.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		days := map[string]int{"day": 1, "week": 7, "month": 30, "year": 365}
		unit := strings.TrimSuffix(strings.ToLower(m[2]), "s")
		return now.AddDate(0, 0, n*days[unit]).UTC()
	}

	if m := deadlineEndOfRe.FindStringSubmatch(text); m != nil {
		days := map[string]int{"week": 7, "month": 30, "quarter": 90, "year": 365}
		return now.AddDate(0, 0, days[strings.ToLower(m[1])]).UTC()
	}

	return time.Time{}
}

// truncate caps s at n bytes without splitting a multi-byte rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
