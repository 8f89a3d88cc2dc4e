package tracker

import "strings"

// classifierInput holds the lower-cased provider descriptors of an instrument.
type classifierInput struct {
	quoteType string
	sector    string
	industry  string
}

func (in classifierInput) anyContains(token string) bool {
	return strings.Contains(in.sector, token) || strings.Contains(in.industry, token)
}

func (in classifierInput) quoteTypeIs(names ...string) bool {
	for _, n := range names {
		if in.quoteType == n {
			return true
		}
	}
	return false
}

type classRule struct {
	result AssetType
	match  func(classifierInput) bool
}

// classRules is evaluated top to bottom; the first match wins.
var classRules = []classRule{
	{AssetETF, func(in classifierInput) bool {
		return in.quoteTypeIs("etf", "exchange-traded fund") || strings.Contains(in.industry, "etf")
	}},
	{AssetBond, func(in classifierInput) bool {
		return in.quoteTypeIs("bond") || strings.Contains(in.industry, "bond") || strings.Contains(in.sector, "fixed income")
	}},
	{AssetCommodity, func(in classifierInput) bool {
		return in.quoteTypeIs("commodity") || in.anyContains("commodity")
	}},
	{AssetCrypto, func(in classifierInput) bool {
		return in.quoteTypeIs("cryptocurrency", "crypto") || in.anyContains("crypto")
	}},
	{AssetCash, func(in classifierInput) bool {
		return in.quoteTypeIs("cash") || in.anyContains("cash")
	}},
	{AssetEquity, func(in classifierInput) bool {
		return in.quoteTypeIs("equity", "stock") || in.anyContains("stock") || in.anyContains("equity")
	}},
	{AssetEquity, func(in classifierInput) bool {
		return in.sector == "" && in.industry == ""
	}},
}

// Classify maps provider sector, industry and quote type strings onto AssetType.
func Classify(sector, industry, quoteType string) AssetType {
	in := classifierInput{
		quoteType: strings.ToLower(strings.TrimSpace(quoteType)),
		sector:    strings.ToLower(strings.TrimSpace(sector)),
		industry:  strings.ToLower(strings.TrimSpace(industry)),
	}
	for _, rule := range classRules {
		if rule.match(in) {
			return rule.result
		}
	}
	return AssetOther
}

// effectiveType decides the type an asset is valued with. Manual overrides
// always win; without provider metadata the stored type is kept. A stored
// commodity also survives metadata with no sector and no industry.
func effectiveType(pos Position, meta *AssetMetadata) AssetType {
	if pos.ManualType && pos.Type != "" {
		return pos.Type
	}
	if pos.Type == AssetCommodity && meta != nil && meta.Sector == "" && meta.Industry == "" {
		return AssetCommodity
	}
	if meta == nil {
		if pos.Type == "" {
			return AssetEquity
		}
		return pos.Type
	}
	return Classify(meta.Sector, meta.Industry, meta.QuoteType)
}
