// Package parser classifies raw messages and extracts transaction candidates.
//
// Parsing is heuristic pattern matching over bank/payment-provider
// notification texts. The filter is conservative: a missed transaction is
// preferred over a junk entry, so messages are rejected outright unless both
// a known provider signature and a positive amount are found.
package parser

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/BarnBuilder412/smsync/pkg/api"
	"github.com/BarnBuilder412/smsync/pkg/config"
)

// DefaultCategory is assigned when no keyword rule matches.
const DefaultCategory = "other"

// amountPatterns are tried in order; the first match with a value > 0 wins.
// Each pattern captures the numeric part (commas allowed) in group 1.
// Currency tokens are anchored on word boundaries so "rs" inside an ordinary
// word never reads as a currency marker; promotional texts from bank senders
// must not yield candidates.
var amountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:\b(?:rs\.?|inr)\b|₹)\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`),
	regexp.MustCompile(`(?i)debited\s+(?:for|by|with)\s+(?:\b(?:rs\.?|inr)\b|₹)?\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`),
	regexp.MustCompile(`(?i)(?:spent|paid)\s+(?:\b(?:rs\.?|inr)\b|₹)?\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`),
}

// merchantPatterns are tried in order; absence of a match is not an error.
// The VPA pattern runs first so UPI handles are not truncated by the
// generic at/to/for capture.
var merchantPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bVPA\s+([A-Za-z0-9._@-]+)`),
	regexp.MustCompile(`(?i)\b(?:at|to|for)\s+([A-Za-z][A-Za-z0-9&.' -]*?)(?:\s+on\b|[.,;]|$)`),
	regexp.MustCompile(`\(([A-Za-z][^)]*)\)`),
}

// Parser extracts transaction candidates from raw messages.
// It is safe for concurrent use; Parse is a pure function of its input.
type Parser struct {
	senders    []string
	categories []config.CategoryRule
}

// New creates a Parser with the given provider allow-list and ordered
// category keyword table. Matching is case-insensitive on both.
func New(senders []string, categories []config.CategoryRule) *Parser {
	lowered := make([]string, 0, len(senders))
	for _, s := range senders {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			lowered = append(lowered, s)
		}
	}

	return &Parser{senders: lowered, categories: categories}
}

// Parse classifies msg and extracts a candidate. It returns nil when the
// message is not transaction-relevant: unknown provider, or no positive
// amount. A missing merchant is not a rejection.
func (p *Parser) Parse(msg api.RawMessage) *api.TransactionCandidate {
	if !p.relevant(msg) {
		return nil
	}

	amount, ok := extractAmount(msg.Body)
	if !ok {
		return nil
	}

	merchant := extractMerchant(msg.Body)

	return &api.TransactionCandidate{
		Amount:        amount,
		Merchant:      merchant,
		Category:      p.categorize(merchant, msg.Body),
		TransactionAt: msg.ObservedTime(),
		SourceSender:  msg.Sender,
	}
}

// relevant reports whether the message carries a known provider signature.
// The sender and the body are both checked; only when neither matches is
// the message rejected.
func (p *Parser) relevant(msg api.RawMessage) bool {
	sender := strings.ToLower(msg.Sender)
	body := strings.ToLower(msg.Body)
	for _, s := range p.senders {
		if strings.Contains(sender, s) || strings.Contains(body, s) {
			return true
		}
	}
	return false
}

func extractAmount(body string) (decimal.Decimal, bool) {
	for _, pattern := range amountPatterns {
		matches := pattern.FindStringSubmatch(body)
		if len(matches) < 2 {
			continue
		}

		raw := strings.ReplaceAll(matches[1], ",", "")
		amount, err := decimal.NewFromString(raw)
		if err != nil || !amount.IsPositive() {
			continue
		}
		return amount, true
	}
	return decimal.Decimal{}, false
}

func extractMerchant(body string) string {
	for _, pattern := range merchantPatterns {
		if matches := pattern.FindStringSubmatch(body); len(matches) > 1 {
			if merchant := strings.TrimSpace(matches[1]); merchant != "" {
				return merchant
			}
		}
	}
	return ""
}

// categorize infers a category from the merchant, falling back to the body
// when no merchant was extracted. Best effort; never blocks a candidate.
func (p *Parser) categorize(merchant, body string) string {
	haystack := strings.ToLower(merchant)
	if haystack == "" {
		haystack = strings.ToLower(body)
	}

	for _, rule := range p.categories {
		if strings.Contains(haystack, strings.ToLower(rule.Keyword)) {
			return rule.Category
		}
	}
	return DefaultCategory
}
