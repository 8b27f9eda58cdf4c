// Package voice turns short spoken phrases such as
// "spent $12.50 at Starbucks on coffee yesterday" into draft transactions.
package voice

import (
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/saveplus/saveplus/internal/domain"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ErrNoAmount is returned when the utterance does not contain an amount.
var ErrNoAmount = errors.New("no amount found")

// Uncategorized is the category used when no keyword matches.
const Uncategorized = "Uncategorized"

// Source is recorded on transactions entered by voice.
const Source = "voice"

// Direction is whether money left or entered the account.
type Direction string

const (
	DirectionExpense Direction = "expense"
	DirectionIncome  Direction = "income"
)

// Draft is a parsed transaction awaiting user confirmation.
type Draft struct {
	Text        string    `json:"text"`
	AmountCents int64     `json:"amount_cents"` // negative for expenses
	Direction   Direction `json:"direction"`
	Merchant    string    `json:"merchant,omitempty"`
	Category    string    `json:"category"`
	Date        time.Time `json:"date"`
	Confidence  float64   `json:"confidence"`
}

// Transaction converts the draft into a domain transaction.
func (d Draft) Transaction(id, userID string) domain.Transaction {
	return domain.Transaction{
		ID:       id,
		UserID:   userID,
		Merchant: d.Merchant,
		Amount:   d.AmountCents,
		Date:     d.Date,
		Category: d.Category,
	}
}

// CategoryConfig is one entry in the keyword table.
type CategoryConfig struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// CategoriesConfig is the YAML layout of the keyword table.
type CategoriesConfig struct {
	Categories []CategoryConfig `yaml:"categories"`
}

//go:embed categories.yaml
var defaultCategories []byte

var (
	symbolAmount = regexp.MustCompile(`\$\s?(\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)`)
	wordAmount   = regexp.MustCompile(`(?i)\b(\d+(?:\.\d{1,2})?)\s*(?:dollars?|bucks?|usd)\b`)
	bareAmount   = regexp.MustCompile(`\b(\d+(?:\.\d{1,2})?)\b`)

	incomeWords = regexp.MustCompile(`(?i)\b(?:received|receive|earned|earn|got paid|income|deposited|deposit|refunded)\b`)

	// tried in order, so "at X" wins over "went to buy X"
	merchantIntros = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bat\s+(.+)`),
		regexp.MustCompile(`(?i)\bfrom\s+(.+)`),
		regexp.MustCompile(`(?i)\bto\s+(.+)`),
	}

	daysAgo   = regexp.MustCompile(`(?i)\b(\d+)\s+days?\s+ago\b`)
	weekdayRe = regexp.MustCompile(`(?i)\b(last\s+|on\s+)?(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`)
)

// merchantStop ends a merchant phrase.
var merchantStop = map[string]bool{
	"on": true, "for": true, "today": true, "yesterday": true, "last": true,
	"ago": true, "this": true, "and": true, "with": true, "because": true,
	"sunday": true, "monday": true, "tuesday": true, "wednesday": true,
	"thursday": true, "friday": true, "saturday": true,
}

const maxMerchantWords = 4

// Parser holds the compiled keyword table.
type Parser struct {
	categories []compiledCategory
}

type compiledCategory struct {
	name     string
	patterns []*regexp.Regexp
}

// NewParser returns a parser using the built-in keyword table.
func NewParser() *Parser {
	p, err := NewParserFromYAML(defaultCategories)
	if err != nil {
		panic(fmt.Sprintf("voice: built-in categories: %v", err))
	}
	return p
}

// NewParserFromYAML builds a parser from a categories YAML document.
func NewParserFromYAML(data []byte) (*Parser, error) {
	var cfg CategoriesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("NewParserFromYAML: decode: %w", err)
	}

	p := &Parser{}
	for _, c := range cfg.Categories {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, fmt.Errorf("NewParserFromYAML: category without name")
		}
		cc := compiledCategory{name: name}
		for _, kw := range c.Keywords {
			kw = strings.TrimSpace(kw)
			if kw == "" {
				continue
			}
			cc.patterns = append(cc.patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(kw)+`\b`))
		}
		p.categories = append(p.categories, cc)
	}
	return p, nil
}

// Parse extracts a draft transaction from text. Dates are resolved
// relative to now.
func (p *Parser) Parse(text string, now time.Time) (Draft, error) {
	text = strings.TrimSpace(text)
	cents, ok := parseAmount(text)
	if !ok {
		return Draft{}, ErrNoAmount
	}

	d := Draft{Text: text, Direction: DirectionExpense, Category: Uncategorized}
	if incomeWords.MatchString(text) {
		d.Direction = DirectionIncome
		d.AmountCents = cents
	} else {
		d.AmountCents = -cents
	}

	d.Merchant = parseMerchant(text)
	d.Category = p.categorize(text)
	if d.Direction == DirectionIncome && d.Category == Uncategorized {
		d.Category = "Income"
	}

	date, explicit := parseDate(text, now)
	d.Date = date

	d.Confidence = 0.4
	if d.Merchant != "" {
		d.Confidence += 0.2
	}
	if d.Category != Uncategorized {
		d.Confidence += 0.2
	}
	if explicit {
		d.Confidence += 0.2
	}
	d.Confidence = roundTo2(d.Confidence)
	return d, nil
}

func (p *Parser) categorize(text string) string {
	for _, c := range p.categories {
		for _, re := range c.patterns {
			if re.MatchString(text) {
				return c.name
			}
		}
	}
	return Uncategorized
}

// parseAmount prefers "$12.50", then "12 dollars", then a bare number that
// is not part of "N days ago".
func parseAmount(text string) (int64, bool) {
	if m := symbolAmount.FindStringSubmatch(text); m != nil {
		return toCents(strings.ReplaceAll(m[1], ",", ""))
	}
	if m := wordAmount.FindStringSubmatch(text); m != nil {
		return toCents(m[1])
	}

	stripped := daysAgo.ReplaceAllString(text, " ")
	if m := bareAmount.FindStringSubmatch(stripped); m != nil {
		return toCents(m[1])
	}
	return 0, false
}

func toCents(s string) (int64, bool) {
	v, err := decimal.NewFromString(s)
	if err != nil || !v.IsPositive() {
		return 0, false
	}
	return v.Shift(2).Round(0).IntPart(), true
}

func parseMerchant(text string) string {
	for _, re := range merchantIntros {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if name := merchantPhrase(m[1]); name != "" {
			return name
		}
	}
	return ""
}

func merchantPhrase(rest string) string {
	var words []string
	for _, w := range strings.Fields(rest) {
		trimmed := strings.Trim(w, ",.!?;:")
		if len(words) == 0 && (strings.EqualFold(trimmed, "the") || strings.EqualFold(trimmed, "a")) {
			continue
		}
		if trimmed == "" || merchantStop[strings.ToLower(trimmed)] {
			break
		}
		if _, err := strconv.ParseFloat(strings.TrimPrefix(trimmed, "$"), 64); err == nil {
			break
		}
		words = append(words, trimmed)
		if len(words) == maxMerchantWords || trimmed != w {
			break
		}
	}
	return strings.Join(words, " ")
}

// parseDate returns the resolved date and whether the text named one.
func parseDate(text string, now time.Time) (time.Time, bool) {
	today := domain.DateOnly(now)
	lower := strings.ToLower(text)

	switch {
	case strings.Contains(lower, "yesterday"):
		return today.AddDate(0, 0, -1), true
	case strings.Contains(lower, "today"):
		return today, true
	}

	if m := daysAgo.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return today.AddDate(0, 0, -n), true
		}
	}

	if m := weekdayRe.FindStringSubmatch(text); m != nil {
		target := weekdays[strings.ToLower(m[2])]
		back := (int(today.Weekday()) - int(target) + 7) % 7
		if back == 0 && strings.HasPrefix(strings.ToLower(m[1]), "last") {
			back = 7
		}
		return today.AddDate(0, 0, -back), true
	}

	return today, false
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func roundTo2(f float64) float64 {
	v, _ := decimal.NewFromFloat(f).Round(2).Float64()
	return v
}
