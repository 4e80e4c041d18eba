package alerts

import (
	"fmt"
	"maps"
	"strings"
	"unicode/utf8"

	"github.com/eddiefleurent/options_advisor/internal/models"
	"github.com/eddiefleurent/options_advisor/internal/util"
)

// Built-in template ids
const (
	TemplateDefault  = "default"
	TemplateCompact  = "compact"
	TemplateDetailed = "detailed"
)

// Disclosure is appended by every built-in template.
const Disclosure = "Not financial advice. Options carry risk; review before trading."

const ellipsis = "…"

var builtinTemplates = map[string]string{
	TemplateDefault: "[{severity}] {action}: {symbol} ({strategy})\n" +
		"Account: {account}\n" +
		"Price {current_price} vs entry {entry_price} | P/L {pl} ({pl_percent}) | {dte} DTE\n" +
		"Assignment probability: {assignment_probability}\n" +
		"{reason}\n" +
		"{disclosure}",
	TemplateCompact: "{action} {symbol}: P/L {pl_percent}, {dte} DTE. {reason} {disclosure}",
	TemplateDetailed: "[{severity}] {action}: {symbol} ({strategy})\n" +
		"Account: {account} (risk profile: {risk_level})\n" +
		"Underlying {ticker} at {underlying_price}, strike {strike}, {moneyness}\n" +
		"Option {current_price} vs entry {entry_price}\n" +
		"P/L {pl} ({pl_percent}) | {dte} DTE, expires {expiration}\n" +
		"Assignment probability: {assignment_probability} | Roll: {roll_signal}\n" +
		"{reason}\n" +
		"{disclosure}",
}

// Formatter renders alerts through named templates.
type Formatter struct {
	templates map[string]string
}

// NewFormatter returns a formatter with the built-in templates plus custom
// ones. Custom templates may replace built-ins by id.
func NewFormatter(custom map[string]string) *Formatter {
	templates := maps.Clone(builtinTemplates)
	for id, body := range custom {
		templates[id] = body
	}
	return &Formatter{templates: templates}
}

// Has reports whether a template id is known.
func (f *Formatter) Has(id string) bool {
	_, ok := f.templates[id]
	return ok
}

// Render substitutes the alert into the template and caps the result at
// limit runes (0 means no cap). Unknown or empty ids use the default
// template. Truncation runs after substitution so a placeholder is never
// split.
func (f *Formatter) Render(templateID string, a *models.Alert, limit int) string {
	body, ok := f.templates[templateID]
	if !ok {
		body = f.templates[TemplateDefault]
	}
	return Truncate(Substitute(body, Variables(a)), limit)
}

// Substitute replaces {name} placeholders in one pass. Unknown
// placeholders are left as written and substituted values are not
// rescanned.
func Substitute(body string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(body)
}

// Variables returns the placeholder values for an alert.
func Variables(a *models.Alert) map[string]string {
	m := a.Metrics
	account := a.AccountName
	if account == "" {
		account = a.AccountID
	}
	risk := a.RiskLevel
	if risk == "" {
		risk = "unspecified"
	}
	prob := "n/a"
	if m.AssignmentProbability != nil {
		prob = fmt.Sprintf("%.0f%%", *m.AssignmentProbability)
	}
	expiration := ""
	if !a.Expiration.IsZero() {
		expiration = a.Expiration.Format("2006-01-02")
	}

	return map[string]string{
		"account":                account,
		"symbol":                 a.Symbol,
		"ticker":                 a.Ticker,
		"action":                 strings.ReplaceAll(string(a.Recommendation), "_", " "),
		"reason":                 a.Reason,
		"severity":               strings.ToUpper(a.Severity),
		"strategy":               a.Strategy,
		"current_price":          util.FormatUSD(util.Decimal(m.CurrentPrice)),
		"entry_price":            util.FormatUSD(util.Decimal(m.EntryPremium)),
		"underlying_price":       util.FormatUSD(util.Decimal(m.UnderlyingPrice)),
		"strike":                 util.FormatUSD(util.Decimal(a.Strike)),
		"expiration":             expiration,
		"pl":                     util.FormatUSD(util.Decimal(m.PLDollars)),
		"pl_percent":             util.FormatPercent(m.PLPercent),
		"dte":                    fmt.Sprintf("%d", m.DTE),
		"assignment_probability": prob,
		"risk_level":             risk,
		"moneyness":              orNA(m.MoneynessStatus),
		"roll_signal":            orNA(m.RollSignal),
		"disclosure":             Disclosure,
	}
}

// Truncate caps s at limit runes, ending with an ellipsis when cut.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	if limit == 1 {
		return string(runes[:1])
	}
	return string(runes[:limit-1]) + ellipsis
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}
