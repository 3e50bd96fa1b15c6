package services

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shoplens-ai/shoplens-engine/pkg/models"
)

// ParameterExtractor recovers structured filters from free-form question
// text: date ranges, status filters, and numeric comparisons. It is pure and
// deterministic, does no I/O, and never errors. A pattern that does not
// appear simply leaves its filter unset.
type ParameterExtractor interface {
	Extract(text string) models.ExtractedFilters
}

type parameterExtractor struct {
	now func() time.Time
}

// NewParameterExtractor creates an extractor anchored to the system clock.
func NewParameterExtractor() ParameterExtractor {
	return &parameterExtractor{now: time.Now}
}

// NewParameterExtractorWithClock creates an extractor with an injected clock
// so tests can pin "now" and assert calendar-exact boundaries.
func NewParameterExtractorWithClock(now func() time.Time) ParameterExtractor {
	return &parameterExtractor{now: now}
}

var _ ParameterExtractor = (*parameterExtractor)(nil)

func (e *parameterExtractor) Extract(text string) models.ExtractedFilters {
	lower := strings.ToLower(text)

	var filters models.ExtractedFilters

	// Dates first: the matched span is blanked out so its words ("last 30
	// days", "over the past week") cannot leak into the numeric scan.
	date, masked := e.extractDate(lower)
	filters.Date = date

	filters.Status = extractStatus(masked)

	// Ranking spans ("top 5") are masked too; their counts are limits, not
	// amount comparisons.
	masked = topNPattern.ReplaceAllStringFunc(masked, blank)
	filters.Numeric = extractNumeric(masked)

	return filters
}

// blank replaces a matched span with spaces of equal length, preserving the
// offsets of everything around it.
func blank(s string) string {
	return strings.Repeat(" ", len(s))
}

// ---------------------------------------------------------------------------
// Date extraction
// ---------------------------------------------------------------------------

var monthsByName = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may": time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

const monthAlternation = `january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec`

var (
	lastNDaysPattern = regexp.MustCompile(`\b(?:last|past|previous)\s+(\d{1,3})\s+days?\b`)
	todayPattern     = regexp.MustCompile(`\btoday\b`)
	yesterdayPattern = regexp.MustCompile(`\byesterday\b`)
	thisWeekPattern  = regexp.MustCompile(`\b(?:this|current)\s+week\b`)
	lastWeekPattern  = regexp.MustCompile(`\b(?:last|past|previous)\s+week\b`)
	thisMonthPattern = regexp.MustCompile(`\b(?:this|current)\s+month\b`)
	lastMonthPattern = regexp.MustCompile(`\b(?:last|past|previous)\s+month\b`)
	thisYearPattern  = regexp.MustCompile(`\b(?:this|current)\s+year\b`)
	lastYearPattern  = regexp.MustCompile(`\b(?:last|past|previous)\s+year\b`)

	// Month+year must be tried before bare month and bare year: "january
	// 2025" would otherwise be claimed by the looser patterns with the wrong
	// boundaries. This ordering is a correctness requirement.
	monthYearPattern = regexp.MustCompile(`\b(` + monthAlternation + `)\.?,?\s+(\d{4})\b`)
	bareMonthPattern = regexp.MustCompile(`\b(?:in|during|for)\s+(` + monthAlternation + `)\b`)
	bareYearPattern  = regexp.MustCompile(`\b(?:in|during|for)\s+(\d{4})\b`)

	topNPattern = regexp.MustCompile(`\btop\s+\d+\b`)
)

// extractDate recognizes one named period and converts it into a half-open
// timestamp range anchored at the extractor's clock. The second return value
// is the input with the matched span blanked.
func (e *parameterExtractor) extractDate(lower string) (*models.DateRange, string) {
	now := e.now()

	if loc := lastNDaysPattern.FindStringSubmatchIndex(lower); loc != nil {
		n, err := strconv.Atoi(lower[loc[2]:loc[3]])
		if err == nil && n > 0 {
			// Rolling window: anchored to the instant, not the day boundary.
			return openRange(now.AddDate(0, 0, -n)), blankSpan(lower, loc[0], loc[1])
		}
	}

	if loc := todayPattern.FindStringIndex(lower); loc != nil {
		return openRange(startOfDay(now)), blankSpan(lower, loc[0], loc[1])
	}

	if loc := yesterdayPattern.FindStringIndex(lower); loc != nil {
		today := startOfDay(now)
		return closedRange(today.AddDate(0, 0, -1), today), blankSpan(lower, loc[0], loc[1])
	}

	if loc := thisWeekPattern.FindStringIndex(lower); loc != nil {
		return openRange(startOfWeek(now)), blankSpan(lower, loc[0], loc[1])
	}

	if loc := lastWeekPattern.FindStringIndex(lower); loc != nil {
		monday := startOfWeek(now)
		return closedRange(monday.AddDate(0, 0, -7), monday), blankSpan(lower, loc[0], loc[1])
	}

	if loc := thisMonthPattern.FindStringIndex(lower); loc != nil {
		return openRange(startOfMonth(now)), blankSpan(lower, loc[0], loc[1])
	}

	if loc := lastMonthPattern.FindStringIndex(lower); loc != nil {
		first := startOfMonth(now)
		return closedRange(first.AddDate(0, -1, 0), first), blankSpan(lower, loc[0], loc[1])
	}

	if loc := thisYearPattern.FindStringIndex(lower); loc != nil {
		return openRange(startOfYear(now)), blankSpan(lower, loc[0], loc[1])
	}

	if loc := lastYearPattern.FindStringIndex(lower); loc != nil {
		jan1 := startOfYear(now)
		return closedRange(jan1.AddDate(-1, 0, 0), jan1), blankSpan(lower, loc[0], loc[1])
	}

	if loc := monthYearPattern.FindStringSubmatchIndex(lower); loc != nil {
		month := monthsByName[lower[loc[2]:loc[3]]]
		year, err := strconv.Atoi(lower[loc[4]:loc[5]])
		if err == nil {
			start := time.Date(year, month, 1, 0, 0, 0, 0, now.Location())
			return closedRange(start, start.AddDate(0, 1, 0)), blankSpan(lower, loc[0], loc[1])
		}
	}

	if loc := bareMonthPattern.FindStringSubmatchIndex(lower); loc != nil {
		// A bare month means that month of the current year.
		month := monthsByName[lower[loc[2]:loc[3]]]
		start := time.Date(now.Year(), month, 1, 0, 0, 0, 0, now.Location())
		return closedRange(start, start.AddDate(0, 1, 0)), blankSpan(lower, loc[0], loc[1])
	}

	if loc := bareYearPattern.FindStringSubmatchIndex(lower); loc != nil {
		year, err := strconv.Atoi(lower[loc[2]:loc[3]])
		if err == nil && year >= 1970 && year <= 9999 {
			start := time.Date(year, time.January, 1, 0, 0, 0, 0, now.Location())
			return closedRange(start, start.AddDate(1, 0, 0)), blankSpan(lower, loc[0], loc[1])
		}
	}

	return nil, lower
}

func blankSpan(s string, start, end int) string {
	return s[:start] + strings.Repeat(" ", end-start) + s[end:]
}

func openRange(gte time.Time) *models.DateRange {
	return &models.DateRange{GTE: gte}
}

func closedRange(gte, lt time.Time) *models.DateRange {
	return &models.DateRange{GTE: gte, LT: &lt}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// startOfWeek returns the most recent Monday at midnight.
func startOfWeek(t time.Time) time.Time {
	day := startOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func startOfYear(t time.Time) time.Time {
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
}

// ---------------------------------------------------------------------------
// Status extraction
// ---------------------------------------------------------------------------

// paymentRules are matched and masked before order-status rules so "pending
// payment" never satisfies the order-status "pending" rule. Multi-word
// phrases come first within the list for the same reason.
var paymentRules = []struct {
	pattern *regexp.Regexp
	value   string
}{
	{regexp.MustCompile(`\bpending\s+payments?\b`), "pending"},
	{regexp.MustCompile(`\bpayments?\s+pending\b`), "pending"},
	{regexp.MustCompile(`\bawaiting\s+payments?\b`), "pending"},
	{regexp.MustCompile(`\bunpaid\b`), "unpaid"},
	{regexp.MustCompile(`\bnot\s+paid\b`), "unpaid"},
	{regexp.MustCompile(`\bpaid\b`), "paid"},
}

var orderStatusRules = []struct {
	pattern *regexp.Regexp
	value   string
}{
	{regexp.MustCompile(`\bpending\b`), "pending"},
	{regexp.MustCompile(`\bconfirmed\b`), "confirmed"},
	{regexp.MustCompile(`\bshipped\b`), "shipped"},
	{regexp.MustCompile(`\bdelivered\b`), "delivered"},
	{regexp.MustCompile(`\bcancell?ed\b`), "canceled"},
}

// extractStatus maps the fixed status vocabulary onto exact-match filters.
// The order-status and payment-status vocabularies are independent: at most
// one filter per field, and a question may legitimately carry both
// ("delivered unpaid orders").
func extractStatus(lower string) []models.StatusFilter {
	var filters []models.StatusFilter

	for _, rule := range paymentRules {
		if loc := rule.pattern.FindStringIndex(lower); loc != nil {
			filters = append(filters, models.StatusFilter{
				Field: models.FieldPaymentStatus,
				Value: rule.value,
			})
			lower = blankSpan(lower, loc[0], loc[1])
			break
		}
	}

	for _, rule := range orderStatusRules {
		if rule.pattern.MatchString(lower) {
			filters = append(filters, models.StatusFilter{
				Field: models.FieldStatus,
				Value: rule.value,
			})
			break
		}
	}

	return filters
}

// ---------------------------------------------------------------------------
// Numeric extraction
// ---------------------------------------------------------------------------

const numberGroup = `\$?\s?(\d[\d,]*(?:\.\d+)?)`

type numericOp int

const (
	opGT numericOp = iota
	opGTE
	opLT
	opLTE
	opBetween
)

// numericRules require an operator phrase immediately followed by a number.
// Aggregation wording ("total revenue", "average sales") carries no such
// pair, so a sum request never degrades into a filter. Negated phrases
// ("no more than") precede the bare comparatives they contain.
var numericRules = []struct {
	pattern *regexp.Regexp
	op      numericOp
}{
	{regexp.MustCompile(`\bbetween\s+` + numberGroup + `\s+and\s+` + numberGroup), opBetween},
	{regexp.MustCompile(`\bat\s+least\s+` + numberGroup), opGTE},
	{regexp.MustCompile(`\bno\s+less\s+than\s+` + numberGroup), opGTE},
	{regexp.MustCompile(numberGroup + `\s+or\s+more\b`), opGTE},
	{regexp.MustCompile(`\bat\s+most\s+` + numberGroup), opLTE},
	{regexp.MustCompile(`\bno\s+more\s+than\s+` + numberGroup), opLTE},
	{regexp.MustCompile(`\bup\s+to\s+` + numberGroup), opLTE},
	{regexp.MustCompile(numberGroup + `\s+or\s+less\b`), opLTE},
	{regexp.MustCompile(`\b(?:more|greater|higher|bigger)\s+than\s+` + numberGroup), opGT},
	{regexp.MustCompile(`\bover\s+` + numberGroup), opGT},
	{regexp.MustCompile(`\babove\s+` + numberGroup), opGT},
	{regexp.MustCompile(`\bexceeding\s+` + numberGroup), opGT},
	{regexp.MustCompile(`\b(?:less|lower|smaller|fewer)\s+than\s+` + numberGroup), opLT},
	{regexp.MustCompile(`\bunder\s+` + numberGroup), opLT},
	{regexp.MustCompile(`\bbelow\s+` + numberGroup), opLT},
}

var deliveryFieldPattern = regexp.MustCompile(`\b(?:delivery|shipping)\b`)

// extractNumeric recognizes comparison phrases and binds them to an amount
// field chosen by nearby keywords. Matched spans are blanked as rules apply
// so "no more than 50" cannot also satisfy "more than 50".
func extractNumeric(lower string) *models.NumericFilter {
	var filter *models.NumericFilter

	ensure := func() *models.NumericFilter {
		if filter == nil {
			field := models.FieldGrandTotal
			if deliveryFieldPattern.MatchString(lower) {
				field = models.FieldDeliveryCharge
			}
			filter = &models.NumericFilter{Field: field}
		}
		return filter
	}

	for _, rule := range numericRules {
		loc := rule.pattern.FindStringSubmatchIndex(lower)
		if loc == nil {
			continue
		}

		first, ok := parseAmount(lower[loc[2]:loc[3]])
		if !ok {
			continue
		}

		f := ensure()
		switch rule.op {
		case opBetween:
			second, ok := parseAmount(lower[loc[4]:loc[5]])
			if !ok {
				continue
			}
			f.GTE = &first
			f.LTE = &second
		case opGT:
			if f.GT == nil && f.GTE == nil {
				f.GT = &first
			}
		case opGTE:
			if f.GT == nil && f.GTE == nil {
				f.GTE = &first
			}
		case opLT:
			if f.LT == nil && f.LTE == nil {
				f.LT = &first
			}
		case opLTE:
			if f.LT == nil && f.LTE == nil {
				f.LTE = &first
			}
		}

		lower = blankSpan(lower, loc[0], loc[1])
	}

	if filter != nil && filter.GT == nil && filter.GTE == nil && filter.LT == nil && filter.LTE == nil {
		return nil
	}
	return filter
}

func parseAmount(s string) (float64, bool) {
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
