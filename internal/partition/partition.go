// Package partition infers the fiscal year a filing belongs to from its file
// name, falling back to the year of the folder it was found in.
package partition

import (
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Unknown is the partition for documents with no usable year.
const Unknown = "unknown"

const minYear = 1900

var (
	isoDatePattern  = regexp.MustCompile(`(19|20)\d{2}[-_](0[1-9]|1[0-2])[-_](0[1-9]|[12]\d|3[01])`)
	isoMonthPattern = regexp.MustCompile(`(19|20)\d{2}[-_](0[1-9]|1[0-2])`)
	yearToken       = regexp.MustCompile(`^(19|20)\d{2}$`)
	folderPrefix    = regexp.MustCompile(`^(19|20)\d{2}`)
)

// Rule extracts candidate years from a file name stem.
type Rule struct {
	Name  string
	Match func(stem string) []int
}

// DefaultRules are evaluated in order; the first rule with an in-range
// candidate decides the year.
var DefaultRules = []Rule{
	{Name: "iso-date", Match: leadingYears(isoDatePattern)},
	{Name: "iso-month", Match: leadingYears(isoMonthPattern)},
	{Name: "bare-year", Match: bareYears},
}

func leadingYears(re *regexp.Regexp) func(string) []int {
	return func(stem string) []int {
		var years []int
		for _, m := range re.FindAllString(stem, -1) {
			if y, err := strconv.Atoi(m[:4]); err == nil {
				years = append(years, y)
			}
		}
		return years
	}
}

// bareYears splits on every non-alphanumeric rune so that "_" and "-" bound
// a token the same way whitespace does.
func bareYears(stem string) []int {
	tokens := strings.FieldsFunc(stem, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var years []int
	for _, tok := range tokens {
		if !yearToken.MatchString(tok) {
			continue
		}
		if y, err := strconv.Atoi(tok); err == nil {
			years = append(years, y)
		}
	}
	return years
}

// Inferer applies an ordered rule list with a clock for the upper bound.
type Inferer struct {
	rules []Rule
	now   func() time.Time
}

type Option func(*Inferer)

// WithClock replaces time.Now, which fixes the upper year bound in tests.
func WithClock(now func() time.Time) Option {
	return func(i *Inferer) {
		i.now = now
	}
}

// WithRules replaces DefaultRules.
func WithRules(rules []Rule) Option {
	return func(i *Inferer) {
		i.rules = rules
	}
}

func NewInferer(opts ...Option) *Inferer {
	i := &Inferer{rules: DefaultRules, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Bounds returns the accepted year range, inclusive.
func (i *Inferer) Bounds() (int, int) {
	return minYear, i.now().UTC().Year() + 1
}

// Infer returns a four-digit year or Unknown. folderYear is 0 when the
// containing folder carries no year.
func (i *Inferer) Infer(stem string, folderYear int) string {
	year, _ := i.InferWithRule(stem, folderYear)
	return year
}

// InferWithRule also reports which rule decided: a rule name, "folder" or "".
func (i *Inferer) InferWithRule(stem string, folderYear int) (string, string) {
	lo, hi := i.Bounds()
	for _, rule := range i.rules {
		best := 0
		for _, y := range rule.Match(stem) {
			if y >= lo && y <= hi && y > best {
				best = y
			}
		}
		if best != 0 {
			return strconv.Itoa(best), rule.Name
		}
	}
	if folderYear >= lo && folderYear <= hi {
		return strconv.Itoa(folderYear), "folder"
	}
	return Unknown, ""
}

// FolderYear reads the leading year of the first path segment below root,
// e.g. "2019_Q4" in "in/2019_Q4/x/a.pdf". It returns 0 when there is none.
func FolderYear(root, key string) int {
	rel := strings.TrimPrefix(key, root)
	folder, _, ok := strings.Cut(rel, "/")
	if !ok {
		return 0
	}
	return LeadingYear(folder)
}

// LeadingYear parses a (19|20)dd prefix of s.
func LeadingYear(s string) int {
	m := folderPrefix.FindString(path.Base(strings.TrimSuffix(s, "/")))
	if m == "" {
		return 0
	}
	y, _ := strconv.Atoi(m)
	return y
}
