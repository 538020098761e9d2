package extract

import (
	"regexp"
	"strings"
)

var (
	bankNameText = regexp.MustCompile(`(?i)(?:Legal Title of Holding Company|Reporter's Name.*?)\n+([A-Z0-9 .,&'’\-]+)`)
	bankNameFile = regexp.MustCompile(`([^/\\]+)_Y-6_\d{4}-\d{2}-\d{2}_English`)
	reportDate   = regexp.MustCompile(`(?i)Date of Report.*?:\s*\$?\s*(\d{2})\s*/\s*(\d{2})\s*/\s*(\d{4})`)
	fiscalYear   = regexp.MustCompile(`(?i)fiscal year.*?(\d{4})`)
	fileYear     = regexp.MustCompile(`_Y-6_(\d{4})-\d{2}-\d{2}_English`)
)

// BankName reads the holding company name from the filing text, then from
// a "<Name>_Y-6_<date>_English" file name.
func BankName(markdown, name string) string {
	if m := bankNameText.FindStringSubmatch(markdown); m != nil {
		if s := strings.TrimSpace(m[1]); s != "" {
			return s
		}
	}
	if m := bankNameFile.FindStringSubmatch(name); m != nil {
		return strings.TrimSpace(strings.ReplaceAll(m[1], "_", " "))
	}
	return ""
}

// FiscalYear reads the report date year, then a "fiscal year" mention, then
// the date in the file name.
func FiscalYear(markdown, name string) string {
	if m := reportDate.FindStringSubmatch(markdown); m != nil {
		return m[3]
	}
	if m := fiscalYear.FindStringSubmatch(markdown); m != nil {
		return m[1]
	}
	if m := fileYear.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return ""
}
