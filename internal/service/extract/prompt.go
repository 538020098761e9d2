package extract

import "strings"

const promptHeader = `The text below is the OCR output of an FR Y-6 annual report.

Return one JSON object with exactly three keys:
- "shareholders": rows of the securities holders table with keys
  a1 name, b1 city, c1 state, d1 country, e1 country of citizenship,
  f1 number of common (or voting) shares, g1 percentage of voting securities.
- "insiders": rows of the insiders table with keys
  a2 name, b2 city, b3 state, b4 country,
  b5 principal occupation outside the holding company,
  b6 title with the holding company,
  b7 titles with subsidiaries (with subsidiary names),
  b8 titles with other companies,
  b9 percentage of voting shares in the holding company, percentages only, ";" separated,
  b9_full_voting_shares_text the voting shares wording exactly as reported,
  b10 percentage of voting shares in subsidiaries,
  b11 other companies where 25% or more of voting securities are held.
- "bank_data": a list with one object {"Bank Name": string, "Year": four-digit string}
  where Year is the fiscal year of the report.

Use null for missing, blank or N/A values. Join lists with ";". Replace line
breaks inside values with single spaces. Add no other keys and no prose.

FR Y-6 OCR TEXT:
---
`

// BuildPrompt embeds markdown, cut to at most limit bytes when limit > 0.
func BuildPrompt(markdown string, limit int) string {
	if limit > 0 && len(markdown) > limit {
		markdown = strings.ToValidUTF8(markdown[:limit], "")
	}
	return promptHeader + markdown + "\n"
}
