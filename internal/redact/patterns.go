// Package redact implements deterministic pattern-based masking of PII and
// payment-card data in strings and JSON-shaped values.
package redact

import (
	"regexp"
	"strings"
)

// Category tags reported for pattern matches.
const (
	TagCreditCard = "credit_card"
	TagIBAN       = "iban"
	TagSSN        = "ssn"
	TagEmail      = "email"
	TagPhone      = "phone"
)

// Pre-compiled patterns, applied in this exact order with global
// replacement. The order is observable: each pattern sees the previous
// pattern's output, so reordering changes results on overlapping inputs.
// A mask function that returns its input unchanged signals a rejected
// candidate (failed checksum, too short) and is not counted.
var patterns = []struct {
	tag  string
	re   *regexp.Regexp
	mask func(string) string
}{
	// Card numbers: four groups of four digits, each gap optionally a
	// single '-' or space. Luhn-gated to keep random digit runs intact.
	{TagCreditCard, regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`), maskCreditCard},

	// IBAN: country code, check digits, 4-30 uppercase alphanumerics.
	{TagIBAN, regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{4,30}\b`), maskIBAN},

	// SSN: DDD-DD-DDDD.
	{TagSSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), maskSSN},

	// Email addresses.
	{TagEmail, regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`), maskEmail},

	// International phone: +, country code, then 8+ digits with optional
	// space/dot/dash separators.
	{TagPhone, regexp.MustCompile(`\+\d{1,3}(?:[-. ]?\d){8,}\b`), maskPhone},
}

// String applies every pattern to s and returns the masked string, the
// number of replacements made, and the category tags that fired.
func String(s string) (string, int, []string) {
	sum := NewSummary()
	masked := StringInto(s, sum)
	return masked, sum.Count(), sum.Types()
}

// StringInto applies every pattern to s, accumulating replacements into
// sum. Replacements where the mask function rejected the candidate are not
// recorded.
func StringInto(s string, sum *Summary) string {
	for _, p := range patterns {
		s = p.re.ReplaceAllStringFunc(s, func(match string) string {
			masked := p.mask(match)
			if masked != match {
				sum.Record(p.tag)
			}
			return masked
		})
	}
	return s
}

func maskCreditCard(match string) string {
	digits := stripNonDigits(match)
	if len(digits) != 16 || !luhnValid(digits) {
		return match
	}
	sep := ""
	if strings.Contains(match, "-") {
		sep = "-"
	} else if strings.Contains(match, " ") {
		sep = " "
	}
	return "****" + sep + "****" + sep + "****" + sep + digits[12:]
}

func maskIBAN(match string) string {
	if len(match) < 15 {
		return match
	}
	return match[:4] + "****" + match[len(match)-4:]
}

func maskSSN(string) string {
	return "***-**-****"
}

func maskEmail(match string) string {
	at := strings.IndexByte(match, '@')
	return match[:1] + "***@" + match[at+1:]
}

func maskPhone(match string) string {
	digits := stripNonDigits(match)
	if len(digits) < 8 {
		return match
	}
	return "+" + digits[:2] + "***" + digits[len(digits)-2:]
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// luhnValid runs the standard mod-10 checksum over a digit string.
func luhnValid(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
