package orders

import (
	"regexp"
	"strings"
)

var (
	phoneRe   = regexp.MustCompile(`\+?\d[\d\-\s()]{9,}\d`)
	usE164Re  = regexp.MustCompile(`^\+1\d{10}$`)
	nonDigit  = regexp.MustCompile(`\D`)
	orderNoRe = regexp.MustCompile(`\b(\d{4})\b`)
)

// NormalizePhone coerces a spoken or typed phone number to US E.164.
// Returns "" when the input cannot be a valid US number.
func NormalizePhone(p string) string {
	if p == "" {
		return ""
	}
	digits := nonDigit.ReplaceAllString(p, "")
	switch {
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) == 11 && strings.HasPrefix(digits, "1"):
		return "+1" + digits[1:]
	}
	if strings.HasPrefix(strings.TrimSpace(p), "+") {
		candidate := "+" + digits
		if usE164Re.MatchString(candidate) {
			return candidate
		}
	}
	return ""
}

// ExtractPhoneAndOrder pulls a phone number and a 4-digit order number
// out of free text, either of which may be absent.
func ExtractPhoneAndOrder(text string) (phone, orderNumber string) {
	if text == "" {
		return "", ""
	}
	if m := phoneRe.FindString(text); m != "" {
		phone = NormalizePhone(m)
	}
	if m := orderNoRe.FindStringSubmatch(text); m != nil {
		orderNumber = m[1]
	}
	return phone, orderNumber
}
