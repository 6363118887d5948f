package notify

import (
	"fmt"
	"regexp"
	"strings"
)

var digitRuns = regexp.MustCompile(`\d+`)

// NormalizePhone cleans up a phone number for SMS sending, producing the
// "+13334445555" form. Anything that is not a digit is stripped, the result
// must be 10 to 12 digits, and 10-digit numbers get the US country code.
func NormalizePhone(phone string) (string, error) {
	matches := digitRuns.FindAllString(phone, -1)
	digits := strings.Join(matches, "")
	if len(digits) < 10 || len(digits) > 12 {
		return "", fmt.Errorf("phone number %q is not between 10 and 12 digits", phone)
	}
	if len(digits) == 10 {
		digits = "1" + digits
	}
	return "+" + digits, nil
}
