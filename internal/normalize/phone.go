package normalize

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const usRegion = "US"

// Phone formats a raw phone string as "+1 (AAA) BBB-CCCC". An 11-digit number
// with a leading 1 has the country code stripped first. Anything that does not
// reduce to exactly 10 digits is returned as-is, so callers must not assume
// the output is canonical.
func Phone(raw string) string {
	if raw == "" {
		return ""
	}

	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	d := digits.String()
	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	if len(d) != 10 {
		return raw
	}

	return fmt.Sprintf("+1 (%s) %s-%s", d[:3], d[3:6], d[6:])
}

// USPhone parses free-form user input (search filters, not scraped data) and
// returns it in the catalogue's canonical format. Returns an error when the
// input is not a valid US number.
func USPhone(raw string) (string, error) {
	num, err := phonenumbers.Parse(raw, usRegion)
	if err != nil {
		return "", fmt.Errorf("parse phone %q: %w", raw, err)
	}
	if !phonenumbers.IsValidNumberForRegion(num, usRegion) {
		return "", fmt.Errorf("phone %q is not a valid US number", raw)
	}
	return Phone(phonenumbers.GetNationalSignificantNumber(num)), nil
}
