package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var phoneRegex = regexp.MustCompile(`^\+?[1-9][0-9]{6,14}$`)

// ValidatePhoneNumber checks that a recipient looks like an E.164 number
// (optional leading +, 7 to 15 digits, no leading zero).
func ValidatePhoneNumber(phone string) error {
	if !phoneRegex.MatchString(phone) {
		return fmt.Errorf("invalid phone number: %s", phone)
	}
	return nil
}

var controlChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)
var runsOfSpaces = regexp.MustCompile(` {4,}`)

// SanitizeTemplateParam strips characters the WhatsApp Cloud API rejects in
// template parameters: newlines, tabs and runs of four or more spaces.
func SanitizeTemplateParam(s string) string {
	s = controlChars.ReplaceAllString(s, " ")
	s = runsOfSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
