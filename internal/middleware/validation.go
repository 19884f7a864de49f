package middleware

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ValidateMessageContent validates outbound message text.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if len(content) > 100000 {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateCustomerNumber validates a customer phone number or chat key.
// Accepts bare digits or a full provider endpoint identifier.
func ValidateCustomerNumber(number string) error {
	if number == "" {
		return errors.New("number cannot be empty")
	}
	if len(number) > 64 {
		return errors.New("number exceeds maximum length")
	}
	digits := number
	if at := strings.IndexByte(number, '@'); at >= 0 {
		digits = number[:at]
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return errors.New("number must contain only digits")
		}
	}
	return nil
}

// ParseID parses a positive numeric path parameter.
func ParseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(id), nil
}
