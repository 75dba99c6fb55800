package validate

import (
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// MinPasswordLength is the shortest password the backend accepts.
const MinPasswordLength = 8

// Required returns a validator that rejects blank input.
func Required(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

// Email rejects blank or malformed addresses.
func Email(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("email is required")
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return fmt.Errorf("enter a valid email address")
	}
	return nil
}

// Password enforces the minimum length.
func Password(s string) error {
	if len(s) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// Matches returns a validator that requires input equal to *other.
func Matches(other *string, what string) func(string) error {
	return func(s string) error {
		if s != *other {
			return fmt.Errorf("%s do not match", what)
		}
		return nil
	}
}

// Amount requires a positive decimal number.
func Amount(s string) error {
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	if v <= 0 {
		return fmt.Errorf("amount must be greater than zero")
	}
	return nil
}

// ParseAmount parses a decimal amount, accepting thousands separators.
func ParseAmount(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, fmt.Errorf("amount is required")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("amount must be a number")
	}
	return v, nil
}

// Date requires a YYYY-MM-DD date.
func Date(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("date is required")
	}
	return OptionalDate(s)
}

// OptionalDate accepts blank input or a YYYY-MM-DD date.
func OptionalDate(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if _, err := time.Parse(DateLayout, s); err != nil {
		return fmt.Errorf("invalid date format, use YYYY-MM-DD")
	}
	return nil
}
