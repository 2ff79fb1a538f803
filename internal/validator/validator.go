// Package validator holds the field rules that go beyond struct tags.
package validator

import (
	"fmt"
	"regexp"
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9._+-]*[a-zA-Z0-9])?@[a-zA-Z0-9]([a-zA-Z0-9.-]*[a-zA-Z0-9])?\.[a-zA-Z]{2,}$`)
	usernameRegex = regexp.MustCompile(`^[a-z0-9_]+$`)
	lowercase     = regexp.MustCompile(`[a-z]`)
	uppercase     = regexp.MustCompile(`[A-Z]`)
	number        = regexp.MustCompile(`\d`)
)

func Email(email string) error {
	const maxLength = 100

	if len(email) > maxLength {
		return fmt.Errorf("long_email")
	}

	if !emailRegex.MatchString(email) {
		return fmt.Errorf("bad_format")
	}

	return nil
}

func Username(username string) error {
	length := len(username)
	if length < 3 {
		return fmt.Errorf("short_username")
	} else if length > 32 {
		return fmt.Errorf("long_username")
	}

	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("bad_characters")
	}
	return nil
}

func Password(password string) error {
	length := len(password)
	if length < 6 {
		return fmt.Errorf("short_password")
	} else if length > 32 {
		return fmt.Errorf("long_password")
	}

	if !lowercase.MatchString(password) {
		return fmt.Errorf("no_lowercase")
	}
	if !uppercase.MatchString(password) {
		return fmt.Errorf("no_uppercase")
	}
	if !number.MatchString(password) {
		return fmt.Errorf("no_number")
	}
	return nil
}
