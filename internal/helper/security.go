// Package helper collects small utilities with no better home.
package helper

import (
	"errors"
	"regexp"
)

// Pattern taken from Regular Expressions Cookbook, slightly modified though
//                                        |Scheme                |User                         |Named/IPv4 host|IPv6+ host
var hostPattern = regexp.MustCompile(`(?i)([a-z][a-z0-9+\-.]*://)([a-z0-9\-._~%!$&'()*+,;=:]+@)([a-z0-9\-._~%]+|\[[a-z0-9\-._~%!$&'()*+,;=:]+\])`)

// conninfoSecretPattern matches a `key=value` pair inside a libpq-style
// connection string whose key carries a secret.
var conninfoSecretPattern = regexp.MustCompile(`(?i)\b(password|sslkey)=(\S+)`)

// SanitizeString will clean password and tokens from URLs, and replace them
// with [FILTERED].
func SanitizeString(str string) string {
	str = hostPattern.ReplaceAllString(str, "$1[FILTERED]@$3$4")
	return conninfoSecretPattern.ReplaceAllString(str, "$1=[FILTERED]")
}

// SanitizeError does the same thing as SanitizeString but for error types
func SanitizeError(err error) error {
	return errors.New(SanitizeString(err.Error()))
}
