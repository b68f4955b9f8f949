package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
)

// Patterns that mark a failure as a stale element reference regardless
// of the error type that carried it.
var staleElementPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)stale element`),
	regexp.MustCompile(`(?i)element is not attached`),
	regexp.MustCompile(`(?i)element reference is stale`),
}

// Classify maps any error to its retry classification and an error code.
//
// Precedence: explicit TypedError tag, then timeouts and stale-reference
// patterns (TRANSIENT), then name/message heuristics, then RETRIABLE as
// the safe default for unknown failures.
func Classify(err error) (ErrorType, string) {
	var typed *TypedError
	if errors.As(err, &typed) {
		code := typed.Code
		if code == "" {
			code = codeFromError(err)
		}
		return typed.Kind, code
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTransient, "TIMEOUT"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTransient, "TIMEOUT"
	}

	if isStaleElement(err) {
		return ErrorTransient, "STALE_ELEMENT"
	}

	name := strings.ToLower(fmt.Sprintf("%T", err))
	msg := strings.ToLower(err.Error())

	// Not-found lookups (missing element, selector miss) behave like
	// timeouts: the page just has not settled yet.
	if strings.Contains(name, "nosuchelement") || strings.Contains(name, "notfound") ||
		strings.Contains(msg, "no such element") || strings.Contains(msg, "not found") {
		return ErrorTransient, codeFromError(err)
	}

	switch {
	case strings.Contains(name, "auth"), strings.Contains(name, "credential"),
		strings.Contains(msg, "invalid credentials"):
		return ErrorPermanent, codeFromError(err)
	case strings.Contains(name, "notimplemented"), strings.Contains(name, "validation"):
		return ErrorPermanent, codeFromError(err)
	case strings.Contains(name, "ratelimit"), strings.Contains(name, "resource"):
		return ErrorRetriable, codeFromError(err)
	}

	return ErrorRetriable, codeFromError(err)
}

func isStaleElement(err error) bool {
	msg := err.Error()
	for _, p := range staleElementPatterns {
		if p.MatchString(msg) {
			return true
		}
	}
	return false
}

var camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)

// codeFromError derives an UPPER_SNAKE_CASE code from the error's Go
// type name, dropping package qualifiers, pointer markers, and a
// trailing ERROR/EXCEPTION segment.
func codeFromError(err error) string {
	name := fmt.Sprintf("%T", err)
	name = strings.TrimPrefix(name, "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	// Bare errors.New/fmt.Errorf values carry no useful type name.
	if name == "errorString" || name == "wrapError" {
		return "UNKNOWN"
	}
	code := strings.ToUpper(camelBoundary.ReplaceAllString(name, "${1}_${2}"))
	code = strings.TrimSuffix(code, "_EXCEPTION")
	code = strings.TrimSuffix(code, "_ERROR")
	if code == "" {
		code = "UNKNOWN"
	}
	return code
}
