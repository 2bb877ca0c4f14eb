package testutil

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var escapeSeq = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI fails the test if s carries terminal styling.
func AssertNoANSI(t testing.TB, s string) {
	t.Helper()
	assert.NotRegexp(t, escapeSeq, s, "output contains ANSI escape codes")
}
