package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	got := DedupeAndTrim([]string{"  foo ", "bar", "foo", "", "  ", "baz", "bar"})
	assert.Equal(t, []string{"foo", "bar", "baz"}, got)
}

func TestDedupeAndTrim_CaseSensitive(t *testing.T) {
	got := DedupeAndTrim([]string{"N123AB", "n123ab"})
	assert.Equal(t, []string{"N123AB", "n123ab"}, got)
}

func TestDedupeAndTrim_Empty(t *testing.T) {
	assert.Nil(t, DedupeAndTrim(nil))
	assert.Nil(t, DedupeAndTrim([]string{"", "   "}))
}
