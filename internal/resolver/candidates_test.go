package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandidates_AddsPrefixVariants(t *testing.T) {
	got := Candidates("ab1234", "N")
	assert.Equal(t, []string{"ab1234", "AB1234", "Nab1234", "nab1234", "NAB1234"}, got)
}

func TestCandidates_StripsExistingPrefix(t *testing.T) {
	got := Candidates("N123AB", "N")
	assert.Equal(t, []string{"N123AB", "n123ab", "123AB", "123ab"}, got)
}

func TestCandidates_DeduplicatesPreservingOrder(t *testing.T) {
	got := Candidates("123AB", "")
	assert.Equal(t, []string{"123AB", "123ab"}, got)
}

func TestCandidates_Empty(t *testing.T) {
	assert.Nil(t, Candidates("", "N"))
	assert.Nil(t, Candidates("   ", "N"))
}

func TestDerivedCode(t *testing.T) {
	assert.Equal(t, "DDEEFF", DerivedCode("aa:bb:cc:dd:ee:ff"))
	assert.Equal(t, "A1B2C3", DerivedCode("A1B2C3"))
	assert.Equal(t, "1B2C3D", DerivedCode("serial-a1b2c3d"))
	assert.Equal(t, "", DerivedCode("zz:yy"))
	assert.Equal(t, "", DerivedCode(""))
}
