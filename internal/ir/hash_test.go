package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestDeterminism(t *testing.T) {
	obj := Object{
		"positioning": String("Bikes for commuters"),
		"chosen":      Int(2),
	}

	fp1, err := Digest(DomainResult, obj)
	require.NoError(t, err)
	fp2, err := Digest(DomainResult, Object{"chosen": Int(2), "positioning": String("Bikes for commuters")})
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2, "key order must not affect the fingerprint")
	assert.Len(t, string(fp1), 64, "SHA-256 hex is 64 characters")
}

func TestDigestDomainSeparation(t *testing.T) {
	obj := Object{"a": Int(1)}

	assert.NotEqual(t,
		MustDigest(DomainResult, obj),
		MustDigest(DomainSnapshot, obj),
		"same content under different domains must differ")
}

func TestDigestChangesWithContent(t *testing.T) {
	a := MustDigest(DomainResult, Object{"chosen": Int(1)})
	b := MustDigest(DomainResult, Object{"chosen": Int(2)})
	assert.NotEqual(t, a, b)
}

func TestFingerprintShort(t *testing.T) {
	fp := MustDigest(DomainResult, Object{})
	assert.Len(t, fp.Short(), 12)
	assert.Equal(t, "abc", Fingerprint("abc").Short())
}
