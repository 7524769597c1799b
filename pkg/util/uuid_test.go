package util

import (
	"math/big"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashUUID(t *testing.T) {
	type cfg struct {
		Levels int
		QStep  float64
	}
	a, err := HashUUID(cfg{Levels: 5, QStep: 0.01})
	require.NoError(t, err)
	b, err := HashUUID(cfg{Levels: 5, QStep: 0.01})
	require.NoError(t, err)
	c, err := HashUUID(cfg{Levels: 4, QStep: 0.01})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	id, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), id.Version())

	_, err = HashUUID(make(chan int))
	assert.Error(t, err)
}

func TestOIDUUID(t *testing.T) {
	a := OIDUUID("github.com/jpfielding/htj2k.go/lossless")
	assert.Equal(t, a, OIDUUID("github.com/jpfielding/htj2k.go/lossless"))
	assert.NotEqual(t, a, OIDUUID("github.com/jpfielding/htj2k.go/lossy"))
	assert.LessOrEqual(t, len(a), 64)

	digits, ok := strings.CutPrefix(a, "2.25.")
	require.True(t, ok)
	assert.NotEqual(t, "0", digits[:1])
	v, ok := new(big.Int).SetString(digits, 10)
	require.True(t, ok)
	id, err := uuid.FromBytes(v.FillBytes(make([]byte, 16)))
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), id.Version())
}
