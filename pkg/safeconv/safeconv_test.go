package safeconv_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/testfang/pkg/safeconv"
)

func TestMustUintToInt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, safeconv.MustUintToInt(0))
	assert.Equal(t, 42, safeconv.MustUintToInt(42))
	assert.Equal(t, safeconv.MaxInt, safeconv.MustUintToInt(uint(safeconv.MaxInt)))
}

func TestMustUintToIntOverflow(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		safeconv.MustUintToInt(uint(safeconv.MaxInt) + 1)
	})
}
