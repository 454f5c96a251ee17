package goid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/power-warden/powa/pkg/goid"
)

func TestGetGIDDiffersAcrossGoroutines(t *testing.T) {
	main := goid.GetGID()
	assert.NotZero(t, main)

	ch := make(chan uint64)
	go func() { ch <- goid.GetGID() }()
	other := <-ch
	assert.NotZero(t, other)
	assert.NotEqual(t, main, other)
}
