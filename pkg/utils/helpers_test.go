package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-3, 0, 100))
	assert.Equal(t, 100.0, Clamp(120, 0, 100))
	assert.Equal(t, 42.5, Clamp(42.5, 0, 100))
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 33.33, RoundTo(100.0/3, 2))
	assert.Equal(t, 67.0, RoundTo(66.6, 0))
}

func TestContainsFold(t *testing.T) {
	assert.True(t, ContainsFold("Open Data BCN – Transport", "bcn"))
	assert.True(t, ContainsFold("Mobilitat", "MOBI"))
	assert.False(t, ContainsFold("Rodalies", "metro"))
}
