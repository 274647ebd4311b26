package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNewCharge(t *testing.T) {
	q := decimal.RequireFromString("10")

	c, ok := NewCharge(ModeEnergyQuantity, q)
	assert.True(t, ok)
	assert.Equal(t, EnergyQuantity{Units: q}, c)

	c, ok = NewCharge(ModeFixedAmount, q)
	assert.True(t, ok)
	assert.Equal(t, FixedAmount{Amount: q}, c)

	c, ok = NewCharge("per_minute", q)
	assert.False(t, ok)
	assert.Nil(t, c)
}
