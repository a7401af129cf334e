package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidBIN(t *testing.T) {
	valid := []string{"411111", "4111111", "41111111", "00000000"}
	for _, bin := range valid {
		assert.True(t, ValidBIN(bin), bin)
	}

	invalid := []string{"", "41111", "411111111", "41111a", "4111-11", " 411111"}
	for _, bin := range invalid {
		assert.False(t, ValidBIN(bin), bin)
	}
}

func TestPayloadFirst(t *testing.T) {
	p := Payload{
		"bin":     "411111",
		"empty":   "",
		"blank":   "   ",
		"nothing": nil,
		"count":   float64(16),
		"ratio":   1.5,
	}

	assert.Equal(t, "411111", p.First("missing", "bin"))
	assert.Equal(t, "411111", p.First("empty", "blank", "nothing", "bin"))
	assert.Equal(t, "", p.First("missing"))

	// JSON numbers arrive as float64; integral values drop the fraction.
	assert.Equal(t, "16", p.First("count"))
	assert.Equal(t, "1.5", p.First("ratio"))

	var nilPayload Payload
	assert.Equal(t, "", nilPayload.First("bin"))
}

func TestPayloadSub(t *testing.T) {
	p := Payload{
		"bank":   map[string]any{"name": "Chase"},
		"scalar": "not an object",
	}

	sub := p.Sub("issuer", "bank")
	assert.Equal(t, "Chase", sub.First("name"))
	assert.Nil(t, p.Sub("scalar"))
	assert.Nil(t, p.Sub("missing"))
}

func TestPayloadBool(t *testing.T) {
	p := Payload{
		"luhn":    true,
		"textual": "Yes",
		"off":     "0",
		"junk":    "maybe",
	}

	v, ok := p.Bool("luhn")
	assert.True(t, ok)
	assert.True(t, v)

	v, ok = p.Bool("textual")
	assert.True(t, ok)
	assert.True(t, v)

	v, ok = p.Bool("off")
	assert.True(t, ok)
	assert.False(t, v)

	_, ok = p.Bool("junk")
	assert.False(t, ok)
	_, ok = p.Bool("missing")
	assert.False(t, ok)
}

func TestPayloadInt(t *testing.T) {
	p := Payload{
		"float":  float64(16),
		"string": " 19 ",
		"bad":    "sixteen",
	}

	assert.Equal(t, 16, p.Int("float"))
	assert.Equal(t, 19, p.Int("string"))
	assert.Equal(t, 0, p.Int("bad"))
	assert.Equal(t, 0, p.Int("missing"))
}
