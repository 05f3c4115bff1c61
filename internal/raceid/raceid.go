// Package raceid generates sortable identifiers for races: a UUIDv7 rendered
// as 26 characters of Crockford base32, so IDs sort by creation time.
package raceid

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// Base32 alphabet used by TypeID (Crockford's base32)
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// Length is the number of characters in a race ID.
const Length = 26

// Generator produces race IDs from an optional entropy reader.
type Generator struct {
	entropy io.Reader
}

// NewGenerator creates a generator. A nil reader uses crypto/rand.
func NewGenerator(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new race ID using crypto/rand entropy.
func Generate() (string, error) {
	return NewGenerator(nil).Generate()
}

// Generate creates a new race ID from the generator's entropy.
func (g *Generator) Generate() (string, error) {
	var (
		id  uuid.UUID
		err error
	)
	if g.entropy != nil {
		id, err = uuid.NewV7FromReader(g.entropy)
	} else {
		id, err = uuid.NewV7()
	}
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return encodeBase32(id), nil
}

// encodeBase32 encodes a 128-bit UUID as a 26-character base32 string. The
// value is treated as 130 bits with two leading zero bits, so the first
// character is always 0-7.
func encodeBase32(data uuid.UUID) string {
	result := make([]byte, Length)

	var acc uint32
	bits := 2 // two implicit leading zero bits
	pos := 0
	for _, b := range data {
		acc = acc<<8 | uint32(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			result[pos] = alphabet[(acc>>uint(bits))&0x1f]
			pos++
		}
	}

	return string(result)
}

// Validate checks if a race ID is valid (26 characters, valid base32)
func Validate(id string) error {
	if len(id) != Length {
		return fmt.Errorf("race ID must be exactly %d characters, got %d", Length, len(id))
	}

	if id[0] > '7' {
		return fmt.Errorf("race ID first character must be 0-7, got %c", id[0])
	}

	for i, char := range id {
		if !strings.ContainsRune(alphabet, char) {
			return fmt.Errorf("invalid character %c at position %d", char, i)
		}
	}

	return nil
}
