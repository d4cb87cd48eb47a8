// Package groupcode issues and checks the opaque codes that identify groups.
//
// A code is Length characters drawn from upper-case ASCII letters and digits
// (36^8 ≈ 2.8e12 codes). Possession of a code is the only credential a
// member needs to join its group.
package groupcode

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Length is the number of characters in a group code.
const Length = 8

// Alphabet lists the characters a code may contain.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultAttempts bounds how many fresh codes Issue tries before giving up.
const DefaultAttempts = 16

var (
	// ErrInvalid is returned for codes that are not Length alphanumerics.
	ErrInvalid = errors.New("invalid group code")

	// ErrExhausted is returned when every generated code was already issued.
	ErrExhausted = errors.New("could not issue an unused group code")
)

// maxUnbiased is the largest multiple of len(Alphabet) that fits in a byte.
// Bytes at or above it are rejected so every character is equally likely.
const maxUnbiased = 256 - 256%len(Alphabet)

// Generate returns a random code read from crypto/rand.
func Generate() (string, error) {
	return GenerateFrom(rand.Reader)
}

// GenerateFrom returns a code drawn from r. Tests pass a deterministic reader.
func GenerateFrom(r io.Reader) (string, error) {
	out := make([]byte, 0, Length)
	buf := make([]byte, Length*2)
	for len(out) < Length {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("generate group code: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxUnbiased {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == Length {
				break
			}
		}
	}
	return string(out), nil
}

// Normalize trims and upper-cases a code as typed by a member.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Valid reports whether code (already normalized) is well formed.
func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(Alphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}

// Parse normalizes code and checks it is well formed.
func Parse(code string) (string, error) {
	normalized := Normalize(code)
	if !Valid(normalized) {
		return "", fmt.Errorf("%w: %q", ErrInvalid, code)
	}
	return normalized, nil
}

// Reserver records issued codes. ReserveGroupCode returns false if the code
// was issued before.
type Reserver interface {
	ReserveGroupCode(ctx context.Context, code string) (bool, error)
}

// Issue generates codes from r until the reserver accepts one. A code is
// never returned twice, even after every item of its group is gone.
func Issue(ctx context.Context, reserver Reserver, r io.Reader, attempts int) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	for i := 0; i < attempts; i++ {
		code, err := GenerateFrom(r)
		if err != nil {
			return "", err
		}
		ok, err := reserver.ReserveGroupCode(ctx, code)
		if err != nil {
			return "", fmt.Errorf("issue group code: %w", err)
		}
		if ok {
			return code, nil
		}
	}
	return "", ErrExhausted
}
