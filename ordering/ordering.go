// Package ordering derives fractional order keys for sibling collections.
//
// A key is a variable-length base-62 integer part followed by an optional
// fraction. The first byte of the integer part encodes its length, so plain
// byte-wise string comparison orders keys correctly. Keys can always be
// subdivided, which lets a single item move without rewriting its siblings.
package ordering

import (
	"errors"
	"fmt"
	"strings"
)

const digits = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// MaxKeyLength is the width of the persisted position column. Subdividing
// beyond it reports ErrNoRoom.
const MaxKeyLength = 50

// smallestInteger is reserved so that a key can always be placed before any
// valid key.
const smallestInteger = "A00000000000000000000000000"

var (
	// ErrInvalidKey reports a malformed order key.
	ErrInvalidKey = errors.New("invalid order key")
	// ErrNoRoom reports that no key fits strictly between two keys, either
	// because they are not ordered or because subdivision is exhausted.
	ErrNoRoom = errors.New("no room between order keys")
	// ErrInvalidIndex reports a negative target index.
	ErrInvalidIndex = errors.New("invalid target index")
)

// First returns the key used for the first item of an empty collection.
func First() string {
	return "a0"
}

// After returns a key strictly greater than k.
func After(k string) (string, error) {
	if err := check(k); err != nil {
		return "", err
	}
	return keyBetween(k, "")
}

// Before returns a key strictly less than k.
func Before(k string) (string, error) {
	if err := check(k); err != nil {
		return "", err
	}
	return keyBetween("", k)
}

// Between returns a key strictly between lo and hi.
func Between(lo, hi string) (string, error) {
	if err := check(lo); err != nil {
		return "", err
	}
	if err := check(hi); err != nil {
		return "", err
	}
	if lo >= hi {
		return "", fmt.Errorf("%w: %q is not before %q", ErrNoRoom, lo, hi)
	}
	k, err := keyBetween(lo, hi)
	if err != nil {
		return "", err
	}
	if len(k) > MaxKeyLength {
		return "", fmt.Errorf("%w: %q and %q are adjacent", ErrNoRoom, lo, hi)
	}
	return k, nil
}

// ForTargetIndex returns the key an item needs to land at target among the
// sorted keys of its siblings. keys must not contain the moving item.
func ForTargetIndex(keys []string, target int) (string, error) {
	if target < 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidIndex, target)
	}
	switch n := len(keys); {
	case n == 0:
		return First(), nil
	case target == 0:
		return Before(keys[0])
	case target >= n:
		return After(keys[n-1])
	default:
		return Between(keys[target-1], keys[target])
	}
}

// Validate reports whether k is a well-formed order key.
func Validate(k string) bool {
	return check(k) == nil
}

func check(k string) error {
	if k == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if k == smallestInteger {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidKey, k)
	}
	for i := 0; i < len(k); i++ {
		if strings.IndexByte(digits, k[i]) < 0 {
			return fmt.Errorf("%w: %q has unexpected character %q", ErrInvalidKey, k, k[i])
		}
	}
	i, err := integerPart(k)
	if err != nil {
		return err
	}
	if strings.HasSuffix(k[len(i):], "0") {
		return fmt.Errorf("%w: %q has a trailing zero", ErrInvalidKey, k)
	}
	return nil
}

func integerLength(head byte) (int, bool) {
	switch {
	case head >= 'a' && head <= 'z':
		return int(head-'a') + 2, true
	case head >= 'A' && head <= 'Z':
		return int('Z'-head) + 2, true
	}
	return 0, false
}

func integerPart(k string) (string, error) {
	n, ok := integerLength(k[0])
	if !ok {
		return "", fmt.Errorf("%w: %q has invalid head", ErrInvalidKey, k)
	}
	if n > len(k) {
		return "", fmt.Errorf("%w: %q is truncated", ErrInvalidKey, k)
	}
	return k[:n], nil
}

// keyBetween expects validated keys; an empty bound is open.
func keyBetween(a, b string) (string, error) {
	if a == "" && b == "" {
		return First(), nil
	}
	if a == "" {
		ib, err := integerPart(b)
		if err != nil {
			return "", err
		}
		if ib == smallestInteger {
			m, err := midpoint("", b[len(ib):])
			return ib + m, err
		}
		if ib < b {
			return ib, nil
		}
		res, ok := decrementInteger(ib)
		if !ok {
			return "", fmt.Errorf("%w: nothing sorts before %q", ErrNoRoom, b)
		}
		return res, nil
	}

	ia, err := integerPart(a)
	if err != nil {
		return "", err
	}
	fa := a[len(ia):]
	if b == "" {
		if i, ok := incrementInteger(ia); ok {
			return i, nil
		}
		m, err := midpoint(fa, "")
		return ia + m, err
	}

	ib, err := integerPart(b)
	if err != nil {
		return "", err
	}
	if ia == ib {
		m, err := midpoint(fa, b[len(ib):])
		return ia + m, err
	}
	i, ok := incrementInteger(ia)
	if !ok {
		return "", fmt.Errorf("%w: integer space exhausted after %q", ErrNoRoom, a)
	}
	if i < b {
		return i, nil
	}
	m, err := midpoint(fa, "")
	return ia + m, err
}

// midpoint returns a fraction strictly between a and b. An empty b is open.
func midpoint(a, b string) (string, error) {
	if b != "" && a >= b {
		return "", fmt.Errorf("%w: fraction %q is not before %q", ErrNoRoom, a, b)
	}
	if strings.HasSuffix(a, "0") || strings.HasSuffix(b, "0") {
		return "", fmt.Errorf("%w: fraction has a trailing zero", ErrInvalidKey)
	}
	if b != "" {
		n := 0
		for n < len(b) && digitAt(a, n) == b[n] {
			n++
		}
		if n > 0 {
			rest, err := midpoint(tail(a, n), b[n:])
			return b[:n] + rest, err
		}
	}

	lo := 0
	if a != "" {
		lo = strings.IndexByte(digits, a[0])
	}
	hi := len(digits)
	if b != "" {
		hi = strings.IndexByte(digits, b[0])
	}
	if hi-lo > 1 {
		return string(digits[(lo+hi+1)/2]), nil
	}
	if len(b) > 1 {
		return b[:1], nil
	}
	rest, err := midpoint(tail(a, 1), "")
	return string(digits[lo]) + rest, err
}

func incrementInteger(x string) (string, bool) {
	head := x[0]
	digs := []byte(x[1:])
	carry := true
	for i := len(digs) - 1; carry && i >= 0; i-- {
		d := strings.IndexByte(digits, digs[i]) + 1
		if d == len(digits) {
			digs[i] = digits[0]
		} else {
			digs[i] = digits[d]
			carry = false
		}
	}
	if !carry {
		return string(head) + string(digs), true
	}
	switch head {
	case 'Z':
		return "a" + string(digits[0]), true
	case 'z':
		return "", false
	}
	h := head + 1
	if h > 'a' {
		digs = append(digs, digits[0])
	} else {
		digs = digs[:len(digs)-1]
	}
	return string(h) + string(digs), true
}

func decrementInteger(x string) (string, bool) {
	head := x[0]
	digs := []byte(x[1:])
	last := digits[len(digits)-1]
	borrow := true
	for i := len(digs) - 1; borrow && i >= 0; i-- {
		d := strings.IndexByte(digits, digs[i]) - 1
		if d == -1 {
			digs[i] = last
		} else {
			digs[i] = digits[d]
			borrow = false
		}
	}
	if !borrow {
		return string(head) + string(digs), true
	}
	switch head {
	case 'a':
		return "Z" + string(last), true
	case 'A':
		return "", false
	}
	h := head - 1
	if h < 'Z' {
		digs = append(digs, last)
	} else {
		digs = digs[:len(digs)-1]
	}
	return string(h) + string(digs), true
}

func digitAt(s string, i int) byte {
	if i < len(s) {
		return s[i]
	}
	return digits[0]
}

func tail(s string, n int) string {
	if n >= len(s) {
		return ""
	}
	return s[n:]
}
