package utils

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"github.com/ztrue/tracerr"
	"golang.org/x/exp/constraints"
	"golang.org/x/text/unicode/norm"
	"sort"
	"strings"
)

var (
	// ErrorNotUnique is returned when items in a slice are not unique.
	ErrorNotUnique = NewChainTrailError("NOT_UNIQUE", "not unique")
)

func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	// Note that err == nil only if we read len(b) bytes.
	if err != nil {
		return nil, tracerr.Wrap(err)
	}

	return b, nil
}

// GenerateRandomString returns a random hex string of the requested length.
func GenerateRandomString(length int) (string, error) {
	b, err := GenerateRandomBytes((length + 1) / 2)
	if err != nil {
		return "", tracerr.Wrap(err)
	}
	return hex.EncodeToString(b)[:length], nil
}

// Set implements three methods: Add, Remove & Has.
// It needs to be defined with a comparable generic type such as int or string.
// The len operator can be used on Set.
// Internally a Set represents the presence of an element with a map of struct{}{} for efficiency, as explained here:
// https://itnext.io/set-in-go-map-bool-and-map-struct-performance-comparison-5315b4b107b.
type Set[T comparable] map[T]struct{}

// Add adds the given element to the Set.
func (s Set[T]) Add(element T) {
	s[element] = struct{}{}
}

// Remove removes given element from Set. If element is not in Set, Remove is a no-op.
func (s Set[T]) Remove(element T) {
	delete(s, element)
}

// Has checks if element is in Set, and returns true or false.
func (s Set[T]) Has(element T) bool {
	_, ok := s[element]
	return ok
}

// Slice returns the elements of the Set as a new slice, in unspecified order.
func (s Set[T]) Slice() []T {
	elements := make([]T, 0, len(s))
	for element := range s {
		elements = append(elements, element)
	}
	return elements
}

// SortedSlice returns the elements of the Set as a new sorted slice.
func SortedSlice[T constraints.Ordered](s Set[T]) []T {
	elements := s.Slice()
	sort.Slice(elements, func(i, j int) bool { return elements[i] < elements[j] })
	return elements
}

// SortedKeys returns the keys of the given map as a new sorted slice.
func SortedKeys[K constraints.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func SliceMap[T interface{}, U interface{}](s []T, f func(T) U) []U {
	output := make([]U, len(s))
	for i, e := range s {
		output[i] = f(e)
	}
	return output
}

func SliceIncludes[T comparable](s []T, u T) bool {
	for _, e := range s {
		if e == u {
			return true
		}
	}
	return false
}

func CheckSliceUnique[T comparable](slice []T) error {
	for xi, x := range slice {
		for _, y := range slice[xi+1:] {
			if x == y {
				return ErrorNotUnique.AddDetails(fmt.Sprint(x))
			}
		}
	}
	return nil
}

func NormalizeString(s string) []byte {
	return norm.NFKC.Bytes([]byte(s))
}

func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// Base64DecodeString decodes a Base64-encoded string, handling both
// padded and non-padded input, as well as new-lines.
func Base64DecodeString(s string) ([]byte, error) {
	if strings.Contains(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	} else {
		return base64.RawStdEncoding.DecodeString(s)
	}
}

// Ternary is a helper function to inline ternary operations
func Ternary[T any](condition bool, valTrue T, valFalse T) T {
	if condition {
		return valTrue
	}
	return valFalse
}
