// Package zettelid allocates unique identifiers for Zettel notes under
// three interchangeable numbering schemes.
package zettelid

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Scheme selects the identifier numbering scheme.
type Scheme int

const (
	// SchemeTimestamp issues the current time in milliseconds since epoch.
	SchemeTimestamp Scheme = iota
	// SchemeDateSeq issues YYYYMMDD-SEQ with a per-date sequence counter.
	SchemeDateSeq
	// SchemeLuhmann issues alternating digit/letter positional numbers.
	SchemeLuhmann
)

// ParseScheme maps a config string to a Scheme.
func ParseScheme(s string) (Scheme, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "timestamp":
		return SchemeTimestamp, nil
	case "date-seq", "dateseq", "":
		return SchemeDateSeq, nil
	case "luhmann":
		return SchemeLuhmann, nil
	default:
		return 0, fmt.Errorf("zettelid: unknown scheme %q", s)
	}
}

func (s Scheme) String() string {
	switch s {
	case SchemeTimestamp:
		return "timestamp"
	case SchemeDateSeq:
		return "date-seq"
	case SchemeLuhmann:
		return "luhmann"
	default:
		return "unknown"
	}
}

var dateSeqRe = regexp.MustCompile(`^(\d{8})-(\d{3,})$`)

// Allocator issues identifiers under one scheme. It is safe for concurrent
// use; the per-date high-water marks and the Luhmann counter are guarded by
// a mutex.
type Allocator struct {
	scheme Scheme
	now    func() time.Time

	mu       sync.Mutex
	dateHigh map[string]int // date (YYYYMMDD) → highest sequence issued
	counter  int            // Luhmann scheme counter
}

// New creates an unseeded allocator for the given scheme.
func New(scheme Scheme) *Allocator {
	return &Allocator{
		scheme:   scheme,
		now:      time.Now,
		dateHigh: make(map[string]int),
	}
}

// Seed initialises the allocator state from the identifiers of existing
// Zettel notes, so a restarted process never re-issues one. zettelCount is
// the current number of Zettel-kind notes and seeds the Luhmann counter.
// Seed may be called again to recover from a detected collision.
func (a *Allocator) Seed(ids []string, zettelCount int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.dateHigh = make(map[string]int)
	for _, id := range ids {
		m := dateSeqRe.FindStringSubmatch(id)
		if m == nil {
			continue
		}
		seq, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		if seq > a.dateHigh[m[1]] {
			a.dateHigh[m[1]] = seq
		}
	}
	a.counter = zettelCount
}

// Next returns a fresh identifier and advances the allocator state.
func (a *Allocator) Next() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.scheme {
	case SchemeTimestamp:
		// Collision probability is accepted as negligible.
		return strconv.FormatInt(a.now().UnixMilli(), 10)
	case SchemeLuhmann:
		a.counter++
		return Luhmann(a.counter)
	default:
		date := a.now().Format("20060102")
		a.dateHigh[date]++
		return fmt.Sprintf("%s-%03d", date, a.dateHigh[date])
	}
}

// Luhmann encodes a positive counter as an alternating digit/letter
// positional number: the level-0 symbol is a digit 1-9, level 1 a letter
// a-z, alternating upward, each level carrying into the next. Symbols are
// concatenated highest level first. Counters below 1 encode as "1".
func Luhmann(n int) string {
	if n <= 0 {
		return "1"
	}

	var symbols []byte
	remaining := n
	for level := 0; remaining > 0; level++ {
		if level%2 == 0 {
			symbols = append(symbols, byte('1'+(remaining-1)%9))
			remaining = (remaining - 1) / 9
		} else {
			symbols = append(symbols, byte('a'+(remaining-1)%26))
			remaining = (remaining - 1) / 26
		}
	}

	// Reverse emission order.
	for i, j := 0, len(symbols)-1; i < j; i, j = i+1, j-1 {
		symbols[i], symbols[j] = symbols[j], symbols[i]
	}
	return string(symbols)
}

// IDFromPath extracts the identifier from a Zettel note path: the base
// file name without the .md extension.
func IDFromPath(p string) string {
	return strings.TrimSuffix(path.Base(p), ".md")
}
