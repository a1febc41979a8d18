// Package numbering allocates human readable document numbers such as INV#001.
//
// Numbers are derived from the highest sequence already issued and claimed by
// inserting the document. A unique violation on insert moves to the next
// candidate; once the attempt budget is spent a timestamp derived suffix is
// used so that creation never stalls.
package numbering

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

// DefaultMaxAttempts bounds sequential candidates before the timestamp fallback.
const DefaultMaxAttempts = 100

// Format renders sequence numbers.
type Format struct {
	Prefix    string
	Separator string
	MinDigits int
}

// Render formats seq with zero padding to MinDigits.
func (f Format) Render(seq int64) string {
	digits := f.MinDigits
	if digits <= 0 {
		digits = 1
	}
	return fmt.Sprintf("%s%s%0*d", f.Prefix, f.Separator, digits, seq)
}

// Pattern returns a POSIX regular expression capturing the numeric suffix.
func (f Format) Pattern() string {
	return "^" + regexp.QuoteMeta(f.Prefix+f.Separator) + "([0-9]+)$"
}

// Parse extracts the numeric suffix of a rendered number.
func (f Format) Parse(number string) (int64, bool) {
	m := regexp.MustCompile(f.Pattern()).FindStringSubmatch(number)
	if m == nil {
		return 0, false
	}
	seq, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// Scope selects whose numbers are considered when deriving the next sequence.
type Scope struct {
	TenantID int64
	Global   bool
}

// Store reads issued numbers.
type Store interface {
	// MaxSequence returns the highest suffix issued in scope, soft-deleted rows included.
	MaxSequence(ctx context.Context, scope Scope) (int64, error)
	// Exists reports whether number is already taken in scope.
	Exists(ctx context.Context, scope Scope, number string) (bool, error)
}

// ClaimFunc persists a document under number. It must return an error wrapping
// shared.ErrConflict when the number is already taken.
type ClaimFunc func(ctx context.Context, number string) error

// Option configures a Generator.
type Option func(*Generator)

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithClock injects the time source used for fallback suffixes.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// WithFallbackHook is called whenever the timestamp fallback is used.
func WithFallbackHook(fn func(prefix string)) Option {
	return func(g *Generator) {
		g.onFallback = fn
	}
}

// Generator allocates numbers for one document type.
type Generator struct {
	format      Format
	global      bool
	store       Store
	maxAttempts int
	now         func() time.Time
	onFallback  func(prefix string)
}

// NewGenerator builds a Generator. Global generators ignore the tenant when deriving sequences.
func NewGenerator(format Format, global bool, store Store, opts ...Option) *Generator {
	g := &Generator{
		format:      format,
		global:      global,
		store:       store,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Format returns the rendering format.
func (g *Generator) Format() Format {
	return g.format
}

// Scope returns the scope used for tenantID.
func (g *Generator) Scope(tenantID int64) Scope {
	if g.global {
		return Scope{Global: true}
	}
	return Scope{TenantID: tenantID}
}

// Allocate finds a free number and claims it, returning the number that was stored.
func (g *Generator) Allocate(ctx context.Context, tenantID int64, claim ClaimFunc) (string, error) {
	scope := g.Scope(tenantID)
	last, err := g.store.MaxSequence(ctx, scope)
	if err != nil {
		return "", fmt.Errorf("numbering: max sequence: %w", err)
	}
	next := last + 1
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		candidate := g.format.Render(next)
		next++
		taken, err := g.store.Exists(ctx, scope, candidate)
		if err != nil {
			return "", fmt.Errorf("numbering: exists: %w", err)
		}
		if taken {
			continue
		}
		err = claim(ctx, candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, shared.ErrConflict) {
			return "", err
		}
	}

	if g.onFallback != nil {
		g.onFallback(g.format.Prefix)
	}
	fallback := g.Fallback()
	if err := claim(ctx, fallback); err != nil {
		return "", err
	}
	return fallback, nil
}

// Fallback renders the prefix followed by the last six digits of the millisecond clock.
func (g *Generator) Fallback() string {
	ms := g.now().UnixMilli() % 1_000_000
	return fmt.Sprintf("%s%s%06d", g.format.Prefix, g.format.Separator, ms)
}
