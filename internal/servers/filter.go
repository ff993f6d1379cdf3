package servers

import (
	"errors"
	"fmt"
	"regexp"

	"server-browser/internal/domain"
)

// ErrBadPattern marks a name/map pattern that cannot be compiled.
var ErrBadPattern = errors.New("invalid filter pattern")

// FilterCriteria is the plain-data filter configuration. Criteria are
// conjunctive and every absent field (empty string, nil pointer,
// TypeAll) is neutral: it matches every record.
type FilterCriteria struct {
	// Name and Map are case-insensitive substring patterns.
	Name string
	Map  string

	// Type narrows by server kind or favorite membership; TypeFavorites
	// consults the Favorites set by address.
	Type      domain.TypeFilter
	Favorites domain.FavoriteSet

	// Exact-equality criteria, neutral when nil.
	Mode     *domain.Mode
	Region   *domain.Region
	BuildID  *uint32
	BattlEye *bool

	// IncludePasswordProtected=false hides password-protected records;
	// true is neutral. The flag can only add protected servers back,
	// never hide open ones.
	IncludePasswordProtected bool
	// IncludeInvalid=false hides every record that is not Valid, which
	// covers Outdated as well.
	IncludeInvalid bool
	// IncludeModded=false hides records announcing mods.
	IncludeModded bool
}

// Filter is a compiled predicate over server records. Pattern errors
// surface at construction; Matches never fails.
type Filter struct {
	criteria FilterCriteria
	namePat  *regexp.Regexp
	mapPat   *regexp.Regexp
}

// NewFilter compiles the criteria's patterns. It returns ErrBadPattern
// (wrapped) when a pattern cannot be compiled.
func NewFilter(criteria FilterCriteria) (*Filter, error) {
	namePat, err := compilePattern(criteria.Name)
	if err != nil {
		return nil, err
	}
	mapPat, err := compilePattern(criteria.Map)
	if err != nil {
		return nil, err
	}
	return &Filter{criteria: criteria, namePat: namePat, mapPat: mapPat}, nil
}

// compilePattern turns a user-supplied substring into a case-insensitive
// regexp. The pattern text is escaped, so regexp metacharacters match
// literally; an empty pattern compiles to nil (matches everything).
func compilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(pattern))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrBadPattern, pattern, err)
	}
	return re, nil
}

// Matches reports whether the record satisfies every active criterion.
func (f *Filter) Matches(s *domain.Server) bool {
	if f.namePat != nil && !f.namePat.MatchString(s.Name) {
		return false
	}
	if f.mapPat != nil && !f.mapPat.MatchString(s.Map) {
		return false
	}
	switch f.criteria.Type {
	case domain.TypeOfficial:
		if s.Kind != domain.KindOfficial {
			return false
		}
	case domain.TypePrivate:
		if s.Kind != domain.KindPrivate {
			return false
		}
	case domain.TypeFavorites:
		if !f.criteria.Favorites.Contains(s.Addr()) {
			return false
		}
	}
	if f.criteria.Mode != nil && s.Mode() != *f.criteria.Mode {
		return false
	}
	if f.criteria.Region != nil && s.Region != *f.criteria.Region {
		return false
	}
	if f.criteria.BuildID != nil && s.BuildID != *f.criteria.BuildID {
		return false
	}
	if f.criteria.BattlEye != nil && s.BattlEye != *f.criteria.BattlEye {
		return false
	}
	if !f.criteria.IncludePasswordProtected && s.PasswordProtected {
		return false
	}
	if !f.criteria.IncludeInvalid && s.Validity != domain.ValidityValid {
		return false
	}
	if !f.criteria.IncludeModded && s.Modded() {
		return false
	}
	return true
}
