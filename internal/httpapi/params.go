package httpapi

import (
	"fmt"
	"net/url"
	"strconv"

	"server-browser/internal/config"
	"server-browser/internal/domain"
	"server-browser/internal/servers"
)

// viewParams resolves the filter and sort for a servers request.
// Absent parameters fall back to the configured browse defaults, so a
// bare GET renders the view the daemon was configured to show.
func viewParams(q url.Values, defaults config.BrowseDefaults) (servers.FilterCriteria, servers.SortCriteria, error) {
	criteria := defaults.FilterCriteria()
	sortBy := defaults.SortBy

	criteria.Name = q.Get("name")
	criteria.Map = q.Get("map")

	var err error
	if v := q.Get("type"); v != "" {
		if criteria.Type, err = domain.ParseTypeFilter(v); err != nil {
			return criteria, sortBy, fmt.Errorf("parameter type: %w", err)
		}
	}
	if v := q.Get("mode"); v != "" {
		mode, err := domain.ParseMode(v)
		if err != nil {
			return criteria, sortBy, fmt.Errorf("parameter mode: %w", err)
		}
		criteria.Mode = &mode
	}
	if v := q.Get("region"); v != "" {
		region, err := domain.ParseRegion(v)
		if err != nil {
			return criteria, sortBy, fmt.Errorf("parameter region: %w", err)
		}
		criteria.Region = &region
	}
	if v := q.Get("build"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return criteria, sortBy, fmt.Errorf("parameter build: %w", err)
		}
		build := uint32(n)
		criteria.BuildID = &build
	}
	if v := q.Get("battleye"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return criteria, sortBy, fmt.Errorf("parameter battleye: %w", err)
		}
		criteria.BattlEye = &on
	}

	if err := boolParam(q, "include_password", &criteria.IncludePasswordProtected); err != nil {
		return criteria, sortBy, err
	}
	if err := boolParam(q, "include_invalid", &criteria.IncludeInvalid); err != nil {
		return criteria, sortBy, err
	}
	if err := boolParam(q, "include_modded", &criteria.IncludeModded); err != nil {
		return criteria, sortBy, err
	}

	if v := q.Get("sort"); v != "" {
		if sortBy, err = servers.ParseSortCriteria(v); err != nil {
			return criteria, sortBy, fmt.Errorf("parameter sort: %w", err)
		}
	}

	return criteria, sortBy, nil
}

func boolParam(q url.Values, key string, dst *bool) error {
	v := q.Get(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("parameter %s: %w", key, err)
	}
	*dst = b
	return nil
}
