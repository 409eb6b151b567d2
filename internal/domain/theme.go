package domain

import (
	"fmt"
	"strings"
)

// Theme is a tag partitioning the image catalog. Each catalog record carries
// exactly one concrete theme; ThemeAll is a filter value only and is never
// stored on a record.
type Theme string

const (
	ThemeEarth    Theme = "earth"
	ThemeMoon     Theme = "moon"
	ThemeMars     Theme = "mars"
	ThemeSun      Theme = "sun"
	ThemeSaturn   Theme = "saturn"
	ThemeJupiter  Theme = "jupiter"
	ThemeGalaxies Theme = "galaxies-and-nebulae"

	// ThemeAll matches every record.
	ThemeAll Theme = "all"
)

// Themes returns the concrete themes in canonical order, ThemeAll excluded.
func Themes() []Theme {
	return []Theme{
		ThemeEarth,
		ThemeMoon,
		ThemeMars,
		ThemeSun,
		ThemeSaturn,
		ThemeJupiter,
		ThemeGalaxies,
	}
}

// ParseTheme normalizes s into a known theme or ThemeAll.
func ParseTheme(s string) (Theme, error) {
	t := Theme(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case "":
		return ThemeAll, nil
	case ThemeAll:
		return ThemeAll, nil
	case "galaxies", "nebulae", "galaxies and nebulae":
		return ThemeGalaxies, nil
	}
	for _, known := range Themes() {
		if t == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTheme, s)
}

// Valid reports whether t is a concrete theme or ThemeAll.
func (t Theme) Valid() bool {
	if t == ThemeAll {
		return true
	}
	for _, known := range Themes() {
		if t == known {
			return true
		}
	}
	return false
}

// Matches reports whether a record theme t satisfies the filter.
func (t Theme) Matches(filter Theme) bool {
	return filter == ThemeAll || t == filter
}

func (t Theme) String() string {
	return string(t)
}
