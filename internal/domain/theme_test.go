package domain

import (
	"errors"
	"testing"
)

func TestParseTheme(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Theme
		wantErr bool
	}{
		{name: "exact slug", input: "mars", want: ThemeMars},
		{name: "mixed case", input: "Mars", want: ThemeMars},
		{name: "padded", input: "  saturn  ", want: ThemeSaturn},
		{name: "galaxies alias", input: "galaxies", want: ThemeGalaxies},
		{name: "spaced alias", input: "galaxies and nebulae", want: ThemeGalaxies},
		{name: "all", input: "all", want: ThemeAll},
		{name: "empty defaults to all", input: "", want: ThemeAll},
		{name: "unknown", input: "pluto", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTheme(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTheme) {
					t.Fatalf("ParseTheme(%q) error = %v, want ErrInvalidTheme", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTheme(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseTheme(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestThemeMatches(t *testing.T) {
	if !ThemeMars.Matches(ThemeMars) {
		t.Error("theme should match itself")
	}
	if !ThemeMars.Matches(ThemeAll) {
		t.Error("every theme should match the all filter")
	}
	if ThemeMars.Matches(ThemeMoon) {
		t.Error("distinct themes should not match")
	}
}

func TestThemeValid(t *testing.T) {
	for _, theme := range Themes() {
		if !theme.Valid() {
			t.Errorf("Valid() = false for canonical theme %q", theme)
		}
	}
	if !ThemeAll.Valid() {
		t.Error("Valid() = false for the all filter")
	}
	if Theme("pluto").Valid() {
		t.Error("Valid() = true for unknown theme")
	}
}
