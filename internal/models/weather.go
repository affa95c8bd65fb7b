package models

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeWeather canonicalises a weather label so that "Rain ", "rain" and
// "RAIN" share one encoding column.
func NormalizeWeather(category string) string {
	// cases.Caser keeps state, so a fresh one is built per call
	return cases.Lower(language.Und).String(strings.TrimSpace(category))
}
