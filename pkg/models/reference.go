package models

import "strings"

// Fixed reference sets mirrored by the seed migration. Order is the seed order.
var (
	CategoryNames = []string{"business", "entertainment", "general", "health", "science", "sports", "technology"}
	LanguageCodes = []string{"en", "fr", "ar"}
	CountryCodes  = []string{"us", "fr", "eg", "ca"}
)

var (
	categoryDisplay = map[string]string{
		"business":      "Business",
		"entertainment": "Entertainment",
		"general":       "General",
		"health":        "Health",
		"science":       "Science",
		"sports":        "Sports",
		"technology":    "Technology",
	}
	languageDisplay = map[string]string{
		"en": "English",
		"fr": "French",
		"ar": "Arabic",
	}
	countryDisplay = map[string]string{
		"us": "United States",
		"fr": "France",
		"eg": "Egypt",
		"ca": "Canada",
	}
)

func CategoryDisplayName(name string) string { return displayOr(categoryDisplay, name) }
func LanguageDisplayName(code string) string { return displayOr(languageDisplay, code) }
func CountryDisplayName(code string) string  { return displayOr(countryDisplay, code) }

// CountryCodesForName returns the codes whose display name equals name,
// ignoring case. Used so that "Canada" filters like "ca".
func CountryCodesForName(name string) []string { return codesFor(countryDisplay, name) }

func LanguageCodesForName(name string) []string { return codesFor(languageDisplay, name) }

func displayOr(m map[string]string, key string) string {
	if v, ok := m[key]; ok {
		return v
	}
	return key
}

func codesFor(m map[string]string, name string) []string {
	var out []string
	for code, display := range m {
		if strings.EqualFold(display, name) {
			out = append(out, code)
		}
	}
	return out
}
