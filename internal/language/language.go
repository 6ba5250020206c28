package language

import (
	"fmt"
	"strings"

	xlanguage "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// AutoDetect is the display name for an empty language setting.
const AutoDetect = "auto-detect"

// Word forms users tend to write in config files.
var byWord = map[string]string{
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
	"russian":    "ru",
	"arabic":     "ar",
	"hindi":      "hi",
	"dutch":      "nl",
	"polish":     "pl",
	"swedish":    "sv",
	"danish":     "da",
	"norwegian":  "no",
	"finnish":    "fi",
}

// Normalize converts value to an ISO 639-1 code. Unrecognized input is an
// error; an empty value stays empty.
func Normalize(value string) (string, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "", nil
	}
	if code, ok := byWord[value]; ok {
		return code, nil
	}
	tag, err := xlanguage.Parse(strings.ReplaceAll(value, "_", "-"))
	if err != nil {
		return "", fmt.Errorf("unrecognized language %q", value)
	}
	base, confidence := tag.Base()
	if confidence == xlanguage.No || base.String() == "und" {
		return "", fmt.Errorf("unrecognized language %q", value)
	}
	code := base.String()
	if len(code) != 2 {
		return "", fmt.Errorf("language %q has no ISO 639-1 code", value)
	}
	return code, nil
}

// DisplayName returns the English name for a language setting.
func DisplayName(value string) string {
	code, err := Normalize(value)
	if err != nil {
		return strings.ToUpper(strings.TrimSpace(value))
	}
	if code == "" {
		return AutoDetect
	}
	name := display.English.Languages().Name(xlanguage.Make(code))
	if name == "" {
		return strings.ToUpper(code)
	}
	return name
}
