package alignment

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// RoleFromFilename derives a participant role from an intro file name:
// "intro_product_owner.mp3" becomes "Product Owner".
func RoleFromFilename(name string) string {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if idx := strings.Index(stem, "_"); idx >= 0 {
		stem = stem[idx+1:]
	}
	fields := strings.Fields(strings.ReplaceAll(stem, "_", " "))
	if len(fields) == 0 {
		return ""
	}
	return titleCaser.String(strings.Join(fields, " "))
}
