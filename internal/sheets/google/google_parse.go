package google

import (
	"fmt"
	"strings"
)

// Sheet titles are limited to 100 characters and may not contain these.
const maxSheetTitle = 100

var sheetTitleReplacer = strings.NewReplacer("[", "(", "]", ")", ":", "-", "*", "-", "?", "", "/", "-", `\`, "-")

// exportSheetName builds a valid sheet title for an owner's export.
func exportSheetName(prefix, owner string) string {
	name := strings.TrimSpace(sheetTitleReplacer.Replace(fmt.Sprintf("%s %s", prefix, owner)))
	if len(name) > maxSheetTitle {
		name = name[:maxSheetTitle]
	}
	return name
}

// quoteSheet quotes a sheet title for A1 notation.
func quoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func rowRef(sheet string, row int) string {
	return fmt.Sprintf("%s!A%d:H%d", quoteSheet(sheet), row, row)
}

// toValues converts a row for USER_ENTERED input. Text starting with a
// formula trigger is prefixed with an apostrophe so it stays literal.
func toValues(row []string) []any {
	out := make([]any, len(row))
	for i, v := range row {
		if v != "" && strings.ContainsRune("=+-@", rune(v[0])) {
			v = "'" + v
		}
		out[i] = v
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}
