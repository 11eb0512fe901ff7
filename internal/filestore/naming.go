package filestore

import (
	"path/filepath"
	"strconv"
	"strings"
)

// maxNameAttempts bounds the collision loop; running out is a storage failure.
const maxNameAttempts = 10000

var unsafeChars = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
	"\"", "_", "<", "_", ">", "_", "|", "_", " ", "_",
)

// SanitizeName turns a user-supplied filename into a token that is safe on the
// filesystems we deploy to. Path components are stripped first so a crafted
// name can never escape its department directory. An empty result falls back
// to "file" (keeping the extension when one survives).
func SanitizeName(name string) string {
	// Take the last path segment for either separator style.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeChars.Replace(name)
	// Control characters become underscores too.
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return '_'
		}
		return r
	}, name)
	name = strings.Trim(name, "._")
	if name == "" {
		return "file"
	}
	return name
}

// NextFreeName picks the first name not present in existing, starting from
// desired and appending a numeric disambiguator before the extension
// (name_1.ext, name_2.ext, ...). Pure so it can be tested without a
// filesystem. ok is false when the attempt budget is exhausted.
func NextFreeName(existing map[string]bool, desired string) (name string, ok bool) {
	if !existing[desired] {
		return desired, true
	}
	ext := filepath.Ext(desired)
	stem := strings.TrimSuffix(desired, ext)
	for i := 1; i <= maxNameAttempts; i++ {
		candidate := stem + "_" + strconv.Itoa(i) + ext
		if !existing[candidate] {
			return candidate, true
		}
	}
	return "", false
}
