// Package pathgrammar decides whether a configured directory path is acceptable
// before the backup touches the filesystem.
//
// An accepted path starts with a root prefix, either a drive letter followed by
// ":/" (e.g. "C:/") or a single "/", followed by zero or more "/"-separated
// segments. Segments must be non-empty, must not be "." or "..", must not contain
// any of the characters < > : " / \ | ? *, and must not end in a space or a period
// when another separator follows them. A single trailing separator is allowed.
//
// Backslashes are never accepted; configuration loading converts them to forward
// slashes before paths reach this package.
package pathgrammar

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// Tag is the go-playground/validator tag under which Valid is registered.
const Tag = "backuppath"

// forbiddenChars may not appear anywhere inside a segment.
const forbiddenChars = `<>:"/\|?*`

// Valid reports whether path matches the accepted directory path grammar.
// It performs no I/O.
func Valid(path string) bool {
	rest, ok := trimRoot(path)
	if !ok {
		return false
	}
	if rest == "" {
		return true
	}

	trailingSep := strings.HasSuffix(rest, "/")
	if trailingSep {
		rest = rest[:len(rest)-1]
	}

	segments := strings.Split(rest, "/")
	for i, seg := range segments {
		if seg == "" || seg == "." || seg == ".." || strings.ContainsAny(seg, forbiddenChars) {
			return false
		}
		followedBySep := i < len(segments)-1 || trailingSep
		if followedBySep && (strings.HasSuffix(seg, " ") || strings.HasSuffix(seg, ".")) {
			return false
		}
	}
	return true
}

// RegisterValidation makes the grammar available as the Tag rule on v.
func RegisterValidation(v *validator.Validate) error {
	return v.RegisterValidation(Tag, func(fl validator.FieldLevel) bool {
		return Valid(fl.Field().String())
	})
}

// trimRoot strips the root prefix and returns the remainder.
func trimRoot(path string) (string, bool) {
	if len(path) >= 3 && isDriveLetter(path[0]) && path[1] == ':' && path[2] == '/' {
		return path[3:], true
	}
	if strings.HasPrefix(path, "/") {
		return path[1:], true
	}
	return "", false
}

func isDriveLetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
