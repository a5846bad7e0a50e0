package domain

// =============================================================================
// Slug Generation
// =============================================================================

// Slugify converts a name to a URL-safe slug.
//
// The transformation rules are:
//   - Lowercase letters (a-z) are kept as-is
//   - Digits (0-9) are kept as-is
//   - Hyphens (-) are kept as-is
//   - Uppercase letters (A-Z) are converted to lowercase
//   - Spaces are converted to hyphens
//   - All other characters are removed
//
// This is a pure function with no side effects.
//
// Example:
//
//	Slugify("Hello World")     // returns "hello-world"
//	Slugify("My App 2.0!")     // returns "my-app-20"
//	Slugify("WordPress Blog")  // returns "wordpress-blog"
func Slugify(name string) string {
	slug := ""
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			slug += string(r)
		} else if r >= 'A' && r <= 'Z' {
			slug += string(r + 32) // convert to lowercase
		} else if r == ' ' {
			slug += "-"
		}
		// All other characters are dropped
	}
	return slug
}

// =============================================================================
// Slug Validation
// =============================================================================

// ReservedSlugs are top-level path segments owned by the application itself.
// A page with one of these slugs could never be served publicly.
var ReservedSlugs = map[string]bool{
	"pages":       true,
	"assets":      true,
	"leads":       true,
	"statistiken": true,
	"api":         true,
	"revalidate":  true,
}

// IsSafeSlug reports whether s is non-empty and made only of ASCII letters,
// digits and hyphens. Values read back from the routing table are checked
// with this before being used in a rewritten path.
func IsSafeSlug(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-') {
			return false
		}
	}
	return true
}

// IsReservedSlug reports whether s collides with an application route.
func IsReservedSlug(s string) bool {
	return ReservedSlugs[s]
}

// ValidateSlug checks that a slug can be used as a page address.
func ValidateSlug(slug string) error {
	if slug == "" {
		return ErrSlugRequired
	}
	if len(slug) > MaxSlugLength {
		return ErrSlugTooLong
	}
	if !IsSafeSlug(slug) {
		return ErrSlugInvalidChars
	}
	if IsReservedSlug(slug) {
		return ErrSlugReserved
	}
	return nil
}
