package resolve

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.Und, cases.NoLower)

// ToSnakeCase converts PascalCase or camelCase to snake_case.
// Existing underscores are preserved.
//
//	HelloWorld  -> hello_world
//	UserCreated -> user_created
//	send_email  -> send_email
func ToSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ToPascalCase converts snake_case to PascalCase. Input already in
// PascalCase passes through unchanged.
func ToPascalCase(s string) string {
	parts := strings.Split(s, "_")
	var b strings.Builder
	for _, part := range parts {
		if part == "" {
			continue
		}
		b.WriteString(titleCaser.String(part))
	}
	return b.String()
}

// ToCamelCase converts snake_case to camelCase. Keys without an
// underscore pass through unchanged, matching how generated model
// fields are named.
func ToCamelCase(s string) string {
	if !strings.Contains(s, "_") {
		return s
	}
	parts := strings.Split(s, "_")
	var b strings.Builder
	for i, part := range parts {
		if part == "" {
			continue
		}
		if i == 0 {
			b.WriteString(part)
			continue
		}
		b.WriteString(titleCaser.String(part))
	}
	return b.String()
}
