package util

import "strings"

// MaskSecret deja visibles sólo los extremos de un token/sign para poder
// correlacionar logs sin exponer la credencial.
func MaskSecret(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return ""
	case len(s) <= 12:
		return "***"
	}
	return s[:4] + "…" + s[len(s)-4:]
}
