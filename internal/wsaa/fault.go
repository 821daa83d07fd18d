package wsaa

import "strings"

// AuthorityFault es un SOAP Fault devuelto por el WSAA.
type AuthorityFault struct {
	Code   string // ej: "ns1:coe.alreadyAuthenticated"
	String string
}

func (f *AuthorityFault) Error() string {
	return "soap fault " + f.Code + ": " + f.String
}

// LocalCode devuelve el faultcode sin prefijo de namespace.
func (f *AuthorityFault) LocalCode() string {
	if i := strings.LastIndexByte(f.Code, ':'); i >= 0 {
		return f.Code[i+1:]
	}
	return f.Code
}

func (f *AuthorityFault) Is(target error) bool {
	return target == ErrAlreadyAuthenticated && f.LocalCode() == "coe.alreadyAuthenticated"
}
