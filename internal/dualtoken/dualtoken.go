// Package dualtoken implements the SubjectAndAppToken1.0 authorization
// scheme used between the Fabric control plane and workload backends. A
// single Authorization header carries two JWTs: a delegated subject token
// (possibly empty) and an application token.
package dualtoken

import (
	"errors"
	"fmt"
	"regexp"
)

// Scheme is the authorization scheme name, also used to distinguish
// composite headers from plain bearer tokens on outbound calls.
const Scheme = "SubjectAndAppToken1.0"

// ErrMalformed indicates the header value matched neither accepted grammar.
var ErrMalformed = errors.New("dualtoken: malformed SubjectAndAppToken header")

var (
	headerPattern             = regexp.MustCompile(`^SubjectAndAppToken1\.0 subjectToken="(eyJ[A-Za-z0-9_\-\.]+)", appToken="(eyJ[A-Za-z0-9_\-\.]+)"$`)
	headerPatternEmptySubject = regexp.MustCompile(`^SubjectAndAppToken1\.0 subjectToken="", appToken="(eyJ[A-Za-z0-9_\-\.]+)"$`)
)

// SubjectAndAppToken is a parsed dual-token header. SubjectToken is empty
// when the caller explicitly presented no subject token.
type SubjectAndAppToken struct {
	SubjectToken string
	AppToken     string
}

// Parse extracts the subject and app tokens from an Authorization header
// value. The two accepted grammars are strict: token values must look like
// compact JWTs and the quoting/ordering is fixed.
func Parse(headerValue string) (SubjectAndAppToken, error) {
	if headerValue == "" {
		return SubjectAndAppToken{}, fmt.Errorf("%w: empty header", ErrMalformed)
	}
	if m := headerPattern.FindStringSubmatch(headerValue); m != nil {
		return SubjectAndAppToken{SubjectToken: m[1], AppToken: m[2]}, nil
	}
	if m := headerPatternEmptySubject.FindStringSubmatch(headerValue); m != nil {
		return SubjectAndAppToken{AppToken: m[1]}, nil
	}
	return SubjectAndAppToken{}, ErrMalformed
}

// Generate renders the canonical header value. An absent subject token is
// rendered as subjectToken="" so that Parse(Generate(s, a)) round-trips
// exactly, including the empty-subject case.
func Generate(subjectToken, appToken string) string {
	return fmt.Sprintf(`%s subjectToken=%q, appToken=%q`, Scheme, subjectToken, appToken)
}
