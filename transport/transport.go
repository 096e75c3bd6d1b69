// Package transport abstracts the client-side channel the token protocol
// writes to: named cookies plus a single response header. It carries no
// cryptographic behavior.
package transport

import (
	"errors"
	"net/http"
	"time"
)

// ErrHeadersSent is returned by Set/Remove when the response can no longer
// accept headers. It is a legitimate failure, not fatal to the caller.
var ErrHeadersSent = errors.New("response headers already sent")

// Policy bundles the cookie security flags applied to every cookie the
// protocol sets. HTTPOnly is always on for token cookies.
type Policy struct {
	Path     string
	Secure   bool
	SameSite http.SameSite
}

func DefaultPolicy() Policy {
	return Policy{
		Path:     "/",
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

// Carrier is the read/write surface for one request/response exchange.
type Carrier interface {
	// Cookie returns the named request cookie value, if present.
	Cookie(name string) (string, bool)
	// SetCookie writes a cookie with the policy's security flags.
	SetCookie(name, value string, expires time.Time) error
	// RemoveCookie expires the named cookie on the client.
	RemoveCookie(name string) error
	// Header returns the named request header, if present and non-empty.
	Header(name string) (string, bool)
	// SetHeader writes a response header.
	SetHeader(name, value string)
	// Secure reports whether the exchange happens over a secure channel.
	Secure() bool
}
