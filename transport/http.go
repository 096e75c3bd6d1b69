package transport

import (
	"net/http"
	"strings"
	"time"
)

// HTTP is the Carrier implementation over a live request/response pair.
type HTTP struct {
	w      http.ResponseWriter
	r      *http.Request
	policy Policy
	wrote  bool
}

var _ Carrier = (*HTTP)(nil)

// NewHTTP wraps a request/response pair with the given cookie policy.
func NewHTTP(w http.ResponseWriter, r *http.Request, policy Policy) *HTTP {
	return &HTTP{w: w, r: r, policy: policy}
}

func (h *HTTP) Cookie(name string) (string, bool) {
	c, err := h.r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func (h *HTTP) SetCookie(name, value string, expires time.Time) error {
	if h.wrote {
		return ErrHeadersSent
	}
	http.SetCookie(h.w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     h.policy.Path,
		HttpOnly: true,
		Secure:   h.policy.Secure,
		SameSite: h.policy.SameSite,
		Expires:  expires,
	})
	return nil
}

func (h *HTTP) RemoveCookie(name string) error {
	if h.wrote {
		return ErrHeadersSent
	}
	http.SetCookie(h.w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     h.policy.Path,
		HttpOnly: true,
		Secure:   h.policy.Secure,
		SameSite: h.policy.SameSite,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
	return nil
}

func (h *HTTP) Header(name string) (string, bool) {
	v := h.r.Header.Get(name)
	if v == "" {
		return "", false
	}
	return v, true
}

func (h *HTTP) SetHeader(name, value string) {
	h.w.Header().Set(name, value)
}

// Secure reports whether the request arrived over TLS, directly or behind a
// terminating proxy.
func (h *HTTP) Secure() bool {
	if h.r.TLS != nil {
		return true
	}
	if strings.EqualFold(h.r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(h.r.Header.Get("Forwarded")), "proto=https")
}

// MarkWritten records that the response body has started, after which
// SetCookie and RemoveCookie fail with ErrHeadersSent.
func (h *HTTP) MarkWritten() {
	h.wrote = true
}

// ResponseWriter wraps the underlying writer so any body write or explicit
// status marks the carrier written. Handlers that produce output on the same
// exchange should write through it, so a cookie operation after the body has
// started fails with ErrHeadersSent instead of being silently dropped.
func (h *HTTP) ResponseWriter() http.ResponseWriter {
	return &markingWriter{ResponseWriter: h.w, h: h}
}

type markingWriter struct {
	http.ResponseWriter
	h *HTTP
}

func (m *markingWriter) WriteHeader(code int) {
	m.h.wrote = true
	m.ResponseWriter.WriteHeader(code)
}

func (m *markingWriter) Write(b []byte) (int, error) {
	m.h.wrote = true
	return m.ResponseWriter.Write(b)
}
