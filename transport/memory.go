package transport

import "time"

// Memory is an in-memory Carrier for tests and non-HTTP callers. Cookies
// and headers written to the response side become visible on the request
// side of the next exchange via NextRequest.
type Memory struct {
	reqCookies  map[string]string
	reqHeaders  map[string]string
	respCookies map[string]memCookie
	respHeaders map[string]string
	secure      bool
	failWrites  bool
}

type memCookie struct {
	value   string
	expires time.Time
	removed bool
}

var _ Carrier = (*Memory)(nil)

// NewMemory creates an empty in-memory carrier. secure controls what
// Secure() reports.
func NewMemory(secure bool) *Memory {
	return &Memory{
		reqCookies:  make(map[string]string),
		reqHeaders:  make(map[string]string),
		respCookies: make(map[string]memCookie),
		respHeaders: make(map[string]string),
		secure:      secure,
	}
}

func (m *Memory) Cookie(name string) (string, bool) {
	v, ok := m.reqCookies[name]
	return v, ok && v != ""
}

func (m *Memory) SetCookie(name, value string, expires time.Time) error {
	if m.failWrites {
		return ErrHeadersSent
	}
	m.respCookies[name] = memCookie{value: value, expires: expires}
	return nil
}

func (m *Memory) RemoveCookie(name string) error {
	if m.failWrites {
		return ErrHeadersSent
	}
	m.respCookies[name] = memCookie{removed: true}
	return nil
}

func (m *Memory) Header(name string) (string, bool) {
	v, ok := m.reqHeaders[name]
	return v, ok && v != ""
}

func (m *Memory) SetHeader(name, value string) {
	m.respHeaders[name] = value
}

func (m *Memory) Secure() bool {
	return m.secure
}

// SetRequestCookie seeds a cookie on the request side.
func (m *Memory) SetRequestCookie(name, value string) {
	m.reqCookies[name] = value
}

// SetRequestHeader seeds a header on the request side.
func (m *Memory) SetRequestHeader(name, value string) {
	m.reqHeaders[name] = value
}

// ResponseCookie returns the value of a cookie written to the response.
func (m *Memory) ResponseCookie(name string) (string, bool) {
	c, ok := m.respCookies[name]
	if !ok || c.removed {
		return "", false
	}
	return c.value, true
}

// CookieRemoved reports whether the named cookie was expired on the client.
func (m *Memory) CookieRemoved(name string) bool {
	c, ok := m.respCookies[name]
	return ok && c.removed
}

// ResponseHeader returns a header written to the response.
func (m *Memory) ResponseHeader(name string) (string, bool) {
	v, ok := m.respHeaders[name]
	return v, ok && v != ""
}

// FailWrites makes subsequent SetCookie/RemoveCookie calls fail, simulating
// a response whose headers were already flushed.
func (m *Memory) FailWrites() {
	m.failWrites = true
}

// NextRequest returns a fresh carrier whose request side contains the
// cookies this carrier's response issued, as a browser would replay them.
func (m *Memory) NextRequest() *Memory {
	next := NewMemory(m.secure)
	for name, v := range m.reqCookies {
		next.reqCookies[name] = v
	}
	for name, c := range m.respCookies {
		if c.removed {
			delete(next.reqCookies, name)
			continue
		}
		next.reqCookies[name] = c.value
	}
	return next
}
