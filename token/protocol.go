package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tgrimes/keygate/internal/util"
	"github.com/tgrimes/keygate/session"
	"github.com/tgrimes/keygate/transport"
)

// Config carries the protocol's transport-facing settings.
type Config struct {
	// CookiePrefix is prepended to every cookie the protocol owns.
	CookiePrefix string
	// HeaderName is the response header carrying the raw header nonce.
	HeaderName string
	// RequireSecure refuses token issuance over an insecure channel.
	RequireSecure bool
	// DefaultTTL is used when Generate is called with a zero ttl.
	DefaultTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		CookiePrefix:  "kg_",
		HeaderName:    "X-Keygate-Nonce",
		RequireSecure: true,
		DefaultTTL:    24 * time.Hour,
	}
}

// Identity is the authenticated outcome of a successful generate or
// validate call.
type Identity struct {
	UserID      int64
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Additionals json.RawMessage
}

// Protocol orchestrates token issuance, validation with rotation, and
// revocation over a session store and a cookie carrier.
type Protocol struct {
	keys  *Keyring
	store session.Store
	cfg   Config
	now   func() time.Time
	log   *slog.Logger
}

// Option configures a Protocol.
type Option func(*Protocol)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Protocol) { p.now = now }
}

// WithLogger sets the structured logger. Raw secrets are never logged.
func WithLogger(log *slog.Logger) Option {
	return func(p *Protocol) { p.log = log }
}

// New creates a Protocol over the given keyring and session store.
func New(keys *Keyring, store session.Store, cfg Config, opts ...Option) *Protocol {
	p := &Protocol{
		keys:  keys,
		store: store,
		cfg:   cfg,
		now:   time.Now,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ValidateOption adjusts a single validation attempt.
type ValidateOption func(*validateOptions)

type validateOptions struct {
	requireHeader bool
	notBefore     time.Time
}

// RequireHeader additionally binds the request to the header nonce.
// Skipping it weakens the binding to the two cookies alone; callers that
// can send custom headers should turn it on.
func RequireHeader() ValidateOption {
	return func(o *validateOptions) { o.requireHeader = true }
}

// NotBefore rejects tokens issued at or before t, typically the principal's
// last logout time.
func NotBefore(t time.Time) ValidateOption {
	return func(o *validateOptions) { o.notBefore = t }
}

func (p *Protocol) cookieName(name string) string {
	return p.cfg.CookiePrefix + name
}

func (p *Protocol) refreshCookieName(name string) string {
	return p.cfg.CookiePrefix + name + "_refresh"
}

// Generate authenticates nothing itself: callers invoke it only after
// verifying the principal by other means. It issues the token, persists the
// session record, and writes the two cookies plus the header nonce.
func (p *Protocol) Generate(ctx context.Context, c transport.Carrier, name string, userID int64,
	ttl time.Duration, additionals json.RawMessage) (Identity, error) {
	if userID <= 0 {
		return Identity{}, fmt.Errorf("user id must be positive, got %d", userID)
	}
	if ttl == 0 {
		ttl = p.cfg.DefaultTTL
	}
	issuedAt := p.now()
	expiresAt := issuedAt.Add(ttl)

	// Policy check before any state is written.
	if p.cfg.RequireSecure && !c.Secure() {
		return Identity{}, ErrInsecureTransport
	}

	nonce, err := util.RandomBytes(nonceLen)
	if err != nil {
		return Identity{}, fmt.Errorf("drawing nonce: %w", err)
	}
	refreshNonce, err := util.RandomBytes(rotationNonceLen)
	if err != nil {
		return Identity{}, fmt.Errorf("drawing refresh nonce: %w", err)
	}
	headerNonce, err := util.RandomBytes(rotationNonceLen)
	if err != nil {
		return Identity{}, fmt.Errorf("drawing header nonce: %w", err)
	}

	plainText := encodePayload(payload{
		UserID:    userID,
		ExpiresAt: expiresAt.Unix(),
		IssuedAt:  issuedAt.Unix(),
		Nonce:     nonce,
	})
	iv, err := util.RandomBytes(ivLen)
	if err != nil {
		return Identity{}, fmt.Errorf("drawing IV: %w", err)
	}
	cipherText, err := p.keys.encrypt(plainText, iv)
	util.WipeBytes(plainText)
	if err != nil {
		return Identity{}, fmt.Errorf("sealing token: %w", err)
	}
	mac, err := p.keys.mac(append(util.CopyBytes(iv), cipherText...))
	if err != nil {
		return Identity{}, fmt.Errorf("authenticating token: %w", err)
	}
	tokenStr := encodeToken(iv, cipherText, mac)

	nonceHash, err := p.keys.hashSecret(nonce)
	if err != nil {
		return Identity{}, err
	}
	refreshHash, err := p.keys.hashSecret(refreshNonce)
	if err != nil {
		return Identity{}, err
	}
	headerHash, err := p.keys.hashSecret(headerNonce)
	if err != nil {
		return Identity{}, err
	}

	if _, err := p.store.Generate(ctx, session.Record{
		Name:             name,
		UserID:           userID,
		NonceHash:        nonceHash,
		RefreshNonceHash: refreshHash,
		HeaderNonceHash:  headerHash,
		CreatedAt:        issuedAt.Unix(),
		ExpiresAt:        expiresAt.Unix(),
		Additionals:      additionals,
	}); err != nil {
		return Identity{}, fmt.Errorf("persisting session: %w", err)
	}

	// An orphaned session row from a cookie failure here self-expires;
	// a retried Generate for the pair evicts it.
	if err := c.SetCookie(p.cookieName(name), tokenStr, expiresAt); err != nil {
		return Identity{}, fmt.Errorf("setting token cookie: %w", err)
	}
	if err := c.SetCookie(p.refreshCookieName(name), util.Base64Encode(refreshNonce), expiresAt); err != nil {
		return Identity{}, fmt.Errorf("setting refresh cookie: %w", err)
	}
	c.SetHeader(p.cfg.HeaderName, util.HexEncode(headerNonce))

	return Identity{
		UserID:      userID,
		IssuedAt:    issuedAt,
		ExpiresAt:   expiresAt,
		Additionals: additionals,
	}, nil
}

// Validate checks the client-held token against the session store and, on
// success, rotates the refresh and header secrets. Every failure that could
// indicate forgery, replay or staleness revokes the cookies, and the session
// record too when the principal is known, before returning.
func (p *Protocol) Validate(ctx context.Context, c transport.Carrier, name string,
	opts ...ValidateOption) (Identity, error) {
	var o validateOptions
	for _, opt := range opts {
		opt(&o)
	}

	tokenStr, haveToken := c.Cookie(p.cookieName(name))
	refreshStr, haveRefresh := c.Cookie(p.refreshCookieName(name))
	if !haveToken || !haveRefresh {
		return Identity{}, ErrMissingToken
	}

	iv, cipherText, mac, err := decodeToken(tokenStr)
	if err != nil {
		p.revoke(ctx, c, name, 0)
		return Identity{}, err
	}

	expectedMAC, err := p.keys.mac(append(util.CopyBytes(iv), cipherText...))
	if err != nil {
		// An unusable key cannot vouch for anything: fail closed.
		p.revoke(ctx, c, name, 0)
		return Identity{}, err
	}
	if !util.ConstantTimeEq(mac, expectedMAC) {
		p.revoke(ctx, c, name, 0)
		return Identity{}, ErrIntegrity
	}

	plainText, err := p.keys.decrypt(cipherText, iv)
	if err != nil {
		p.revoke(ctx, c, name, 0)
		return Identity{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	pl, err := parsePayload(plainText)
	util.WipeBytes(plainText)
	if err != nil {
		p.revoke(ctx, c, name, 0)
		return Identity{}, err
	}

	now := p.now()
	if pl.ExpiresAt <= now.Unix() {
		p.revoke(ctx, c, name, pl.UserID)
		return Identity{}, ErrExpired
	}
	if !o.notBefore.IsZero() && pl.IssuedAt <= o.notBefore.Unix() {
		p.revoke(ctx, c, name, pl.UserID)
		return Identity{}, ErrStaleToken
	}

	rec, err := p.store.Get(ctx, name, pl.UserID)
	if err != nil {
		p.revoke(ctx, c, name, pl.UserID)
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrExpired) {
			return Identity{}, fmt.Errorf("%w: %v", ErrNoSession, err)
		}
		return Identity{}, fmt.Errorf("fetching session: %w", err)
	}

	nonceHash, err := p.keys.hashSecret(pl.Nonce)
	if err != nil {
		p.revoke(ctx, c, name, pl.UserID)
		return Identity{}, err
	}
	if !util.ConstantTimeEq([]byte(nonceHash), []byte(rec.NonceHash)) {
		p.revoke(ctx, c, name, pl.UserID)
		return Identity{}, ErrReplay
	}

	if o.requireHeader {
		if err := p.checkHeaderNonce(c, rec); err != nil {
			p.revoke(ctx, c, name, pl.UserID)
			return Identity{}, err
		}
	}

	refreshNonce, err := util.Base64Decode(refreshStr)
	if err != nil {
		p.revoke(ctx, c, name, pl.UserID)
		return Identity{}, fmt.Errorf("%w: undecodable refresh cookie", ErrRefreshMismatch)
	}
	refreshHash, err := p.keys.hashSecret(refreshNonce)
	if err != nil {
		p.revoke(ctx, c, name, pl.UserID)
		return Identity{}, err
	}
	if !util.ConstantTimeEq([]byte(refreshHash), []byte(rec.RefreshNonceHash)) {
		p.revoke(ctx, c, name, pl.UserID)
		return Identity{}, ErrRefreshMismatch
	}

	// All checks passed: rotate the two auxiliary secrets.
	newRefresh, err := util.RandomBytes(rotationNonceLen)
	if err != nil {
		return Identity{}, fmt.Errorf("drawing refresh nonce: %w", err)
	}
	newHeader, err := util.RandomBytes(rotationNonceLen)
	if err != nil {
		return Identity{}, fmt.Errorf("drawing header nonce: %w", err)
	}
	newRefreshHash, err := p.keys.hashSecret(newRefresh)
	if err != nil {
		return Identity{}, err
	}
	newHeaderHash, err := p.keys.hashSecret(newHeader)
	if err != nil {
		return Identity{}, err
	}

	updated, err := p.store.Update(ctx, name, pl.UserID, rec.Additionals,
		newRefreshHash, newHeaderHash, rec.UpdatedTally)
	if err != nil {
		// A concurrent validation of the same token won the rotation
		// race. The session stays intact for the winner; this request
		// is simply not authenticated.
		if errors.Is(err, session.ErrConflict) {
			return Identity{}, fmt.Errorf("%w: concurrent rotation", ErrReplay)
		}
		p.revoke(ctx, c, name, pl.UserID)
		return Identity{}, fmt.Errorf("rotating session: %w", err)
	}

	expiresAt := time.Unix(rec.ExpiresAt, 0)
	if err := c.SetCookie(p.cookieName(name), tokenStr, expiresAt); err != nil {
		return Identity{}, fmt.Errorf("resetting token cookie: %w", err)
	}
	if err := c.SetCookie(p.refreshCookieName(name), util.Base64Encode(newRefresh), expiresAt); err != nil {
		return Identity{}, fmt.Errorf("resetting refresh cookie: %w", err)
	}
	c.SetHeader(p.cfg.HeaderName, util.HexEncode(newHeader))

	return Identity{
		UserID:      pl.UserID,
		IssuedAt:    time.Unix(pl.IssuedAt, 0),
		ExpiresAt:   time.Unix(pl.ExpiresAt, 0),
		Additionals: updated.Additionals,
	}, nil
}

func (p *Protocol) checkHeaderNonce(c transport.Carrier, rec session.Record) error {
	value, ok := c.Header(p.cfg.HeaderName)
	if !ok {
		return fmt.Errorf("%w: header missing", ErrHeaderMismatch)
	}
	raw, err := util.HexDecode(value)
	if err != nil {
		return fmt.Errorf("%w: undecodable header", ErrHeaderMismatch)
	}
	hash, err := p.keys.hashSecret(raw)
	if err != nil {
		return err
	}
	if !util.ConstantTimeEq([]byte(hash), []byte(rec.HeaderNonceHash)) {
		return ErrHeaderMismatch
	}
	return nil
}

// Remove deletes both cookies and, when userID is known, the session
// record. The first failure is reported, but later cleanup steps still run
// so a cookie error never leaves the session row behind.
func (p *Protocol) Remove(ctx context.Context, c transport.Carrier, name string, userID int64) error {
	var firstErr error
	if err := c.RemoveCookie(p.cookieName(name)); err != nil {
		firstErr = fmt.Errorf("removing token cookie: %w", err)
	}
	if err := c.RemoveCookie(p.refreshCookieName(name)); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("removing refresh cookie: %w", err)
	}
	if userID > 0 {
		if err := p.store.Delete(ctx, name, userID); err != nil && !errors.Is(err, session.ErrNotFound) && firstErr == nil {
			firstErr = fmt.Errorf("deleting session: %w", err)
		}
	}
	return firstErr
}

// revoke is the fail-closed path: cookies go away, and the session record
// too when the principal is known. Best effort, errors are only logged.
func (p *Protocol) revoke(ctx context.Context, c transport.Carrier, name string, userID int64) {
	if err := c.RemoveCookie(p.cookieName(name)); err != nil {
		p.log.Warn("could not remove token cookie", slog.String("error", err.Error()))
	}
	if err := c.RemoveCookie(p.refreshCookieName(name)); err != nil {
		p.log.Warn("could not remove refresh cookie", slog.String("error", err.Error()))
	}
	if userID > 0 {
		if err := p.store.Delete(ctx, name, userID); err != nil && !errors.Is(err, session.ErrNotFound) {
			p.log.Warn("could not delete session",
				slog.String("name", name),
				slog.Int64("user", userID),
				slog.String("error", err.Error()))
		}
	}
}
