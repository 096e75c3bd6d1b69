package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/tgrimes/keygate/password"
	"github.com/tgrimes/keygate/token"
	"github.com/tgrimes/keygate/transport"
)

// Register handles POST /auth/register. A successful registration logs the
// account in immediately.
func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[RegisterRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	digest, err := password.Hash(req.Password, a.passwordCost)
	if err != nil {
		switch {
		case errors.Is(err, password.ErrEmptySecret):
			writeError(w, http.StatusBadRequest, "password is required")
		case errors.Is(err, password.ErrSecretTooLong):
			writeError(w, http.StatusBadRequest, "password is too long")
		default:
			a.log.Error("hashing password", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	account, err := a.accounts.create(req.Username, digest)
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			writeError(w, http.StatusConflict, "username already registered")
			return
		}
		a.log.Error("creating account", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	a.metrics.registrations.Inc()

	carrier := transport.NewHTTP(w, r, a.policy)
	w = carrier.ResponseWriter()
	identity, err := a.protocol.Generate(r.Context(), carrier, tokenName, account.UserID, a.tokenTTL, nil)
	if err != nil {
		if errors.Is(err, token.ErrInsecureTransport) {
			writeError(w, http.StatusForbidden, "secure channel required")
			return
		}
		a.log.Error("issuing token", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	writeResult(w, http.StatusCreated, "registered", SessionData{
		UserID:    account.UserID,
		Username:  account.Username,
		IssuedAt:  identity.IssuedAt.Unix(),
		ExpiresAt: identity.ExpiresAt.Unix(),
	})
}

// Login handles POST /auth/login.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[LoginRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	account, err := a.accounts.find(req.Username)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// Burn a verification anyway so lookups cost the same
			// whether or not the account exists.
			password.Verify(req.Password, decoyDigest)
			a.metrics.loginFailures.Inc()
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		a.log.Error("loading account", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	if !password.Verify(req.Password, account.PasswordDigest) {
		a.metrics.loginFailures.Inc()
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	carrier := transport.NewHTTP(w, r, a.policy)
	w = carrier.ResponseWriter()
	identity, err := a.protocol.Generate(r.Context(), carrier, tokenName, account.UserID, a.tokenTTL, nil)
	if err != nil {
		if errors.Is(err, token.ErrInsecureTransport) {
			writeError(w, http.StatusForbidden, "secure channel required")
			return
		}
		a.log.Error("issuing token", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	a.metrics.logins.Inc()

	writeResult(w, http.StatusOK, "authenticated", SessionData{
		UserID:    account.UserID,
		Username:  account.Username,
		IssuedAt:  identity.IssuedAt.Unix(),
		ExpiresAt: identity.ExpiresAt.Unix(),
	})
}

// Session handles GET /auth/session. It runs behind AuthMiddleware, so the
// identity is already on the context.
func (a *API) Session(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	if identity == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	writeResult(w, http.StatusOK, "session active", SessionData{
		UserID:    identity.UserID,
		IssuedAt:  identity.IssuedAt.Unix(),
		ExpiresAt: identity.ExpiresAt.Unix(),
	})
}

// Logout handles POST /auth/logout. It validates first so the server-side
// session can be removed; cookies are cleared regardless of the outcome.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	carrier := transport.NewHTTP(w, r, a.policy)
	w = carrier.ResponseWriter()

	identity, err := a.protocol.Validate(r.Context(), carrier, tokenName)
	if err != nil {
		// Validation already revoked what it could.
		if err := a.protocol.Remove(r.Context(), carrier, tokenName, 0); err != nil {
			a.log.Warn("clearing cookies on logout", slog.String("error", err.Error()))
		}
		writeResult(w, http.StatusOK, "logged out", nil)
		return
	}

	if err := a.protocol.Remove(r.Context(), carrier, tokenName, identity.UserID); err != nil {
		a.log.Error("removing session", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "logout failed")
		return
	}
	a.metrics.logouts.Inc()
	writeResult(w, http.StatusOK, "logged out", nil)
}

// decoyDigest is a valid Argon2id digest of an unguessable value, used to
// equalize login timing when the username does not exist.
var decoyDigest = func() string {
	d, err := password.Hash("keygate-decoy-password", password.DefaultParams())
	if err != nil {
		panic(err)
	}
	return d
}()
