package request

import (
	"encoding/base64"
	"sync"

	"github.com/syntrixbase/kinsync/pkg/model"
)

// Credentials are the application secrets used for basic auth.
type Credentials struct {
	AppKey       string
	AppSecret    string
	MasterSecret string
}

// SessionStore yields the auth token of the active user, if any.
type SessionStore interface {
	ActiveToken() (string, bool)
}

// MemorySessionStore is a SessionStore held in memory.
type MemorySessionStore struct {
	mu    sync.RWMutex
	token string
}

func (s *MemorySessionStore) ActiveToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// SetToken makes token the active session; an empty token logs out.
func (s *MemorySessionStore) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Authenticator resolves Authorization header values for an AuthType.
type Authenticator struct {
	creds    Credentials
	sessions SessionStore
}

func NewAuthenticator(creds Credentials, sessions SessionStore) *Authenticator {
	return &Authenticator{creds: creds, sessions: sessions}
}

// Header returns the Authorization value for t. AuthNone yields "".
func (a *Authenticator) Header(t AuthType) (string, error) {
	switch t {
	case AuthNone:
		return "", nil
	case AuthApp:
		return a.app()
	case AuthMaster:
		return a.master()
	case AuthSession:
		return a.session()
	case AuthDefault:
		if h, err := a.session(); err == nil {
			return h, nil
		}
		return a.master()
	case AuthAll:
		if h, err := a.session(); err == nil {
			return h, nil
		}
		if h, err := a.app(); err == nil {
			return h, nil
		}
		return a.master()
	}
	return "", model.Errorf(model.ErrKinvey, "unknown auth type %d", int(t))
}

func (a *Authenticator) session() (string, error) {
	if a.sessions != nil {
		if token, ok := a.sessions.ActiveToken(); ok {
			return "Kinvey " + token, nil
		}
	}
	return "", model.NewError(model.ErrActiveUser, "there is no active user")
}

func (a *Authenticator) app() (string, error) {
	if a.creds.AppKey == "" || a.creds.AppSecret == "" {
		return "", model.NewError(model.ErrMissingConfiguration, "app key and app secret are required")
	}
	return basic(a.creds.AppKey, a.creds.AppSecret), nil
}

func (a *Authenticator) master() (string, error) {
	if a.creds.AppKey == "" || a.creds.MasterSecret == "" {
		return "", model.NewError(model.ErrMissingConfiguration, "app key and master secret are required")
	}
	return basic(a.creds.AppKey, a.creds.MasterSecret), nil
}

func basic(user, secret string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+secret))
}
