package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/icholy/digest"
	"github.com/jcmturner/gokrb5/v8/client"
	krbconfig "github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/spnego"
)

// AuthMode is the HTTP authentication scheme used against the endpoint.
type AuthMode string

const (
	AuthNone      AuthMode = "none"
	AuthBasic     AuthMode = "basic"
	AuthDigest    AuthMode = "digest"
	AuthNegotiate AuthMode = "negotiate"
	AuthNTLM      AuthMode = "ntlm"
)

// ParseAuthMode validates s as an AuthMode. The empty string means none.
func ParseAuthMode(s string) (AuthMode, error) {
	switch m := AuthMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", AuthNone:
		return AuthNone, nil
	case AuthBasic, AuthDigest, AuthNegotiate, AuthNTLM:
		return m, nil
	default:
		return "", fmt.Errorf("unknown auth mode %q (expected none|basic|digest|negotiate|ntlm)", s)
	}
}

// DefaultKrb5Config is read when negotiate auth has no explicit config path.
const DefaultKrb5Config = "/etc/krb5.conf"

// ServerInfo describes the target endpoint and its authentication policy.
type ServerInfo struct {
	url  *url.URL
	mode AuthMode

	user     string
	password string
	realm    string

	spn        string
	krb5Config string
	krb        *client.Client
	krbLogin   sync.Once
	krbErr     error

	released bool
}

// NewServerInfo parses rawURL as an http or https endpoint.
func NewServerInfo(rawURL string) (*ServerInfo, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid url scheme %q (expected http or https)", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("invalid url (missing host)")
	}
	return &ServerInfo{url: u, mode: AuthNone}, nil
}

// URL returns the endpoint address.
func (s *ServerInfo) URL() string { return s.url.String() }

// Mode returns the enabled authentication scheme.
func (s *ServerInfo) Mode() AuthMode { return s.mode }

// User returns the configured user name, without realm.
func (s *ServerInfo) User() string { return s.user }

// SetCredentials attaches a user/password pair. Both are required. A user of the form
// "name@REALM" also sets the realm unless one was set explicitly.
func (s *ServerInfo) SetCredentials(user, password string) error {
	if user == "" {
		return errors.New("user is required")
	}
	if password == "" {
		return errors.New("password is required")
	}
	if name, realm, ok := strings.Cut(user, "@"); ok {
		if name == "" || realm == "" {
			return fmt.Errorf("malformed user %q", user)
		}
		user = name
		if s.realm == "" {
			s.realm = realm
		}
	}
	s.user = user
	s.password = password
	return nil
}

// SetRealm sets the authentication realm (Kerberos realm or NTLM domain).
func (s *ServerInfo) SetRealm(realm string) { s.realm = realm }

// SetKerberos configures the service principal and krb5.conf path used by
// negotiate auth. An empty spn is derived from the URL host.
func (s *ServerInfo) SetKerberos(spn, krb5Config string) {
	s.spn = spn
	s.krb5Config = krb5Config
}

// EnableAuth turns on exactly one authentication scheme. Credentials must
// be set first. A scheme cannot be replaced once enabled.
func (s *ServerInfo) EnableAuth(mode AuthMode) error {
	if mode != AuthNone && s.user == "" {
		return errors.New("credentials not set")
	}
	if s.mode != AuthNone && s.mode != mode {
		return fmt.Errorf("auth mode %s already enabled", s.mode)
	}

	switch mode {
	case AuthBasic, AuthDigest, AuthNTLM:
	case AuthNegotiate:
		path := s.krb5Config
		if path == "" {
			path = DefaultKrb5Config
		}
		cfg, err := krbconfig.Load(path)
		if err != nil {
			return fmt.Errorf("load krb5 config: %w", err)
		}
		realm := s.realm
		if realm == "" {
			realm = cfg.LibDefaults.DefaultRealm
		}
		if realm == "" {
			return errors.New("negotiate auth requires a realm")
		}
		s.krb = client.NewWithPassword(s.user, realm, s.password, cfg, client.DisablePAFXFAST(true))
	case AuthNone:
		return errors.New("auth mode none cannot be enabled")
	default:
		return fmt.Errorf("unknown auth mode %q", mode)
	}

	s.mode = mode
	return nil
}

// wrap layers the scheme's round tripper over base.
func (s *ServerInfo) wrap(base http.RoundTripper) http.RoundTripper {
	switch s.mode {
	case AuthDigest:
		return &digest.Transport{
			Username:  s.user,
			Password:  s.password,
			Transport: base,
		}
	case AuthNTLM:
		return &ntlmTransport{
			user:     s.user,
			password: s.password,
			domain:   s.realm,
			base:     base,
		}
	default:
		return base
	}
}

// authorize sets the per-request credentials the scheme needs.
func (s *ServerInfo) authorize(req *http.Request) error {
	switch s.mode {
	case AuthBasic:
		req.SetBasicAuth(s.user, s.password)
	case AuthNegotiate:
		s.krbLogin.Do(func() { s.krbErr = s.krb.Login() })
		if s.krbErr != nil {
			return fmt.Errorf("kerberos login: %w", s.krbErr)
		}
		if err := spnego.SetSPNEGOHeader(s.krb, req, s.spn); err != nil {
			return fmt.Errorf("spnego: %w", err)
		}
	}
	return nil
}

// Release drops credentials and any Kerberos session. It reports whether
// this call performed the release.
func (s *ServerInfo) Release() bool {
	if s.released {
		return false
	}
	s.released = true
	if s.krb != nil {
		s.krb.Destroy()
		s.krb = nil
	}
	s.password = ""
	return true
}
