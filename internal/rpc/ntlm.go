package rpc

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Azure/go-ntlmssp"
)

// ntlmTransport runs the NTLM handshake over base. It first sends the
// request without credentials and only answers an NTLM or Negotiate
// challenge. Any other 401 is returned as is, so credentials never leave
// the process outside NTLM messages.
type ntlmTransport struct {
	user     string
	password string
	domain   string
	base     http.RoundTripper
}

func (t *ntlmTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rewind, err := rewinder(req)
	if err != nil {
		return nil, err
	}

	res, err := t.send(req, rewind, "")
	if err != nil || res.StatusCode != http.StatusUnauthorized {
		return res, err
	}
	scheme := ntlmScheme(res.Header.Values("Www-Authenticate"))
	if scheme == "" {
		return res, nil
	}
	discard(res)

	negotiate, err := ntlmssp.NewNegotiateMessage(t.domain, "")
	if err != nil {
		return nil, fmt.Errorf("ntlm negotiate: %w", err)
	}
	res, err = t.send(req, rewind, scheme+" "+base64.StdEncoding.EncodeToString(negotiate))
	if err != nil || res.StatusCode != http.StatusUnauthorized {
		return res, err
	}
	challenge, err := ntlmChallenge(res.Header.Values("Www-Authenticate"), scheme)
	if err != nil || challenge == nil {
		// No usable challenge; the caller sees the 401.
		return res, nil
	}
	discard(res)

	auth, err := ntlmssp.ProcessChallenge(challenge, t.user, t.password, true)
	if err != nil {
		return nil, fmt.Errorf("ntlm challenge: %w", err)
	}
	return t.send(req, rewind, scheme+" "+base64.StdEncoding.EncodeToString(auth))
}

func (t *ntlmTransport) send(req *http.Request, rewind func() (io.ReadCloser, error), authorization string) (*http.Response, error) {
	out := req.Clone(req.Context())
	body, err := rewind()
	if err != nil {
		return nil, err
	}
	out.Body = body
	out.Header.Del("Authorization")
	if authorization != "" {
		out.Header.Set("Authorization", authorization)
	}
	return t.base.RoundTrip(out)
}

// rewinder returns a func yielding a fresh copy of the request body.
func rewinder(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return func() (io.ReadCloser, error) { return http.NoBody, nil }, nil
	}
	if req.GetBody != nil {
		return req.GetBody, nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, err
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, nil
}

func discard(res *http.Response) {
	_, _ = io.Copy(io.Discard, res.Body)
	res.Body.Close()
}

// ntlmScheme picks the scheme to answer from the server's challenges:
// NTLM if offered, else Negotiate, else none.
func ntlmScheme(challenges []string) string {
	var negotiate bool
	for _, c := range challenges {
		switch {
		case hasScheme(c, "NTLM"):
			return "NTLM"
		case hasScheme(c, "Negotiate"):
			negotiate = true
		}
	}
	if negotiate {
		return "Negotiate"
	}
	return ""
}

// ntlmChallenge decodes the type 2 message carried by the scheme's
// challenge. It returns nil if the server sent none.
func ntlmChallenge(challenges []string, scheme string) ([]byte, error) {
	for _, c := range challenges {
		if !hasScheme(c, scheme) {
			continue
		}
		_, data, ok := strings.Cut(strings.TrimSpace(c), " ")
		if !ok || strings.TrimSpace(data) == "" {
			continue
		}
		msg, err := base64.StdEncoding.DecodeString(strings.TrimSpace(data))
		if err != nil {
			return nil, errors.New("malformed ntlm challenge")
		}
		return msg, nil
	}
	return nil, nil
}

func hasScheme(challenge, scheme string) bool {
	name, _, _ := strings.Cut(strings.TrimSpace(challenge), " ")
	return strings.EqualFold(name, scheme)
}
