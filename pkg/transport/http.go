package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/proxy"

	"github.com/dtnitsch/pixbatch/pkg/apierr"
)

// DefaultTimeout applies when neither the request nor the sender sets one.
const DefaultTimeout = 30 * time.Second

var proxyEnvVars = []string{"HTTPS_PROXY", "https_proxy", "HTTP_PROXY", "http_proxy"}

// HTTPSender is the net/http implementation of Sender. It is safe for
// concurrent use; all callers share one *http.Client per proxy target.
type HTTPSender struct {
	// TLSConfig is used for every connection. Nil means system defaults.
	TLSConfig *tls.Config
	// Timeout is the default per-call timeout.
	Timeout time.Duration

	getenv func(string) string

	mu     sync.Mutex
	proxy  string
	client *http.Client
	target string
	built  bool
}

// NewHTTPSender returns a sender that routes through proxyURL, or through the
// standard proxy environment variables when proxyURL is empty.
func NewHTTPSender(proxyURL string) *HTTPSender {
	return &HTTPSender{
		Timeout: DefaultTimeout,
		getenv:  os.Getenv,
		proxy:   proxyURL,
	}
}

// SetProxy changes the configured proxy. The cached client is rebuilt on
// the next call if the effective target changed.
func (s *HTTPSender) SetProxy(proxyURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proxy = proxyURL
}

func (s *HTTPSender) Send(ctx context.Context, req *Request) (*Response, error) {
	target, err := EnsureHTTPS(req.URL, false)
	if err != nil {
		return nil, err
	}

	client, err := s.clientFor()
	if err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(callCtx, method, target, body)
	if err != nil {
		return nil, apierr.New(apierr.KindInvalidRequest, "failed to create request", apierr.WithCause(err))
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, networkError(ctx, callCtx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, networkError(ctx, callCtx, err)
	}

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// networkError classifies a failed round trip. Cancellation of the caller's
// context is returned as-is so retry loops stop.
func networkError(parent, call context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	msg := "network error while calling service"
	if errors.Is(call.Err(), context.DeadlineExceeded) {
		msg = "request timed out"
	}
	return apierr.New(apierr.KindTemporary, msg, apierr.WithCause(err))
}

// proxyTarget returns the effective proxy URL. Callers hold s.mu.
func (s *HTTPSender) proxyTarget() string {
	if p := strings.TrimSpace(s.proxy); p != "" {
		return p
	}
	getenv := s.getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	for _, k := range proxyEnvVars {
		if v := strings.TrimSpace(getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

// clientFor returns the cached client, building it on first use and
// replacing it when the proxy target has changed.
func (s *HTTPSender) clientFor() (*http.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.proxyTarget()
	if s.built && target == s.target {
		return s.client, nil
	}

	client, err := buildClient(target, s.TLSConfig)
	if err != nil {
		return nil, err
	}
	if s.client != nil {
		s.client.CloseIdleConnections()
	}
	s.client = client
	s.target = target
	s.built = true
	return client, nil
}

func buildClient(proxyURL string, tlsConfig *tls.Config) (*http.Client, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.Proxy = nil
	if tlsConfig != nil {
		tr.TLSClientConfig = tlsConfig.Clone()
	}

	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil || u.Host == "" {
			return nil, invalidProxy(proxyURL, err)
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			tr.Proxy = http.ProxyURL(u)
		case "socks5", "socks5h":
			dialer, err := proxy.FromURL(u, proxy.Direct)
			if err != nil {
				return nil, invalidProxy(proxyURL, err)
			}
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				tr.DialContext = cd.DialContext
			} else {
				tr.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
					return dialer.Dial(network, addr)
				}
			}
		default:
			return nil, invalidProxy(proxyURL, fmt.Errorf("unsupported proxy scheme %q", u.Scheme))
		}
	}

	return &http.Client{Transport: tr}, nil
}

func invalidProxy(raw string, cause error) error {
	return apierr.New(apierr.KindInvalidRequest, "invalid proxy URL",
		apierr.WithCode(-104), apierr.WithPayload(raw), apierr.WithCause(cause))
}
