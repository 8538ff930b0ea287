package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/teranos/dataq/errors"
)

// SaferClient wraps http.Client with SSRF protection for calls to hosted
// generation services.
type SaferClient struct {
	*http.Client
	allowedSchemes []string
	blockPrivateIP bool
	maxRedirects   int
}

// Options customizes a SaferClient
type Options struct {
	AllowedSchemes []string // default: http, https
	MaxRedirects   int      // default: 10
	AllowPrivateIP bool
}

// NewSaferClient creates an HTTP client that refuses private, loopback and
// link-local destinations, both by hostname and after DNS resolution.
func NewSaferClient(timeout time.Duration) *SaferClient {
	return NewSaferClientWithOptions(timeout, Options{})
}

// NewSaferClientWithOptions creates a SaferClient with custom options
func NewSaferClientWithOptions(timeout time.Duration, opts Options) *SaferClient {
	c := &SaferClient{
		Client:         &http.Client{Timeout: timeout},
		allowedSchemes: opts.AllowedSchemes,
		blockPrivateIP: !opts.AllowPrivateIP,
		maxRedirects:   opts.MaxRedirects,
	}
	if c.allowedSchemes == nil {
		c.allowedSchemes = []string{"http", "https"}
	}
	if c.maxRedirects == 0 {
		c.maxRedirects = 10
	}

	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= c.maxRedirects {
			return errors.Newf("stopped after %d redirects", c.maxRedirects)
		}
		if err := c.validateURL(req.URL); err != nil {
			return errors.Wrap(err, "redirect blocked")
		}
		return nil
	}

	if c.blockPrivateIP {
		dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
		c.Transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				host, _, err := net.SplitHostPort(addr)
				if err != nil {
					return nil, errors.Wrap(err, "invalid address")
				}
				ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
				if err != nil {
					return nil, errors.Wrapf(err, "failed to resolve host %q", host)
				}
				for _, ip := range ips {
					if isPrivateIP(ip) {
						return nil, errors.Newf("private IP address blocked: %s", ip)
					}
				}
				return dialer.DialContext(ctx, network, addr)
			},
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}
	}
	return c
}

// WrapClient wraps client without private address blocking.
// Tests use it to reach httptest servers on loopback.
func WrapClient(client *http.Client) *SaferClient {
	return &SaferClient{
		Client:         client,
		allowedSchemes: []string{"http", "https"},
		maxRedirects:   10,
	}
}

// ValidateURL parses and checks a URL before a request is built
func (c *SaferClient) ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "invalid URL")
	}
	if err := c.validateURL(u); err != nil {
		return nil, err
	}
	return u, nil
}

// Do executes req after validating its URL
func (c *SaferClient) Do(req *http.Request) (*http.Response, error) {
	if err := c.validateURL(req.URL); err != nil {
		return nil, errors.Wrap(err, "request blocked by SSRF protection")
	}
	return c.Client.Do(req)
}

func (c *SaferClient) validateURL(u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	if !slices.Contains(c.allowedSchemes, scheme) {
		return errors.Newf("scheme %q not allowed (allowed: %v)", scheme, c.allowedSchemes)
	}
	if u.User != nil {
		return errors.New("URL carries user info")
	}
	hostname := u.Hostname()
	if hostname == "" {
		return errors.New("URL missing hostname")
	}
	if c.blockPrivateIP {
		if isLocalhost(hostname) {
			return errors.New("localhost access blocked")
		}
		if ip := net.ParseIP(hostname); ip != nil && isPrivateIP(ip) {
			return errors.Newf("private IP address blocked: %s", hostname)
		}
	}
	return nil
}

var privateBlocks = []*net.IPNet{
	mustCIDR("10.0.0.0/8"),
	mustCIDR("172.16.0.0/12"),
	mustCIDR("192.168.0.0/16"),
	mustCIDR("127.0.0.0/8"),
	mustCIDR("169.254.0.0/16"),
	mustCIDR("0.0.0.0/8"),
	mustCIDR("224.0.0.0/4"),
	mustCIDR("240.0.0.0/4"),
	mustCIDR("fc00::/7"),
	mustCIDR("fec0::/10"),
	mustCIDR("2001:db8::/32"),
}

func mustCIDR(s string) *net.IPNet {
	_, n, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return n
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsMulticast() || ip.IsUnspecified() {
		return true
	}
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
	}
	for _, block := range privateBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

func isLocalhost(hostname string) bool {
	hostname = strings.ToLower(hostname)
	return hostname == "localhost" ||
		hostname == "localhost.localdomain" ||
		strings.HasSuffix(hostname, ".localhost")
}
