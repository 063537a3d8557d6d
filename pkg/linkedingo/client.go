package linkedingo

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/proxy"
)

const (
	linkedInBaseURL         = "https://www.linkedin.com"
	logoutURL               = linkedInBaseURL + "/uas/logout"
	realtimeConnectURL      = linkedInBaseURL + "/realtime/connect"
	apiBaseURL              = linkedInBaseURL + "/voyager/api"
	connectivityTrackingURL = linkedInBaseURL + "/realtime/realtimeFrontendClientConnectivityTracking"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

const xLiTrack = `{"clientVersion":"1.13.8751","mpVersion":"1.13.8751","osName":"web","timezoneOffset":-7,"timezone":"America/Denver","deviceFormFactor":"DESKTOP","mpName":"voyager-web","displayDensity":1,"displayWidth":2560,"displayHeight":1440}`

var defaultHeaders = map[string]string{
	"user-agent":                userAgent,
	"accept-language":           "en-US,en;q=0.9",
	"x-li-lang":                 "en_US",
	"x-restli-protocol-version": "2.0.0",
	"x-li-track":                xLiTrack,
	"referer":                   linkedInBaseURL + "/feed/",
	"sec-ch-ua":                 `"Not_A Brand";v="8", "Chromium";v="120"`,
	"sec-ch-ua-mobile":          "?0",
	"sec-ch-ua-platform":        `"Linux"`,
	"sec-fetch-dest":            "empty",
	"sec-fetch-mode":            "cors",
	"sec-fetch-site":            "same-origin",
	"x-li-page-instance":        "urn:li:page:feed_index_index;bcfe9fd6-239a-49e9-af15-44b7e5895eaa",
	"x-li-recipe-accept":        "application/vnd.linkedin.normalized+json+2.1",
}

// Client talks to LinkedIn's private Voyager messaging API and realtime
// event stream using browser session cookies.
type Client struct {
	Log zerolog.Logger

	http    *http.Client
	cookies *Cookies

	// headerOverrides replay headers captured from a real browser session so
	// the requests match the session the cookies came from.
	headerOverrides map[string]string

	listenersLock    sync.RWMutex
	eventListeners   map[string][]EventListener
	rawListeners     []RawListener
	timeoutListeners []TimeoutListener

	sessionLock       sync.Mutex
	realtimeSessionID string
}

func NewClient(log zerolog.Logger, cookies *Cookies, headerOverrides map[string]string) *Client {
	if cookies == nil {
		cookies = NewCookies()
	}
	if headerOverrides == nil {
		headerOverrides = map[string]string{}
	}
	return &Client{
		Log:     log,
		cookies: cookies,
		http: &http.Client{
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 40 * time.Second,
				ForceAttemptHTTP2:     true,
			},
			// Redirects on the API mean the login wall; they are handled as
			// responses, never followed.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
			Timeout: 60 * time.Second,
		},
		headerOverrides: headerOverrides,
		eventListeners:  make(map[string][]EventListener),
	}
}

func (c *Client) Cookies() *Cookies {
	return c.cookies
}

func (c *Client) SetProxy(addr string) error {
	parsed, err := url.Parse(addr)
	if err != nil {
		return err
	}
	transport := c.http.Transport.(*http.Transport)
	switch parsed.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(parsed)
	case "socks5":
		dialer, err := proxy.FromURL(parsed, &net.Dialer{Timeout: 20 * time.Second})
		if err != nil {
			return err
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
		if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = contextDialer.DialContext
		}
	}
	c.Log.Debug().
		Str("scheme", parsed.Scheme).
		Str("host", parsed.Host).
		Msg("Using proxy")
	return nil
}

func (c *Client) buildHeaders(extra map[string]string) http.Header {
	headers := make(http.Header, len(defaultHeaders)+len(extra)+3)
	for k, v := range defaultHeaders {
		headers.Set(k, v)
	}
	for k, v := range c.headerOverrides {
		headers.Set(k, v)
	}
	headers.Set("cookie", c.cookies.String())
	if token := c.cookies.CSRFToken(); token != "" {
		headers.Set("csrf-token", token)
	}
	c.sessionLock.Lock()
	if c.realtimeSessionID != "" {
		headers.Set("x-li-realtime-session", c.realtimeSessionID)
	}
	c.sessionLock.Unlock()
	for k, v := range extra {
		headers.Set(k, v)
	}
	return headers
}

func (c *Client) HasAuthCookies() bool {
	return c.cookies.HasAuthCookies()
}

// LoggedIn probes the session by fetching the user's own profile.
func (c *Client) LoggedIn(ctx context.Context) bool {
	if !c.HasAuthCookies() {
		return false
	}
	_, err := c.GetUserProfile(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to get own profile to check login status")
		return false
	}
	return true
}

// GetUserProfile returns the logged-in member's profile. It doubles as the
// liveness probe for the session cookies.
func (c *Client) GetUserProfile(ctx context.Context) (*UserProfileResponse, error) {
	return request[UserProfileResponse](ctx, c, http.MethodGet, apiBaseURL+"/me", nil)
}

// Logout invalidates the session server-side and clears the cookie store.
func (c *Client) Logout(ctx context.Context) error {
	token := c.cookies.CSRFToken()
	if token == "" {
		return nil
	}
	// The logout endpoint answers with a 303 redirect on success.
	_, _, err := c.rawRequest(ctx, http.MethodGet, logoutURL, &reqOptions{
		query:          url.Values{"csrfToken": {token}},
		allowRedirects: true,
	})
	c.cookies.Clear()
	return err
}

// DownloadProfilePicture fetches the largest artifact of a profile picture.
func (c *Client) DownloadProfilePicture(ctx context.Context, picture *Picture) ([]byte, error) {
	if picture == nil || picture.VectorImage == nil || len(picture.VectorImage.Artifacts) == 0 {
		return nil, ErrNoProfilePicture
	}
	vi := picture.VectorImage
	url := vi.RootURL + vi.Artifacts[len(vi.Artifacts)-1].FileIdentifyingURLPathSegment
	return c.DownloadMedia(ctx, url)
}
