package linkedingo

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	CookieLiAt       = "li_at"
	CookieJSESSIONID = "JSESSIONID"
)

// Cookies is a flat cookie store for the linkedin.com domain. The bridge
// persists it per user, so it is a plain name→value map rather than an
// http.CookieJar.
type Cookies struct {
	store map[string]string
	lock  sync.RWMutex
}

func NewCookies() *Cookies {
	return &Cookies{store: make(map[string]string)}
}

func NewCookiesFromMap(cookies map[string]string) *Cookies {
	c := NewCookies()
	for k, v := range cookies {
		c.store[k] = v
	}
	return c
}

// NewCookiesFromString parses a Cookie request header value ("k=v; k2=v2").
func NewCookiesFromString(cookieStr string) *Cookies {
	c := NewCookies()
	fakeHeader := http.Header{}
	for _, part := range strings.Split(cookieStr, ";") {
		if part = strings.TrimSpace(part); part != "" {
			fakeHeader.Add("Set-Cookie", part)
		}
	}
	for _, cookie := range (&http.Response{Header: fakeHeader}).Cookies() {
		c.store[cookie.Name] = cookie.Value
	}
	return c
}

func (c *Cookies) Get(name string) string {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.store[name]
}

func (c *Cookies) Set(name, value string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.store[name] = value
}

func (c *Cookies) Map() map[string]string {
	c.lock.RLock()
	defer c.lock.RUnlock()
	out := make(map[string]string, len(c.store))
	for k, v := range c.store {
		out[k] = v
	}
	return out
}

// String renders the store as a Cookie request header value, sorted for
// stable output.
func (c *Cookies) String() string {
	c.lock.RLock()
	defer c.lock.RUnlock()
	parts := make([]string, 0, len(c.store))
	for k, v := range c.store {
		parts = append(parts, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// CSRFToken returns the JSESSIONID value with surrounding quotes stripped,
// which is what the csrf-token header must carry.
func (c *Cookies) CSRFToken() string {
	return strings.Trim(c.Get(CookieJSESSIONID), `"`)
}

func (c *Cookies) HasAuthCookies() bool {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.store[CookieLiAt] != "" && c.store[CookieJSESSIONID] != ""
}

func (c *Cookies) Clear() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.store = make(map[string]string)
}

// UpdateFromResponse applies Set-Cookie headers, dropping expired entries.
func (c *Cookies) UpdateFromResponse(resp *http.Response) {
	c.lock.Lock()
	defer c.lock.Unlock()
	for _, cookie := range resp.Cookies() {
		if cookie.MaxAge < 0 || (!cookie.Expires.IsZero() && cookie.Expires.Before(time.Now())) {
			delete(c.store, cookie.Name)
		} else if cookie.Value != "" {
			c.store[cookie.Name] = cookie.Value
		}
	}
}
