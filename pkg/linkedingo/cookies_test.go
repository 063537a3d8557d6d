package linkedingo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/beeper/linkedin/pkg/linkedingo"
)

func TestCookies_FromString(t *testing.T) {
	c := linkedingo.NewCookiesFromString(`li_at=AQEDAQ; JSESSIONID="ajax:123456"; bcookie=v=2&x`)
	assert.Equal(t, "AQEDAQ", c.Get(linkedingo.CookieLiAt))
	assert.True(t, c.HasAuthCookies())
}

func TestCookies_CSRFTokenStripsQuotes(t *testing.T) {
	c := linkedingo.NewCookiesFromMap(map[string]string{
		linkedingo.CookieJSESSIONID: `"ajax:123456"`,
	})
	assert.Equal(t, "ajax:123456", c.CSRFToken())

	unquoted := linkedingo.NewCookiesFromMap(map[string]string{
		linkedingo.CookieJSESSIONID: "ajax:789",
	})
	assert.Equal(t, "ajax:789", unquoted.CSRFToken())
}

func TestCookies_String(t *testing.T) {
	c := linkedingo.NewCookiesFromMap(map[string]string{"b": "2", "a": "1"})
	assert.Equal(t, "a=1; b=2", c.String())
}

func TestCookies_HasAuthCookies(t *testing.T) {
	c := linkedingo.NewCookies()
	assert.False(t, c.HasAuthCookies())
	c.Set(linkedingo.CookieLiAt, "x")
	assert.False(t, c.HasAuthCookies())
	c.Set(linkedingo.CookieJSESSIONID, "y")
	assert.True(t, c.HasAuthCookies())
	c.Clear()
	assert.False(t, c.HasAuthCookies())
}
