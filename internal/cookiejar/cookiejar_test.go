package cookiejar

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJar_GetCookiesMatchesAncestorPaths(t *testing.T) {
	j := New()
	j.Set("session", "abc", "/")
	j.Set("admin", "xyz", "/admin")

	root := j.GetCookies("/")
	assert.Equal(t, map[string]string{"session": "abc"}, root)

	admin := j.GetCookies("/admin/users")
	assert.Equal(t, map[string]string{"session": "abc", "admin": "xyz"}, admin)

	other := j.GetCookies("/public")
	assert.Equal(t, map[string]string{"session": "abc"}, other)
}

func TestJar_MergeUserCookiesWinOnCollision(t *testing.T) {
	j := New()
	j.Set("session", "from-jar", "/")

	merged := j.Merge("/", map[string]string{"session": "from-caller", "extra": "1"})
	assert.Equal(t, "from-caller", merged["session"])
	assert.Equal(t, "1", merged["extra"])
}

func TestJar_ApplySetCookieHeaderHandlesMultipleAndClear(t *testing.T) {
	j := New()
	j.Set("stale", "old", "/")

	header := SerializeSetCookieHeader([]string{
		SerializeSetCookie(Cookie{Name: "a", Value: "1", Path: "/"}),
		SerializeSetCookie(Cookie{Name: "stale", Value: "", Path: "/"}),
	})
	j.ApplySetCookieHeader(header)

	got := j.GetCookies("/")
	assert.Equal(t, "1", got["a"])
	_, stillThere := got["stale"]
	assert.False(t, stillThere)
}

func TestParseSetCookie_DefaultsPathToRoot(t *testing.T) {
	c, ok := ParseSetCookie("name=value")
	assert.True(t, ok)
	assert.Equal(t, "/", c.Path)
}
