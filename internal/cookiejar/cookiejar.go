// Package cookiejar implements the client-side, path-scoped cookie
// store (§4.11): parsing and serializing Set-Cookie values, ancestor
// path matching when a request is about to go out, and merging jar
// cookies with whatever the caller set explicitly on that request (the
// caller always wins on a name collision).
package cookiejar

import (
	"strconv"
	"strings"
	"sync"
)

// setCookieDelim joins multiple Set-Cookie values onto the envelope's
// single "set-cookie" header entry, since Envelope.Headers is
// map[string]string rather than a multi-value header list. It was
// chosen because ';' and ',' both appear inside legitimate cookie
// attributes, while a bare newline never does.
const setCookieDelim = "\n"

// Cookie is one stored cookie, scoped to the path it was set for, with
// the attribute set §4.11 and §4.9's setCookie/cookie() accept.
type Cookie struct {
	Name     string
	Value    string
	Path     string
	MaxAge   *int
	Secure   bool
	HTTPOnly bool
	SameSite string
}

// Options are the optional attributes accepted by Jar.SetWithOptions and
// the server role's res.cookie(). There is no Expires attribute, and
// MaxAge is stored and serialized but not enforced locally — bridgehub
// cookies live only as long as the two windows' shared jar does.
type Options struct {
	Path     string
	MaxAge   *int
	Secure   bool
	HTTPOnly bool
	SameSite string
}

// Jar is a path-scoped cookie store. Safe for concurrent use.
type Jar struct {
	mu      sync.Mutex
	cookies map[string]Cookie // keyed by name+"\x00"+path
}

// New creates an empty Jar.
func New() *Jar {
	return &Jar{cookies: make(map[string]Cookie)}
}

func key(name, path string) string { return name + "\x00" + path }

// Set upserts a cookie. An empty path defaults to "/".
func (j *Jar) Set(name, value, path string) {
	j.SetWithOptions(name, value, Options{Path: path})
}

// SetWithOptions upserts a cookie with the full attribute set (§4.11's
// setCookie).
func (j *Jar) SetWithOptions(name, value string, opts Options) {
	path := opts.Path
	if path == "" {
		path = "/"
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cookies[key(name, path)] = Cookie{
		Name: name, Value: value, Path: path,
		MaxAge: opts.MaxAge, Secure: opts.Secure, HTTPOnly: opts.HTTPOnly, SameSite: opts.SameSite,
	}
}

// Clear removes a cookie by name and path (the same path it was set
// with — clearCookie must match the original scope to take effect).
func (j *Jar) Clear(name, path string) {
	if path == "" {
		path = "/"
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.cookies, key(name, path))
}

// GetCookie returns the first cookie matching name regardless of path,
// and whether one was found.
func (j *Jar) GetCookie(name string) (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, c := range j.cookies {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// RemoveCookie removes every stored cookie with the given name,
// regardless of path.
func (j *Jar) RemoveCookie(name string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for k, c := range j.cookies {
		if c.Name == name {
			delete(j.cookies, k)
		}
	}
}

// ClearCookies empties the jar.
func (j *Jar) ClearCookies() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cookies = make(map[string]Cookie)
}

// pathMatch implements RFC 6265 §5.1.4 path-match: cookiePath is an
// ancestor of requestPath if requestPath equals it, or starts with it
// and either cookiePath ends in "/" or the next requestPath character is
// "/".
func pathMatch(cookiePath, requestPath string) bool {
	if cookiePath == requestPath {
		return true
	}
	if !strings.HasPrefix(requestPath, cookiePath) {
		return false
	}
	if strings.HasSuffix(cookiePath, "/") {
		return true
	}
	return requestPath[len(cookiePath)] == '/'
}

// GetCookies returns every jar cookie whose path is an ancestor of
// forPath, as a name->value map.
func (j *Jar) GetCookies(forPath string) map[string]string {
	if forPath == "" {
		forPath = "/"
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make(map[string]string)
	for _, c := range j.cookies {
		if pathMatch(c.Path, forPath) {
			out[c.Name] = c.Value
		}
	}
	return out
}

// Merge combines jar cookies scoped to forPath with userCookies (cookies
// the caller set explicitly on this particular request), with
// userCookies winning on a name collision (§4.11).
func (j *Jar) Merge(forPath string, userCookies map[string]string) map[string]string {
	out := j.GetCookies(forPath)
	for k, v := range userCookies {
		out[k] = v
	}
	return out
}

// ApplySetCookie parses a raw Set-Cookie value and stores it, or removes
// it from the jar if its value is empty (the clearCookie convention).
func (j *Jar) ApplySetCookie(raw string) {
	c, ok := ParseSetCookie(raw)
	if !ok {
		return
	}
	if c.Value == "" {
		j.Clear(c.Name, c.Path)
		return
	}
	j.Set(c.Name, c.Value, c.Path)
}

// ApplySetCookieHeader splits a combined header value (see
// SerializeSetCookieHeader) and applies each one.
func (j *Jar) ApplySetCookieHeader(header string) {
	if header == "" {
		return
	}
	for _, raw := range strings.Split(header, setCookieDelim) {
		j.ApplySetCookie(raw)
	}
}

// ParseSetCookie parses a single "name=value; Path=/foo" Set-Cookie
// value. Path, SameSite, Secure and HttpOnly are recognized; any other
// attribute (Max-Age, Expires, Domain) is ignored.
func ParseSetCookie(raw string) (Cookie, bool) {
	parts := strings.Split(raw, ";")
	if len(parts) == 0 {
		return Cookie{}, false
	}
	name, value, ok := strings.Cut(strings.TrimSpace(parts[0]), "=")
	if !ok || name == "" {
		return Cookie{}, false
	}
	c := Cookie{Name: name, Value: value, Path: "/"}
	for _, attr := range parts[1:] {
		attr = strings.TrimSpace(attr)
		k, v, _ := strings.Cut(attr, "=")
		switch {
		case strings.EqualFold(k, "Path"):
			c.Path = v
		case strings.EqualFold(k, "SameSite"):
			c.SameSite = v
		case strings.EqualFold(k, "Secure"):
			c.Secure = true
		case strings.EqualFold(k, "HttpOnly"):
			c.HTTPOnly = true
		}
	}
	return c, true
}

// SerializeSetCookie renders a Cookie back into its Set-Cookie wire
// form, including whichever optional attributes it carries.
func SerializeSetCookie(c Cookie) string {
	path := c.Path
	if path == "" {
		path = "/"
	}
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte('=')
	b.WriteString(c.Value)
	b.WriteString("; Path=")
	b.WriteString(path)
	if c.MaxAge != nil {
		b.WriteString("; Max-Age=")
		b.WriteString(strconv.Itoa(*c.MaxAge))
	}
	if c.SameSite != "" {
		b.WriteString("; SameSite=")
		b.WriteString(c.SameSite)
	}
	if c.Secure {
		b.WriteString("; Secure")
	}
	if c.HTTPOnly {
		b.WriteString("; HttpOnly")
	}
	return b.String()
}

// SerializeSetCookieHeader combines multiple Set-Cookie values onto one
// header entry.
func SerializeSetCookieHeader(raws []string) string {
	return strings.Join(raws, setCookieDelim)
}
