package config

import (
	"net/http"
	"time"
)

type CookieSameSite string

const (
	CookieSameSiteNone   CookieSameSite = "None"
	CookieSameSiteLax    CookieSameSite = "Lax"
	CookieSameSiteStrict CookieSameSite = "Strict"
)

type CookieTemplate struct {
	Name     string         `yaml:"name" default:"__Host-connector-session"`
	MaxAge   int            `yaml:"maxAge"`
	Path     string         `yaml:"path" default:"/"`
	Domain   string         `yaml:"domain"`
	Secure   bool           `yaml:"secure" default:"true"`
	SameSite CookieSameSite `yaml:"sameSite" default:"Lax"`
	HTTPOnly bool           `yaml:"httpOnly" default:"true"`
}

func (ct *CookieTemplate) ToCookie(value string) *http.Cookie {
	var sameSite http.SameSite
	switch ct.SameSite {
	case CookieSameSiteNone:
		sameSite = http.SameSiteNoneMode
	case CookieSameSiteLax:
		sameSite = http.SameSiteLaxMode
	case CookieSameSiteStrict:
		sameSite = http.SameSiteStrictMode
	}

	return &http.Cookie{
		Name:     ct.Name,
		Value:    value,
		MaxAge:   ct.MaxAge,
		Path:     ct.Path,
		Domain:   ct.Domain,
		Secure:   ct.Secure,
		HttpOnly: ct.HTTPOnly,
		SameSite: sameSite,
	}
}

// ToExpiredCookie returns a cookie that makes the browser drop the current one.
func (ct *CookieTemplate) ToExpiredCookie() *http.Cookie {
	c := ct.ToCookie("")
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)

	return c
}
