package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	AccessCookieName  = "access_token"
	RefreshCookieName = "refresh_token"
)

// CookieConfig 控制令牌 Cookie 属性。
type CookieConfig struct {
	Secure bool
	Domain string
}

func (cc CookieConfig) set(c *gin.Context, name, value string, maxAge int) {
	// 跨站场景要求 SameSite=None，而浏览器只接受带 Secure 的 None
	if cc.Secure {
		c.SetSameSite(http.SameSiteNoneMode)
	} else {
		c.SetSameSite(http.SameSiteLaxMode)
	}
	c.SetCookie(name, value, maxAge, "/", cc.Domain, cc.Secure, true)
}

// SetTokenCookies 写入 access 与 refresh 两个 Cookie。
func (cc CookieConfig) SetTokenCookies(c *gin.Context, pair TokenPair) {
	cc.SetAccessCookie(c, pair.Access, pair.AccessExpires)
	cc.set(c, RefreshCookieName, pair.Refresh, maxAgeUntil(pair.RefreshExpires))
}

// SetAccessCookie 只写入 access Cookie。
func (cc CookieConfig) SetAccessCookie(c *gin.Context, token string, expires time.Time) {
	cc.set(c, AccessCookieName, token, maxAgeUntil(expires))
}

// ClearTokenCookies 让浏览器立即删除两个令牌 Cookie。
func (cc CookieConfig) ClearTokenCookies(c *gin.Context) {
	cc.set(c, AccessCookieName, "", -1)
	cc.set(c, RefreshCookieName, "", -1)
}

func maxAgeUntil(expires time.Time) int {
	secs := int(time.Until(expires).Seconds())
	if secs < 1 {
		return 1
	}
	return secs
}
