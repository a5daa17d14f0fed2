package service

import (
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/haatos/forgeci/internal"
	"github.com/haatos/forgeci/internal/settings"
	"github.com/labstack/echo/v4"
)

// CookieService binds a setup session to the browser that started it. The
// callback handler compares the cookie's state to the provider's state
// query parameter, so a callback forged for someone else's session is
// rejected before any exchange.
type CookieService struct {
	s *securecookie.SecureCookie
}

func NewCookieService(hashKey, blockKey []byte) *CookieService {
	return &CookieService{
		s: securecookie.New(hashKey, blockKey),
	}
}

func (cs *CookieService) GetSetupState(c echo.Context) (string, error) {
	cookie, err := c.Cookie(internal.SetupStateCookie)
	if err != nil {
		return "", err
	}
	values := make(map[string]string)
	if err := cs.s.Decode(internal.SetupStateCookie, cookie.Value, &values); err != nil {
		return "", err
	}
	return values["state"], nil
}

func (cs *CookieService) SetSetupStateCookie(c echo.Context, state string, expires time.Time) error {
	encoded, err := cs.s.Encode(internal.SetupStateCookie, map[string]string{"state": state})
	if err != nil {
		return err
	}
	c.SetCookie(&http.Cookie{
		Name:     internal.SetupStateCookie,
		Value:    encoded,
		Path:     "/setup",
		Secure:   settings.Settings.Domain != "localhost",
		HttpOnly: true,
		Expires:  expires,
		Domain:   settings.Settings.Domain,
	})
	return nil
}

func (cs *CookieService) RemoveSetupStateCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     internal.SetupStateCookie,
		Value:    "",
		Path:     "/setup",
		Secure:   settings.Settings.Domain != "localhost",
		HttpOnly: true,
		Expires:  time.Now().UTC(),
		Domain:   settings.Settings.Domain,
	})
}
