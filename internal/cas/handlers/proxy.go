package handlers

import (
	"context"
	"net/url"

	"github.com/zeromicro/go-zero/core/logx"
)

// HTTPSCallbackValidator is the default cas.ProxyCallbackValidator: it
// accepts only https callback URLs, the same restriction the CAS proxy
// protocol places on pgtUrl so a proxy-granting-ticket IOU is never
// handed to an endpoint that could leak it over plaintext.
type HTTPSCallbackValidator struct{}

func NewHTTPSCallbackValidator() HTTPSCallbackValidator { return HTTPSCallbackValidator{} }

func (HTTPSCallbackValidator) ValidateCallback(ctx context.Context, callbackURL string) bool {
	u, err := url.Parse(callbackURL)
	if err != nil {
		logx.WithContext(ctx).Errorf("proxy: malformed callback url %q: %v", callbackURL, err)
		return false
	}
	if u.Scheme != "https" || u.Host == "" {
		logx.WithContext(ctx).Infof("proxy: rejecting non-https callback url %q", callbackURL)
		return false
	}
	return true
}
