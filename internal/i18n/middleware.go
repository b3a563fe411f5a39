package i18n

import (
	"net/http"

	"golang.org/x/text/language"
)

// Middleware picks the request language from the ?lang query parameter or the
// Accept-Language header and injects a matching localizer into the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang := Negotiate(r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"))
		ctx := WithLocalizer(r.Context(), NewLocalizer(lang))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Negotiate returns the best supported language for the given preferences.
func Negotiate(prefs ...string) string {
	if matcher == nil {
		return defaultLang
	}
	var tags []language.Tag
	for _, p := range prefs {
		if p == "" {
			continue
		}
		parsed, _, err := language.ParseAcceptLanguage(p)
		if err != nil {
			continue
		}
		tags = append(tags, parsed...)
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return defaultLang
	}
	return Supported()[idx]
}
