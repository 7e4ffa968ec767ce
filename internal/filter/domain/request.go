package domain

import "net/http"

// Request is one HTTP exchange as seen by the request filter, either plain
// HTTP or decrypted from an intercepted connection. Only URL takes part in
// filtering; the other fields are carried for logging and metrics.
type Request struct {
	Method     string
	URL        string
	Host       string
	ClientAddr string
	Header     http.Header
}

// RequestFromHTTP builds a Request from an incoming proxy request.
// Intercepted requests carry an absolute https URL; plain proxy requests carry
// an absolute http URL. Origin-form requests are completed from r.Host.
func RequestFromHTTP(r *http.Request) Request {
	u := *r.URL
	if u.Host == "" {
		u.Host = r.Host
	}
	if u.Scheme == "" {
		u.Scheme = "http"
		if r.TLS != nil {
			u.Scheme = "https"
		}
	}
	return Request{
		Method:     r.Method,
		URL:        u.String(),
		Host:       u.Host,
		ClientAddr: r.RemoteAddr,
		Header:     r.Header,
	}
}
