package drl

import "net/http"

// transport implements http.RoundTripper and consumes quota before
// forwarding requests to the underlying transport.
type transport struct {
	target *Target
	base   http.RoundTripper
}

// Transport wraps an http.RoundTripper so that every request made through it
// consumes one unit of the target's quota. Requests that don't fit fail with
// *ExceededError and never reach the base transport.
func (t *Target) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &transport{target: t, base: base}
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.target.Consume(req.Context(), 1); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}
