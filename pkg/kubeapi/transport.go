package kubeapi

import (
	"crypto/tls"
	"net/http"
	"net/url"
)

// NewTransport builds the single http.RoundTripper a client's transport is
// backed by. TLS and proxying are delegated entirely to net/http/crypto/tls
// (spec lists "TLS stack and HTTP/1.1 transport" as a deliberately
// out-of-scope external collaborator); this just wires the pieces
// ClientConfig resolved. gzip controls transparent request/response
// compression; net/http enables it by default, so DisableCompression is set
// whenever the caller's ClientConfig.Gzip is false.
func NewTransport(tlsConfig *tls.Config, proxyURL *url.URL, gzip bool) *Transport {
	rt := &http.Transport{TLSClientConfig: tlsConfig, DisableCompression: !gzip}
	if proxyURL != nil {
		rt.Proxy = http.ProxyURL(proxyURL)
	} else {
		rt.Proxy = http.ProxyFromEnvironment
	}
	return &Transport{RoundTripper: rt}
}

// Transport wraps the underlying http.RoundTripper. It exists as a named
// type so future cross-cutting concerns (request tracing, gzip) have a
// single place to attach without changing every call site's type.
type Transport struct {
	http.RoundTripper
}
