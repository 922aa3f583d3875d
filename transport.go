package rpflow

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

// DefaultRequestTimeout bounds each outbound call to the provider, covering
// connection setup through reading the response body. Timeouts classify as
// ErrTransport.
const DefaultRequestTimeout = 10 * time.Second

// newHTTPClient creates the pooled http client used for all provider calls.
// The optional caPEM overrides the installed system CA chain.
func newHTTPClient(caPEM string, timeout time.Duration) (*http.Client, error) {
	const op = "rpflow.newHTTPClient"
	tr := cleanhttp.DefaultPooledTransport()

	if caPEM != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(caPEM)); !ok {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		tr.TLSClientConfig = &tls.Config{
			RootCAs: certPool,
		}
	}

	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}
