package soapcalls

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	soapHTTPClientTimeout         = 20 * time.Second
	soapHTTPDialTimeout           = 5 * time.Second
	soapHTTPKeepAlive             = 30 * time.Second
	soapHTTPTLSHandshakeTimeout   = 5 * time.Second
	soapHTTPResponseHeaderTimeout = 10 * time.Second
	soapHTTPExpectContinueTimeout = 1 * time.Second
	soapHTTPIdleConnTimeout       = 90 * time.Second
)

var soapHTTPTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   soapHTTPDialTimeout,
		KeepAlive: soapHTTPKeepAlive,
	}).DialContext,
	TLSHandshakeTimeout:   soapHTTPTLSHandshakeTimeout,
	ResponseHeaderTimeout: soapHTTPResponseHeaderTimeout,
	ExpectContinueTimeout: soapHTTPExpectContinueTimeout,
	IdleConnTimeout:       soapHTTPIdleConnTimeout,
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout:   soapHTTPClientTimeout,
		Transport: soapHTTPTransport,
	}
}

// soapRetryPolicy retries transport errors only. UPnP faults come back as
// HTTP 500 and are final.
func soapRetryPolicy(ctx context.Context, _ *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return err != nil, nil
}

func newRetryableHTTPClient(retryMax int) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = retryMax
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.CheckRetry = soapRetryPolicy
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = nil
	retryClient.HTTPClient = newHTTPClient()

	return retryClient.StandardClient()
}
