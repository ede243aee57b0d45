package proxyselect

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"

	"github.com/adrotate/suffixcore/internal/model"
)

// transportFor builds an *http.Transport that dials through one SOCKS5
// proxy provider with a rendered username/password, grounded on the
// teacher's OutboundTransportPool.newReusableOutboundTransport (custom
// DialContext wrapping an outbound dialer), adapted here to dial a flat
// SOCKS5 credential instead of a sing-box outbound adapter.
func transportFor(p model.ProxyProvider, username string) (*http.Transport, error) {
	auth := &proxy.Auth{User: username, Password: p.Password}
	addr := fmt.Sprintf("%s:%d", p.Host, p.Port)

	dialer, err := proxy.SOCKS5("tcp", addr, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("build socks5 dialer for %s: %w", addr, err)
	}

	dialContext := func(ctx context.Context, network, addr string) (net.Conn, error) {
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			return cd.DialContext(ctx, network, addr)
		}
		return dialer.Dial(network, addr)
	}

	return &http.Transport{
		DialContext:         dialContext,
		MaxIdleConns:        8,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   false, // tunneled SOCKS5 connections rarely benefit from h2 upgrade probing
	}, nil
}
