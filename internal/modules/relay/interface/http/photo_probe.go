package handler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

var errBlockedAddress = errors.New("image host resolves to a non-public address")

// PhotoProbe 发送图片前确认链接可访问
type PhotoProbe interface {
	Check(ctx context.Context, url string) error
}

type restyProbe struct {
	client *resty.Client
}

// NewPhotoProbe 链接来自模型输出，只允许访问公网地址
func NewPhotoProbe(timeout time.Duration) PhotoProbe {
	return newPhotoProbe(timeout, isPublicIP)
}

func newPhotoProbe(timeout time.Duration, allow func(net.IP) bool) PhotoProbe {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	transport := &http.Transport{
		DialContext:         guardedDial(allow),
		TLSHandshakeTimeout: timeout,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &restyProbe{
		client: resty.New().
			SetTransport(transport).
			SetTimeout(timeout).
			SetRedirectPolicy(resty.FlexibleRedirectPolicy(5)),
	}
}

func (p *restyProbe) Check(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("probe %s: unsupported url", rawURL)
	}

	res, err := p.client.R().SetContext(ctx).Head(rawURL)
	if err != nil {
		return fmt.Errorf("probe %s: %w", rawURL, err)
	}
	// 部分图床不支持 HEAD
	if res.StatusCode() == http.StatusMethodNotAllowed {
		return nil
	}
	if !res.IsSuccess() {
		return fmt.Errorf("probe %s: status %d", rawURL, res.StatusCode())
	}
	return nil
}

// guardedDial 解析后校验全部地址，再直连解析出的 IP，重定向同样经过这里
func guardedDial(allow func(net.IP) bool) func(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, err
		}
		if len(ips) == 0 {
			return nil, fmt.Errorf("no address for %s", host)
		}
		for _, ip := range ips {
			if !allow(ip.IP) {
				return nil, fmt.Errorf("%s (%s): %w", host, ip.IP, errBlockedAddress)
			}
		}
		return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].IP.String(), port))
	}
}

var sharedAddressSpace = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

func isPublicIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast() {
		return false
	}
	return !sharedAddressSpace.Contains(ip)
}
