package toolexecutor

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxHTTPBody = 5000

var blockedNetworks = func() []*net.IPNet {
	cidrs := []string{
		"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "127.0.0.0/8",
		"169.254.0.0/16", "0.0.0.0/8", "::1/128", "fc00::/7", "fe80::/10",
	}
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, _ := net.ParseCIDR(c)
		out = append(out, n)
	}
	return out
}()

// checkURL rejects non-HTTP schemes and hosts that resolve into private ranges.
func checkURL(ctx context.Context, raw string, allowPrivate bool) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("missing hostname")
	}
	if allowPrivate {
		return nil
	}
	if host == "metadata.google.internal" || host == "metadata.azure.internal" {
		return fmt.Errorf("blocked internal hostname: %s", host)
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("DNS resolution failed: %w", err)
	}
	for _, a := range addrs {
		for _, n := range blockedNetworks {
			if n.Contains(a.IP) {
				return fmt.Errorf("blocked private/internal address: %s", a.IP)
			}
		}
	}
	return nil
}

func httpRequestTool(client *http.Client, allowPrivate bool) ToolDefinition {
	return ToolDefinition{
		Name:        "http_request",
		Description: "Make an HTTP request to a URL. Supports GET, POST, PUT, PATCH, DELETE methods.",
		Parameters: []ToolParameter{
			{Name: "url", Type: "string", Description: "The URL to request", Required: true},
			{Name: "method", Type: "string", Description: "HTTP method (GET, POST, PUT, PATCH, DELETE). Default: GET", Default: "GET"},
			{Name: "headers", Type: "object", Description: "Optional request headers as key-value pairs"},
			{Name: "body", Type: "string", Description: "Optional request body (for POST, PUT, PATCH)"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			rawURL, _ := params["url"].(string)
			method, _ := params["method"].(string)
			method = strings.ToUpper(method)
			if method == "" {
				method = http.MethodGet
			}
			switch method {
			case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodHead:
			default:
				return nil, fmt.Errorf("unsupported method %s", method)
			}

			if err := checkURL(ctx, rawURL, allowPrivate); err != nil {
				return nil, fmt.Errorf("request blocked: %w", err)
			}

			var body io.Reader
			if b, ok := params["body"].(string); ok && b != "" &&
				(method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch) {
				body = strings.NewReader(b)
			}

			req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
			if err != nil {
				return nil, err
			}
			if headers, ok := params["headers"].(map[string]interface{}); ok {
				for k, v := range headers {
					req.Header.Set(k, fmt.Sprint(v))
				}
			}

			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			data, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPBody+1))
			if err != nil {
				return nil, err
			}
			text := string(data)
			if len(text) > maxHTTPBody {
				text = text[:maxHTTPBody] + "\n\n... (truncated)"
			}

			contentType := resp.Header.Get("Content-Type")
			if contentType == "" {
				contentType = "unknown"
			}
			return fmt.Sprintf("Status: %d\nContent-Type: %s\n\nBody:\n%s", resp.StatusCode, contentType, text), nil
		},
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}
