package toolexecutor

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPRequestTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/echo":
			body, _ := io.ReadAll(r.Body)
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte(r.Method + ":" + r.Header.Get("X-Test") + ":" + string(body)))
		case "/big":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte(strings.Repeat("a", maxHTTPBody+500)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	t.Run("should format status, content type and body", func(t *testing.T) {
		reg := New()
		require.NoError(t, reg.RegisterTool(httpRequestTool(newHTTPClient(5*time.Second), true)))

		result := reg.Execute(context.Background(), "http_request", map[string]interface{}{
			"url":     srv.URL + "/echo",
			"method":  "post",
			"headers": map[string]interface{}{"X-Test": "yes"},
			"body":    "payload",
		}, nil)

		require.True(t, result.Success, result.Error)
		assert.Equal(t, "Status: 200\nContent-Type: text/plain\n\nBody:\nPOST:yes:payload", result.Output)
	})

	t.Run("should truncate long bodies", func(t *testing.T) {
		reg := New()
		require.NoError(t, reg.RegisterTool(httpRequestTool(newHTTPClient(5*time.Second), true)))

		result := reg.Execute(context.Background(), "http_request", map[string]interface{}{"url": srv.URL + "/big"}, nil)

		require.True(t, result.Success, result.Error)
		assert.True(t, strings.HasSuffix(result.Output, "... (truncated)"))
	})

	t.Run("should block private addresses by default", func(t *testing.T) {
		reg := New()
		require.NoError(t, reg.RegisterTool(httpRequestTool(newHTTPClient(5*time.Second), false)))

		result := reg.Execute(context.Background(), "http_request", map[string]interface{}{"url": srv.URL + "/echo"}, nil)

		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "request blocked")
	})

	t.Run("should reject unsupported methods and schemes", func(t *testing.T) {
		reg := New()
		require.NoError(t, reg.RegisterTool(httpRequestTool(newHTTPClient(5*time.Second), true)))

		result := reg.Execute(context.Background(), "http_request", map[string]interface{}{"url": srv.URL, "method": "TRACE"}, nil)
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "unsupported method")

		result = reg.Execute(context.Background(), "http_request", map[string]interface{}{"url": "file:///etc/passwd"}, nil)
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "unsupported URL scheme")
	})
}

func TestCheckURL(t *testing.T) {
	ctx := context.Background()

	assert.Error(t, checkURL(ctx, "http://10.0.0.1/", false))
	assert.Error(t, checkURL(ctx, "http://169.254.169.254/latest", false))
	assert.Error(t, checkURL(ctx, "http://[::1]:8080/", false))
	assert.Error(t, checkURL(ctx, "http://metadata.google.internal/", false))
	assert.NoError(t, checkURL(ctx, "http://10.0.0.1/", true))
}

func TestRegisterBuiltins(t *testing.T) {
	reg := New()

	b, err := RegisterBuiltins(reg, BuiltinOptions{BaseDir: t.TempDir()})
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, []string{"calculator", "file_read", "file_write", "list_directory", "http_request"}, b.Names())
	assert.False(t, reg.Has("web_page"))

	for _, name := range b.Names() {
		assert.Contains(t, BuiltinNames(), name)
	}
}
