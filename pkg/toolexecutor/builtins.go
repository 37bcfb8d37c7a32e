package toolexecutor

import (
	"fmt"
	"time"
)

// BrowserOptions configures the web_page tool.
type BrowserOptions struct {
	Enabled  bool
	Headless bool
	// ControlURL attaches to a running Chrome DevTools endpoint instead of launching one.
	ControlURL string
}

// BuiltinOptions configures the built-in tool set
type BuiltinOptions struct {
	// BaseDir is the sandbox root of the file tools.
	BaseDir     string
	HTTPTimeout time.Duration
	// AllowPrivateNetworks lets http_request and web_page reach private and loopback addresses.
	AllowPrivateNetworks bool
	Browser              BrowserOptions
}

// Builtins is the handle returned by RegisterBuiltins.
type Builtins struct {
	names   []string
	fetcher *pageFetcher
}

// Names lists the tools that were registered.
func (b *Builtins) Names() []string {
	return append([]string(nil), b.names...)
}

// Close releases resources held by built-in tools (the shared browser).
func (b *Builtins) Close() error {
	if b.fetcher != nil {
		return b.fetcher.Close()
	}
	return nil
}

// RegisterBuiltins registers calculator, file_read, file_write, list_directory,
// http_request and, when enabled, web_page on reg.
func RegisterBuiltins(reg *Registry, opts BuiltinOptions) (*Builtins, error) {
	sb := sandbox{root: opts.BaseDir}

	defs := []ToolDefinition{
		calculatorTool(),
		fileReadTool(sb),
		fileWriteTool(sb),
		listDirectoryTool(sb),
		httpRequestTool(newHTTPClient(opts.HTTPTimeout), opts.AllowPrivateNetworks),
	}

	b := &Builtins{}
	if opts.Browser.Enabled {
		b.fetcher = &pageFetcher{
			headless:     opts.Browser.Headless,
			controlURL:   opts.Browser.ControlURL,
			allowPrivate: opts.AllowPrivateNetworks,
		}
		defs = append(defs, webPageTool(b.fetcher))
	}

	for _, def := range defs {
		if err := reg.RegisterTool(def); err != nil {
			return nil, fmt.Errorf("register %s: %w", def.Name, err)
		}
		b.names = append(b.names, def.Name)
	}

	return b, nil
}

// BuiltinNames lists every built-in tool name, including web_page.
func BuiltinNames() []string {
	return []string{"calculator", "file_read", "file_write", "list_directory", "http_request", "web_page"}
}
