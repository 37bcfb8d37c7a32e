package toolexecutor

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

const maxPageText = 8000

// pageFetcher renders pages in a headless Chrome and extracts their text.
// The browser is started on first use and shared by all calls.
type pageFetcher struct {
	headless     bool
	controlURL   string
	allowPrivate bool

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
}

func (f *pageFetcher) connect() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser != nil {
		return f.browser, nil
	}

	controlURL := f.controlURL
	if controlURL == "" {
		l := launcher.New().Headless(f.headless)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		f.launcher = l
		controlURL = u
		log.Debug().Str("control_url", u).Msg("Browser launched for web_page tool")
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	f.browser = browser
	return browser, nil
}

func (f *pageFetcher) fetch(ctx context.Context, url, selector string) (string, error) {
	if err := checkURL(ctx, url, f.allowPrivate); err != nil {
		return "", fmt.Errorf("request blocked: %w", err)
	}

	browser, err := f.connect()
	if err != nil {
		return "", err
	}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return "", fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("page did not load: %w", err)
	}

	if selector == "" {
		selector = "body"
	}
	el, err := page.Element(selector)
	if err != nil {
		return "", fmt.Errorf("selector %q not found: %w", selector, err)
	}
	text, err := el.Text()
	if err != nil {
		return "", err
	}
	if len(text) > maxPageText {
		text = text[:maxPageText] + "\n\n... (truncated)"
	}
	return text, nil
}

// Close shuts the shared browser down.
func (f *pageFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var err error
	if f.browser != nil {
		err = f.browser.Close()
		f.browser = nil
	}
	if f.launcher != nil {
		f.launcher.Kill()
		f.launcher = nil
	}
	return err
}

func webPageTool(f *pageFetcher) ToolDefinition {
	return ToolDefinition{
		Name:        "web_page",
		Description: "Load a web page in a headless browser (JavaScript is executed) and return its visible text.",
		Parameters: []ToolParameter{
			{Name: "url", Type: "string", Description: "The page URL", Required: true},
			{Name: "selector", Type: "string", Description: "Optional CSS selector to extract instead of the whole body"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			url, _ := params["url"].(string)
			selector, _ := params["selector"].(string)
			return f.fetch(ctx, url, selector)
		},
	}
}
