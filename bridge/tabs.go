package bridge

import (
	"context"
	"strings"

	walletbridge "github.com/x402wallet/walletbridge"
)

// Tab is one browser tab in the current window.
type Tab struct {
	ID     int
	URL    string
	Active bool
}

// TabQuerier lists the tabs of the current browser window. The scan
// deliberately ignores other windows and the extension's own non-page
// surfaces, so a sidepanel never targets a tab it cannot reach.
type TabQuerier interface {
	CurrentWindowTabs(ctx context.Context) ([]Tab, error)
}

// isHTTP reports whether the tab hosts a regular web page. Only http/https
// pages can carry the injected executor; chrome://, about: and extension
// pages cannot.
func isHTTP(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

// LocateTargetTab finds a page able to host the bridge: the active tab when
// it is http/https, otherwise the first http/https tab in the window.
func LocateTargetTab(ctx context.Context, tabs TabQuerier) (Tab, error) {
	all, err := tabs.CurrentWindowTabs(ctx)
	if err != nil {
		return Tab{}, err
	}

	for _, t := range all {
		if t.Active && isHTTP(t.URL) {
			return t, nil
		}
	}
	for _, t := range all {
		if isHTTP(t.URL) {
			return t, nil
		}
	}

	return Tab{}, walletbridge.ErrNoEligibleTab
}

// StaticTabs is a TabQuerier over a fixed tab list, used by tests and by
// headless embeddings where the "window" is a configured set of pages.
type StaticTabs []Tab

func (s StaticTabs) CurrentWindowTabs(context.Context) ([]Tab, error) {
	return []Tab(s), nil
}
