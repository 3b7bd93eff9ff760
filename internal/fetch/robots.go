package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/amishk599/noticewatch/internal/model"
)

// RobotsFetcher refuses URLs that the host's robots.txt disallows for agent.
// robots.txt is fetched once per scheme and host and cached for the
// lifetime of the fetcher. An unreachable robots.txt allows everything.
type RobotsFetcher struct {
	inner  model.Fetcher
	client *http.Client
	agent  string

	mu    sync.Mutex
	cache map[string]*robotstxt.RobotsData
}

// NewRobotsFetcher wraps inner. client is used only for robots.txt.
func NewRobotsFetcher(inner model.Fetcher, client *http.Client, agent string) *RobotsFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RobotsFetcher{
		inner:  inner,
		client: client,
		agent:  agent,
		cache:  make(map[string]*robotstxt.RobotsData),
	}
}

func (f *RobotsFetcher) Fetch(ctx context.Context, rawURL string) model.FetchResult {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return f.inner.Fetch(ctx, rawURL)
	}

	robots := f.robotsFor(ctx, u)
	if robots != nil {
		path := u.EscapedPath()
		if path == "" {
			path = "/"
		}
		if u.RawQuery != "" {
			path += "?" + u.RawQuery
		}
		if !robots.FindGroup(f.agent).Test(path) {
			return model.FetchResult{
				URL:    rawURL,
				Status: model.FetchBlocked,
				Err:    fmt.Errorf("blocked by robots.txt: %s", path),
			}
		}
	}
	return f.inner.Fetch(ctx, rawURL)
}

func (f *RobotsFetcher) robotsFor(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	origin := u.Scheme + "://" + u.Host

	f.mu.Lock()
	robots, ok := f.cache[origin]
	f.mu.Unlock()
	if ok {
		return robots
	}

	robots = f.load(ctx, origin)

	f.mu.Lock()
	f.cache[origin] = robots
	f.mu.Unlock()
	return robots
}

func (f *RobotsFetcher) load(ctx context.Context, origin string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", f.agent)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
	if err != nil {
		return nil
	}
	robots, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil
	}
	return robots
}
