package loadgen

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayesh156/roxeleye-crud/internal/client/api"
	"github.com/ayesh156/roxeleye-crud/internal/client/session"
)

type Config struct {
	BaseURL     string
	Profile     string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
	Email       string
	Password    string
}

type Result struct {
	TotalRequests int64
	Failures      int64
	Status2xx     int64
	Status4xx     int64
	Status5xx     int64
}

type job struct {
	method string
	path   string
	body   string
	authed bool
}

func Run(ctx context.Context, cfg Config) (Result, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:5000"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 15
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}

	jobs := jobsForProfile(cfg.Profile)
	if len(jobs) == 0 {
		return Result{}, fmt.Errorf("unknown profile: %s", cfg.Profile)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	token, err := login(ctx, client, cfg)
	if err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var total, failures, s2xx, s4xx, s5xx int64
	queue := make(chan job, cfg.Concurrency*2)
	wg := sync.WaitGroup{}

	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range queue {
				req, err := newRequest(ctx, cfg.BaseURL, j, token)
				if err != nil {
					atomic.AddInt64(&failures, 1)
					continue
				}
				resp, err := client.Do(req)
				if err != nil {
					atomic.AddInt64(&failures, 1)
					continue
				}
				_ = resp.Body.Close()
				atomic.AddInt64(&total, 1)
				switch {
				case resp.StatusCode >= 200 && resp.StatusCode < 300:
					atomic.AddInt64(&s2xx, 1)
				case resp.StatusCode >= 400 && resp.StatusCode < 500:
					atomic.AddInt64(&s4xx, 1)
				case resp.StatusCode >= 500:
					atomic.AddInt64(&s5xx, 1)
				}
			}
		}()
	}

	rng := rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed)))
	ticker := time.NewTicker(time.Second / time.Duration(cfg.RPS))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			close(queue)
			wg.Wait()
			return Result{
				TotalRequests: atomic.LoadInt64(&total),
				Failures:      atomic.LoadInt64(&failures),
				Status2xx:     atomic.LoadInt64(&s2xx),
				Status4xx:     atomic.LoadInt64(&s4xx),
				Status5xx:     atomic.LoadInt64(&s5xx),
			}, nil
		case <-ticker.C:
			j := jobs[rng.IntN(len(jobs))]
			if j.method == http.MethodPost && j.path == "/api/items" {
				j.body = fmt.Sprintf(`{"name":"loadgen item %d","price":%d.%02d,"quantity":%d}`, rng.IntN(1_000_000), rng.IntN(100), rng.IntN(100), rng.IntN(50))
			}
			select {
			case queue <- j:
			case <-ctx.Done():
			}
		}
	}
}

// login obtains a bearer token through the API client when credentials are
// configured. Authenticated jobs are sent without one otherwise.
func login(ctx context.Context, httpClient *http.Client, cfg Config) (string, error) {
	if cfg.Email == "" {
		return "", nil
	}
	sess := session.NewSynchronizer(session.NewMemoryStore(), session.NewMemoryCache())
	c := api.New(cfg.BaseURL, sess, api.WithHTTPClient(httpClient))
	if _, err := c.Login(ctx, cfg.Email, cfg.Password); err != nil {
		return "", fmt.Errorf("loadgen login: %w", err)
	}
	return sess.Token(), nil
}

func newRequest(ctx context.Context, baseURL string, j job, token string) (*http.Request, error) {
	var body io.Reader
	if j.body != "" {
		body = strings.NewReader(j.body)
	}
	req, err := http.NewRequestWithContext(ctx, j.method, baseURL+j.path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if j.authed {
		// Without credentials, authenticated paths exercise token rejection.
		if token == "" {
			token = "invalid.token.value"
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func jobsForProfile(profile string) []job {
	read := []job{
		{method: http.MethodGet, path: "/api/items", authed: true},
		{method: http.MethodGet, path: "/api/items?page=1&pageSize=10", authed: true},
		{method: http.MethodGet, path: "/api/auth/profile", authed: true},
		{method: http.MethodGet, path: "/health/live"},
	}
	switch strings.ToLower(profile) {
	case "read":
		return read
	case "", "mixed":
		return append(read,
			job{method: http.MethodPost, path: "/api/items", authed: true},
			job{method: http.MethodPost, path: "/api/auth/login", body: `{"email":"nobody@example.com","password":"wrong1"}`},
		)
	case "error-heavy":
		return []job{
			{method: http.MethodGet, path: "/api/items/999999999", authed: true},
			{method: http.MethodGet, path: "/api/items/abc", authed: true},
			{method: http.MethodPost, path: "/api/auth/login", body: `{"email":"not-an-email"}`},
			{method: http.MethodGet, path: "/api/items"},
			{method: http.MethodGet, path: "/does-not-exist"},
		}
	default:
		return nil
	}
}
