// Package imagga tags images with the Imagga auto-tagging API.
package imagga

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tigertag/tigertag-server/internal/config"
	"github.com/tigertag/tigertag-server/internal/domain"
	"github.com/tigertag/tigertag-server/internal/engine"
	"github.com/tigertag/tigertag-server/internal/ratelimit"
)

const (
	// DefaultURL is the Imagga v2 API root.
	DefaultURL = "https://api.imagga.com/v2"

	// Rate limit: 1 request per second per host, burst of 2
	defaultRPS   = 1.0
	defaultBurst = 2

	defaultTimeout = 60 * time.Second

	// Pause applied to the host when a 429 carries no Retry-After.
	throttleFallback = 5 * time.Second
)

// Engine is an Imagga-backed classification engine.
type Engine struct {
	info     engine.Info
	baseURL  string
	key      string
	secret   string
	language string
	policy   engine.RetryPolicy

	http    *http.Client
	limiter *ratelimit.KeyedRateLimiter
	ownsLim bool
	logger  *slog.Logger
}

// New builds the engine from its plugin block. API_KEY and API_SECRET are
// required; API_URL, LANGUAGE, TRIES and RETRY_DELAY are optional.
func New(cfg config.PluginConfig, deps engine.Deps) (engine.Engine, error) {
	key, err := cfg.Prop("API_KEY")
	if err != nil {
		return nil, err
	}
	secret, err := cfg.Prop("API_SECRET")
	if err != nil {
		return nil, err
	}
	policy, err := engine.RetryPolicyFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		info:     engine.InfoFromConfig(cfg),
		baseURL:  strings.TrimRight(cfg.PropOr("API_URL", DefaultURL), "/"),
		key:      key,
		secret:   secret,
		language: cfg.PropOr("LANGUAGE", "en"),
		policy:   policy,
		http:     deps.HTTPClient,
		limiter:  deps.Limiter,
		logger:   deps.Logger,
	}
	if e.http == nil {
		e.http = &http.Client{Timeout: defaultTimeout}
	}
	if e.limiter == nil {
		e.limiter = ratelimit.New(defaultRPS, defaultBurst)
		e.ownsLim = true
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("engine", e.info.Name)
	return e, nil
}

// Info implements engine.Engine.
func (e *Engine) Info() engine.Info { return e.info }

// Close releases the engine's own rate limiter.
func (e *Engine) Close() error {
	if e.ownsLim {
		e.limiter.Stop()
	}
	return nil
}

// Tag uploads the image and asks for its tags. Exhausted retries defer the
// resource.
func (e *Engine) Tag(ctx context.Context, req engine.Request) (*domain.TagComputation, error) {
	path := req.TagPath()
	e.logger.Info("tagging", "location", req.Path)

	image, err := os.ReadFile(path) //#nosec G304 -- path comes from a discovery source
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	c, err := e.tag(ctx, req.Path, filepath.Base(path), image)
	return engine.DeferOnTransient(e.logger, req.Path, c, err)
}

func (e *Engine) tag(ctx context.Context, location, filename string, image []byte) (*domain.TagComputation, error) {
	uploadID, err := engine.Retry(ctx, e.policy, e.logger, "imagga upload", func(ctx context.Context) (string, error) {
		return e.upload(ctx, filename, image)
	})
	if err != nil {
		return nil, err
	}

	tags, err := engine.Retry(ctx, e.policy, e.logger, "imagga tags", func(ctx context.Context) ([]rawTag, error) {
		return e.tags(ctx, uploadID)
	})
	if err != nil {
		return nil, err
	}

	c := domain.NewTagComputation(location)
	for _, t := range tags {
		label := t.Tag[e.language]
		if label == "" {
			continue
		}
		c.Put(e.info.Qualify(label), int(math.Round(t.Confidence)))
	}
	e.logger.Debug("tagged", "location", location, "count", len(c.Tags))
	return c, nil
}

// upload posts the image as multipart field "image" and returns the upload id.
func (e *Engine) upload(ctx context.Context, filename string, image []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return "", engine.Permanent(fmt.Errorf("create form file: %w", err))
	}
	if _, err := part.Write(image); err != nil {
		return "", engine.Permanent(fmt.Errorf("write form file: %w", err))
	}
	if err := mw.Close(); err != nil {
		return "", engine.Permanent(fmt.Errorf("close multipart: %w", err))
	}

	var resp uploadResponse
	if err := e.doJSON(ctx, http.MethodPost, "/uploads", nil, &body, mw.FormDataContentType(), &resp); err != nil {
		return "", err
	}
	if resp.Result.UploadID == "" {
		return "", fmt.Errorf("upload returned no upload_id (status %q: %s)", resp.Status.Type, resp.Status.Text)
	}
	return resp.Result.UploadID, nil
}

// tags fetches the tags for an uploaded image.
func (e *Engine) tags(ctx context.Context, uploadID string) ([]rawTag, error) {
	q := url.Values{
		"image_upload_id": {uploadID},
		"language":        {e.language},
	}
	var resp tagsResponse
	if err := e.doJSON(ctx, http.MethodGet, "/tags", q, nil, "", &resp); err != nil {
		return nil, err
	}
	if resp.Status.Type == "error" {
		return nil, fmt.Errorf("tags: %s", resp.Status.Text)
	}
	return resp.Result.Tags, nil
}

// doJSON performs one authenticated call. Client errors other than 429 are
// permanent; everything else may be retried.
func (e *Engine) doJSON(ctx context.Context, method, path string, q url.Values, body io.Reader, contentType string, v any) error {
	u, err := url.Parse(e.baseURL + path)
	if err != nil {
		return engine.Permanent(fmt.Errorf("build url: %w", err))
	}
	if err := e.limiter.Wait(ctx, u.Host); err != nil {
		return engine.Permanent(fmt.Errorf("rate limit wait: %w", err))
	}
	if q != nil {
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return engine.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.SetBasicAuth(e.key, e.secret)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		pause := e.limiter.Throttle(u.Host, resp.Header, throttleFallback)
		return fmt.Errorf("%w: throttled for %s", ErrUnavailable, pause)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return engine.Permanent(ErrUnauthorized)
	default:
		return engine.Permanent(fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, truncate(data, 200)))
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
