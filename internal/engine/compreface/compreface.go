// Package compreface recognizes known faces with a CompreFace server.
package compreface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tigertag/tigertag-server/internal/config"
	"github.com/tigertag/tigertag-server/internal/domain"
	"github.com/tigertag/tigertag-server/internal/engine"
	"github.com/tigertag/tigertag-server/internal/ratelimit"
)

const (
	// DefaultMinConfidence is the similarity (0-100) a subject must exceed.
	DefaultMinConfidence = 85

	// CompreFace answers 400 with this code when an image has no face.
	codeNoFaceFound = 28

	defaultRPS     = 5.0
	defaultBurst   = 5
	defaultTimeout = 2 * time.Minute

	throttleFallback = 5 * time.Second
)

// Engine is a CompreFace-backed face recognition engine. The known faces
// are pushed to the server on first use, replacing every existing subject.
type Engine struct {
	info          engine.Info
	baseURL       string
	apiKey        string
	facesFolder   string
	faces         *FacesConfig
	minConfidence float64
	policy        engine.RetryPolicy

	http    *http.Client
	limiter *ratelimit.KeyedRateLimiter
	ownsLim bool
	logger  *slog.Logger

	setupMu sync.Mutex
	ready   bool
}

// New builds the engine from its plugin block. API_URL, API_KEY,
// FACES_FOLDER and FACES_CONFIG are required; API_PORT, MIN_CONFIDENCE,
// TRIES and RETRY_DELAY are optional.
func New(cfg config.PluginConfig, deps engine.Deps) (engine.Engine, error) {
	rawURL, err := cfg.Prop("API_URL")
	if err != nil {
		return nil, err
	}
	apiKey, err := cfg.Prop("API_KEY")
	if err != nil {
		return nil, err
	}
	folder, err := cfg.Prop("FACES_FOLDER")
	if err != nil {
		return nil, err
	}
	facesFile, err := cfg.Prop("FACES_CONFIG")
	if err != nil {
		return nil, err
	}
	minConfidence, err := cfg.IntProp("MIN_CONFIDENCE", DefaultMinConfidence)
	if err != nil {
		return nil, err
	}
	policy, err := engine.RetryPolicyFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	baseURL, err := joinURL(rawURL, cfg.PropOr("API_PORT", ""))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Key(), err)
	}
	faces, err := LoadFacesConfig(facesFile)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Key(), err)
	}

	e := &Engine{
		info:          engine.InfoFromConfig(cfg),
		baseURL:       baseURL,
		apiKey:        apiKey,
		facesFolder:   folder,
		faces:         faces,
		minConfidence: float64(minConfidence),
		policy:        policy,
		http:          deps.HTTPClient,
		limiter:       deps.Limiter,
		logger:        deps.Logger,
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

// joinURL applies an optional port to the API URL.
func joinURL(rawURL, port string) (string, error) {
	u, err := url.Parse(strings.TrimRight(rawURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid API_URL %q", rawURL)
	}
	if port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return "", fmt.Errorf("invalid API_PORT %q", port)
		}
		u.Host = net.JoinHostPort(u.Hostname(), port)
	}
	return u.String(), nil
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

// Tag recognizes the faces in the image. Subjects at or below the minimum
// confidence are dropped; a subject seen in several faces keeps its best
// similarity.
func (e *Engine) Tag(ctx context.Context, req engine.Request) (*domain.TagComputation, error) {
	if err := e.ensureFaces(ctx); err != nil {
		return engine.DeferOnTransient(e.logger, req.Path, nil, err)
	}

	path := req.TagPath()
	e.logger.Info("tagging", "location", req.Path)

	data, err := os.ReadFile(path) //#nosec G304 -- path comes from a discovery source
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	scaled, err := scaleImage(data, MaxShortSide)
	if err != nil {
		return nil, err
	}
	if len(scaled) != len(data) {
		e.logger.Debug("scaled image", "location", req.Path, "old_bytes", len(data), "new_bytes", len(scaled))
	}

	faces, err := engine.Retry(ctx, e.policy, e.logger, "compreface recognize", func(ctx context.Context) ([]recognizedFace, error) {
		return e.recognize(ctx, filepath.Base(path), scaled)
	})
	if err != nil {
		return engine.DeferOnTransient(e.logger, req.Path, nil, err)
	}

	best := make(map[string]float64)
	for _, f := range faces {
		for _, s := range f.Subjects {
			confidence := s.Similarity * 100
			if confidence <= e.minConfidence {
				e.logger.Debug("ignoring subject below minimum confidence",
					"location", req.Path,
					"subject", s.Subject,
					"confidence", confidence,
				)
				continue
			}
			name := e.info.Qualify(s.Subject)
			if confidence > best[name] {
				best[name] = confidence
			}
		}
	}

	c := domain.NewTagComputation(req.Path)
	for name, confidence := range best {
		c.Put(name, int(math.Round(confidence)))
	}
	return c, nil
}

// ensureFaces replaces the server's subjects with the configured faces the
// first time it succeeds.
func (e *Engine) ensureFaces(ctx context.Context) error {
	e.setupMu.Lock()
	defer e.setupMu.Unlock()
	if e.ready {
		return nil
	}

	if _, err := engine.Retry(ctx, e.policy, e.logger, "compreface delete subjects", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.call(ctx, http.MethodDelete, "/api/v1/recognition/subjects", nil, nil, "", nil)
	}); err != nil {
		return err
	}

	images := e.faces.imagePaths(e.facesFolder)
	for _, img := range images {
		data, err := os.ReadFile(img.path)
		if err != nil {
			return fmt.Errorf("read face image for %s: %w", img.subject, err)
		}
		e.logger.Debug("uploading face", "subject", img.subject, "path", img.path)
		if _, err := engine.Retry(ctx, e.policy, e.logger, "compreface add face", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, e.addFace(ctx, img.subject, filepath.Base(img.path), data)
		}); err != nil {
			return err
		}
	}

	subjects, err := engine.Retry(ctx, e.policy, e.logger, "compreface list subjects", e.subjects)
	if err != nil {
		return err
	}
	e.logger.Info("faces uploaded", "uploaded", len(images), "subjects", subjects)
	e.ready = true
	return nil
}

func (e *Engine) addFace(ctx context.Context, subject, filename string, data []byte) error {
	body, contentType, err := fileForm(filename, data)
	if err != nil {
		return engine.Permanent(err)
	}
	q := url.Values{"subject": {subject}}
	return e.call(ctx, http.MethodPost, "/api/v1/recognition/faces", q, body, contentType, nil)
}

func (e *Engine) subjects(ctx context.Context) ([]string, error) {
	var resp subjectsResponse
	if err := e.call(ctx, http.MethodGet, "/api/v1/recognition/subjects", nil, nil, "", &resp); err != nil {
		return nil, err
	}
	return resp.Subjects, nil
}

func (e *Engine) recognize(ctx context.Context, filename string, data []byte) ([]recognizedFace, error) {
	body, contentType, err := fileForm(filename, data)
	if err != nil {
		return nil, engine.Permanent(err)
	}
	var resp recognizeResponse
	err = e.call(ctx, http.MethodPost, "/api/v1/recognition/recognize", nil, body, contentType, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == codeNoFaceFound {
			return nil, nil
		}
		return nil, err
	}
	return resp.Result, nil
}

func fileForm(filename string, data []byte) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}

// call performs one request. 4xx answers are permanent, except 429.
func (e *Engine) call(ctx context.Context, method, path string, q url.Values, body io.Reader, contentType string, v any) error {
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
	req.Header.Set("x-api-key", e.apiKey)
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

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		if resp.StatusCode == http.StatusTooManyRequests {
			e.limiter.Throttle(u.Host, resp.Header, throttleFallback)
			return apiErr
		}
		if resp.StatusCode >= 500 {
			return apiErr
		}
		return engine.Permanent(apiErr)
	}

	if v == nil {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
