// Package media talks to the transform-and-host service: uploads source
// images and derives preset transformation URLs for hosted assets.
package media

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jewelry-dataset-pipeline/internal/pipeline"
)

// preset pairs a transformation string with the delivery format it produces.
type preset struct {
	transformation string
	format         string
}

// presets are the supported named transformations. The 360 preset delivers
// an animated gif; everything else stays jpg.
var presets = map[string]preset{
	"thumbnail": {transformation: "w_300,h_300,c_fill", format: "jpg"},
	"detail":    {transformation: "w_800,h_800,c_fill,e_sharpen", format: "jpg"},
	"zoom":      {transformation: "w_1200,h_1200,c_fill,e_sharpen", format: "jpg"},
	"360":       {transformation: "w_600,h_600,c_fill,e_loop", format: "gif"},
}

// Config identifies the hosting account and its API endpoints.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	// UploadURL overrides the default API endpoint. Tests point this at a
	// local server.
	UploadURL string
	// DeliveryBaseURL overrides the default asset delivery host.
	DeliveryBaseURL string
	Timeout         time.Duration
}

// Client implements pipeline.MediaService against the hosting API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

var _ pipeline.MediaService = (*Client)(nil)

// New validates cfg and builds a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.CloudName) == "" {
		return nil, fmt.Errorf("cloud name is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.UploadURL == "" {
		cfg.UploadURL = fmt.Sprintf("https://api.cloudinary.com/v1_1/%s/image/upload", cfg.CloudName)
	}
	if cfg.DeliveryBaseURL == "" {
		cfg.DeliveryBaseURL = fmt.Sprintf("https://res.cloudinary.com/%s/image/upload", cfg.CloudName)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

// DeriveURL returns the delivery URL for publicID under the named preset.
// Pure string assembly; two calls with the same inputs always agree.
func (c *Client) DeriveURL(publicID string, presetName string) (string, error) {
	if strings.TrimSpace(publicID) == "" {
		return "", fmt.Errorf("public id is required")
	}
	p, ok := presets[presetName]
	if !ok {
		return "", fmt.Errorf("unknown transformation preset %q", presetName)
	}
	return fmt.Sprintf("%s/%s/%s.%s",
		strings.TrimRight(c.cfg.DeliveryBaseURL, "/"),
		p.transformation,
		publicID,
		p.format,
	), nil
}

// Presets lists the supported preset names, sorted.
func Presets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type uploadResponse struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	Bytes     int64  `json:"bytes"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Format    string `json:"format"`
}

// Upload posts the file at path to the hosting API as a multipart form and
// returns the hosted asset details.
func (c *Client) Upload(ctx context.Context, path string, opts pipeline.MediaUploadOptions) (pipeline.UploadResult, error) {
	var zero pipeline.UploadResult

	file, err := os.Open(path)
	if err != nil {
		return zero, fmt.Errorf("open upload source: %w", err)
	}
	defer file.Close()

	body := &strings.Builder{}
	writer := multipart.NewWriter(body)

	fields := map[string]string{
		"timestamp": strconv.FormatInt(time.Now().Unix(), 10),
	}
	if opts.Folder != "" {
		fields["folder"] = opts.Folder
	}
	if len(opts.Tags) > 0 {
		fields["tags"] = strings.Join(opts.Tags, ",")
	}
	fields["signature"] = signParams(fields, c.cfg.APISecret)
	if c.cfg.APIKey != "" {
		fields["api_key"] = c.cfg.APIKey
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return zero, fmt.Errorf("write form field %s: %w", name, err)
		}
	}

	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return zero, fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return zero, fmt.Errorf("copy upload source: %w", err)
	}
	if err := writer.Close(); err != nil {
		return zero, fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.UploadURL, strings.NewReader(body.String()))
	if err != nil {
		return zero, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return zero, fmt.Errorf("post upload: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return zero, fmt.Errorf("read upload response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return zero, fmt.Errorf("upload status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed uploadResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return zero, fmt.Errorf("decode upload response: %w", err)
	}
	if parsed.PublicID == "" {
		return zero, fmt.Errorf("upload response missing public_id")
	}

	c.logger.Debug("hosted upload complete",
		zap.String("public_id", parsed.PublicID),
		zap.Int64("bytes", parsed.Bytes),
	)
	return pipeline.UploadResult{
		PublicID:  parsed.PublicID,
		SecureURL: parsed.SecureURL,
		Bytes:     parsed.Bytes,
		Width:     parsed.Width,
		Height:    parsed.Height,
		Format:    parsed.Format,
	}, nil
}

// signParams produces the hosting API's request signature: SHA-1 over the
// sorted key=value pairs joined by & with the secret appended.
func signParams(fields map[string]string, secret string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+fields[k])
	}
	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}
