package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	apperrors "github.com/propsnap/backend/internal/errors"
	"github.com/propsnap/backend/internal/models"
	"github.com/propsnap/backend/internal/sync/queue"
)

// APIConfig holds remote API connection configuration.
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

// TokenSource supplies the bearer token for API requests. An empty token sends no
// Authorization header.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

// Token calls f.
func (f TokenSourceFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StatusError is returned for non-2xx API responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api responded with status %d: %s", e.StatusCode, e.Body)
}

// APIClient talks to the marketplace API.
type APIClient struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

// NewAPIClient creates a new APIClient. tokens may be nil.
func NewAPIClient(config APIConfig, tokens TokenSource) *APIClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &APIClient{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// UploadPhoto sends a photo file as multipart form data.
func (c *APIClient) UploadPhoto(ctx context.Context, p queue.PhotoPayload) error {
	f, err := os.Open(p.Path)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "open photo "+p.PhotoID, err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	contentType := "application/octet-stream"
	if mtype, err := mimetype.DetectFile(p.Path); err == nil {
		contentType = mtype.String()
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(p.Path)))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "read photo "+p.PhotoID, err)
	}

	fields := map[string]string{"photo_id": p.PhotoID, "category": p.Category}
	for k, v := range p.Metadata {
		fields["metadata["+k+"]"] = v
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := mw.WriteField(k, fields[k]); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	return c.do(ctx, http.MethodPost, "/v1/photos", mw.FormDataContentType(), &body)
}

// CreateOrder submits a draft order.
func (c *APIClient) CreateOrder(ctx context.Context, o models.DraftOrder) error {
	return c.postJSON(ctx, "/v1/orders", o)
}

// UploadFloorplan submits a floorplan.
func (c *APIClient) UploadFloorplan(ctx context.Context, f models.Floorplan) error {
	return c.postJSON(ctx, "/v1/floorplans", f)
}

// RegisterUploaders wires the client into e for the built-in item types.
func (c *APIClient) RegisterUploaders(e *Engine) {
	e.Register(queue.TypePhoto, UploaderFunc(func(ctx context.Context, item queue.Item) error {
		p, ok := item.Payload.(queue.PhotoPayload)
		if !ok {
			return apperrors.New(apperrors.ErrInvalid, "photo item without photo payload")
		}
		return c.UploadPhoto(ctx, p)
	}))
	e.Register(queue.TypeOrder, UploaderFunc(func(ctx context.Context, item queue.Item) error {
		p, ok := item.Payload.(queue.OrderPayload)
		if !ok {
			return apperrors.New(apperrors.ErrInvalid, "order item without order payload")
		}
		return c.CreateOrder(ctx, p.Order)
	}))
	e.Register(queue.TypeFloorplan, UploaderFunc(func(ctx context.Context, item queue.Item) error {
		p, ok := item.Payload.(queue.FloorplanPayload)
		if !ok {
			return apperrors.New(apperrors.ErrInvalid, "floorplan item without floorplan payload")
		}
		return c.UploadFloorplan(ctx, p.Floorplan)
	}))
}

func (c *APIClient) postJSON(ctx context.Context, path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "encode request", err)
	}
	return c.do(ctx, http.MethodPost, path, "application/json", bytes.NewReader(data))
}

// do executes a request and maps failures onto error codes.
func (c *APIClient) do(ctx context.Context, method, path, contentType string, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrNotAuthorized, "load session token", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrNetwork, method+" "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return apperrors.Wrap(apperrors.ErrNotAuthorized, method+" "+path, statusErr)
		}
		return apperrors.Wrap(apperrors.ErrUploadFailed, method+" "+path, statusErr)
	}

	// Drain so the connection can be reused.
	io.Copy(io.Discard, resp.Body)
	return nil
}
