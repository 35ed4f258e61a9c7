package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	logx "github.com/agri-chat-core/server/pkg/logger"
)

// HTTPClassifier calls the disease classification service with a multipart
// upload: POST {base}/predict, field "file", reply {"label","confidence"}.
type HTTPClassifier struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewHTTPClassifier(baseURL string, timeout time.Duration) *HTTPClassifier {
	return &HTTPClassifier{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logx.Component("image_classifier"),
	}
}

func (c *HTTPClassifier) Classify(ctx context.Context, imagePath string) (Prediction, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return Prediction{}, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(imagePath))
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return Prediction{}, fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return Prediction{}, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	url := c.baseURL + "/predict"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Prediction{}, fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, string(b))
	}

	var pred Prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return Prediction{}, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug().
		Str("label", pred.Label).
		Float64("confidence", pred.Confidence).
		Dur("latency", time.Since(start)).
		Msg("Classifier prediction")
	return pred, nil
}
