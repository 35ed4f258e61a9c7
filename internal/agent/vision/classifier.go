// Package vision turns an uploaded leaf photo into a disease detection.
package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agri-chat-core/server/internal/agent/model"
	errx "github.com/agri-chat-core/server/internal/core/error"
	"github.com/agri-chat-core/server/internal/metrics"
	logx "github.com/agri-chat-core/server/pkg/logger"
)

// Prediction is the raw classifier output.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classifier predicts a disease label for an image on disk.
type Classifier interface {
	Classify(ctx context.Context, imagePath string) (Prediction, error)
}

var errEmptyImage = errors.New("image payload is empty")

type Adapter struct {
	classifier Classifier
	tempDir    string
	timeout    time.Duration
}

func NewAdapter(classifier Classifier, cfg model.VisionConfig) *Adapter {
	return &Adapter{
		classifier: classifier,
		tempDir:    cfg.TempDir,
		timeout:    cfg.Timeout,
	}
}

// ErrorInfo is the detection recorded when the image could not be analysed.
func ErrorInfo() *model.DiseaseInfo {
	return &model.DiseaseInfo{
		PlantType:       "Unknown",
		DiseaseDetected: model.DiseaseErrorProcessing,
	}
}

// Analyze never fails: decode and inference errors are logged and reported
// as the error detection so the turn takes the low-confidence path.
func (a *Adapter) Analyze(ctx context.Context, imageB64 string) *model.DiseaseInfo {
	info, err := a.analyze(ctx, imageB64)
	if err != nil {
		kind := errx.KindOf(err)
		metrics.CollaboratorFailures.WithLabelValues(string(kind)).Inc()
		logx.Warn().Err(err).Str("kind", string(kind)).Msg("Image analysis failed, using error detection")
		return ErrorInfo()
	}
	return info
}

func (a *Adapter) analyze(ctx context.Context, imageB64 string) (*model.DiseaseInfo, error) {
	raw, err := DecodeImage(imageB64)
	if err != nil {
		return nil, errx.Wrap(errx.KindImageDecode, err)
	}
	if a.classifier == nil {
		return nil, errx.Wrap(errx.KindImageInference, errors.New("classifier is not configured"))
	}

	path, err := a.writeTemp(raw)
	if err != nil {
		return nil, errx.Wrap(errx.KindImageInference, err)
	}
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			logx.Warn().Err(rmErr).Str("path", path).Msg("Failed to remove temp image")
		}
	}()

	pred, err := a.classify(ctx, path)
	if err != nil {
		return nil, errx.Wrap(errx.KindImageInference, err)
	}

	label, ok := CanonicalLabel(pred.Label)
	if !ok {
		return nil, errx.Wrap(errx.KindImageInference, fmt.Errorf("label %q is not in the taxonomy", pred.Label))
	}
	if math.IsNaN(pred.Confidence) || pred.Confidence < 0 || pred.Confidence > 1 {
		return nil, errx.Wrap(errx.KindImageInference, fmt.Errorf("confidence %v out of range", pred.Confidence))
	}

	logx.Debug().
		Str("label", label).
		Float64("confidence", pred.Confidence).
		Bool("healthy", IsHealthy(label)).
		Msg("Image classified")

	return &model.DiseaseInfo{
		PlantType:       PlantType(label),
		DiseaseDetected: label,
		Confidence:      model.Ptr(pred.Confidence),
	}, nil
}

func (a *Adapter) classify(ctx context.Context, path string) (pred Prediction, err error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			pred, err = Prediction{}, fmt.Errorf("classifier panic: %v", p)
		}
	}()
	return a.classifier.Classify(ctx, path)
}

// writeTemp stores the image under a fresh unique name; O_EXCL guarantees
// concurrent turns never share a file.
func (a *Adapter) writeTemp(raw []byte) (string, error) {
	dir := a.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, uuid.NewString()+".jpg")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("create temp image: %w", err)
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write temp image: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close temp image: %w", err)
	}
	return path, nil
}

// DecodeImage decodes standard base64, tolerating a data URL prefix and
// missing padding.
func DecodeImage(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 {
			return nil, errors.New("malformed data url")
		}
		s = s[i+1:]
	}
	if s == "" {
		return nil, errEmptyImage
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		var rawErr error
		if raw, rawErr = base64.RawStdEncoding.DecodeString(s); rawErr != nil {
			return nil, fmt.Errorf("decode base64 image: %w", err)
		}
	}
	if len(raw) == 0 {
		return nil, errEmptyImage
	}
	return raw, nil
}
