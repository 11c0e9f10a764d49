package estimator

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"qfree/queue-service/internal/metrics"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	maxPredictionBody    = 4 << 10
	maxPredictionMinutes = math.MaxInt32
)

var errPredictorUnavailable = errors.New("predictor unavailable")

// Remote asks an external predictor over HTTP and falls back to the linear
// estimate when the predictor is slow, failing or unintelligible.
type Remote struct {
	url     string
	timeout time.Duration
	client  *http.Client
	logger  *logrus.Logger
}

func NewRemote(url string, timeout time.Duration, logger *logrus.Logger) *Remote {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Remote{
		url:     url,
		timeout: timeout,
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		logger:  logger,
	}
}

func (r *Remote) Predict(ctx context.Context, snapshot Snapshot) int {
	minutes, err := r.request(ctx, snapshot)
	if err != nil {
		fallback := Fallback(snapshot)
		r.logger.WithError(err).WithFields(logrus.Fields{
			"queue_id": snapshot.QueueID,
			"fallback": fallback,
		}).Warn("wait prediction failed, using fallback")
		metrics.TrackEstimate("remote", "fallback")
		return fallback
	}
	metrics.TrackEstimate("remote", "ok")
	return clamp(minutes)
}

func (r *Remote) request(ctx context.Context, snapshot Snapshot) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	body, err := json.Marshal(snapshot)
	if err != nil {
		return 0, errors.Wrap(err, "encode snapshot")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return 0, errors.Wrap(err, "build predictor request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "call predictor")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, errors.Wrapf(errPredictorUnavailable, "status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPredictionBody))
	if err != nil {
		return 0, errors.Wrap(err, "read predictor response")
	}
	return parsePrediction(raw)
}

// parsePrediction accepts {"minutes": N} or a body starting with an integer.
func parsePrediction(raw []byte) (int, error) {
	text := strings.TrimSpace(string(raw))
	if strings.HasPrefix(text, "{") {
		var payload struct {
			Minutes *float64 `json:"minutes"`
		}
		if err := json.Unmarshal([]byte(text), &payload); err != nil {
			return 0, errors.Wrap(err, "decode prediction")
		}
		if payload.Minutes == nil {
			return 0, errors.New("prediction missing minutes")
		}
		minutes := *payload.Minutes
		if math.IsNaN(minutes) || math.Abs(minutes) > maxPredictionMinutes {
			return 0, errors.Errorf("prediction out of range: %v", minutes)
		}
		return int(minutes), nil
	}

	end := 0
	for end < len(text) {
		c := text[end]
		if (c >= '0' && c <= '9') || (end == 0 && (c == '-' || c == '+')) {
			end++
			continue
		}
		break
	}
	minutes, err := strconv.Atoi(text[:end])
	if err != nil {
		return 0, errors.Errorf("unparsable prediction %q", text)
	}
	if minutes > maxPredictionMinutes || minutes < -maxPredictionMinutes {
		return 0, errors.Errorf("prediction out of range: %d", minutes)
	}
	return minutes, nil
}
