package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"instapulse/internal/model"
	"instapulse/pkg/circuitbreaker"
	"instapulse/pkg/metrics"
	"instapulse/pkg/otel"
	"instapulse/pkg/trace"
)

const (
	peerName       = "instagram-graph"
	insightMetrics = "likes,comments,shares,reach,impressions,saved"
	metadataFields = "caption,media_type,media_url,permalink,timestamp"
)

// StatusError is a non-200 response from the Graph API.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("graph api %s: status %d", e.Endpoint, e.Code)
}

// Temporary reports whether a later attempt may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// HTTPSource calls the Instagram Graph API.
type HTTPSource struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	cb          *circuitbreaker.CircuitBreaker
	logger      *zap.Logger
}

func NewHTTPSource(baseURL, accessToken string, timeout time.Duration, logger *zap.Logger) *HTTPSource {
	cbConfig := circuitbreaker.DefaultConfig(peerName)
	cbConfig.FailureThreshold = 3
	cbConfig.HalfOpenMaxRequests = 2
	cbConfig.OnStateChange = func(name string, from, to circuitbreaker.State) {
		metrics.SetCircuitBreakerState(name, int(to))
		logger.Warn("Circuit breaker state changed",
			zap.String("name", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	// 4xx 是请求本身的问题，不计入熔断
	cbConfig.IsFailure = func(err error) bool {
		var se *StatusError
		if errors.As(err, &se) {
			return se.Temporary()
		}
		return err != nil && !errors.Is(err, context.Canceled)
	}

	return &HTTPSource{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: timeout},
		cb:          circuitbreaker.NewCircuitBreaker(cbConfig),
		logger:      logger,
	}
}

type insightsResponse struct {
	Data []struct {
		Name   string `json:"name"`
		Values []struct {
			Value int64 `json:"value"`
		} `json:"values"`
		TotalValue *struct {
			Value int64 `json:"value"`
		} `json:"total_value"`
	} `json:"data"`
}

func (s *HTTPSource) FetchInsights(ctx context.Context, externalID string) (*model.Insights, error) {
	q := url.Values{}
	q.Set("metric", insightMetrics)

	var resp insightsResponse
	if err := s.get(ctx, "insights", "/"+url.PathEscape(externalID)+"/insights", q, &resp); err != nil {
		return nil, err
	}

	var in model.Insights
	for _, d := range resp.Data {
		var v int64
		switch {
		case d.TotalValue != nil:
			v = d.TotalValue.Value
		case len(d.Values) > 0:
			v = d.Values[0].Value
		}
		switch d.Name {
		case "likes":
			in.Likes = v
		case "comments":
			in.Comments = v
		case "shares":
			in.Shares = v
		case "reach":
			in.Reach = v
		case "impressions":
			in.Impressions = v
		case "saved":
			in.Saved = v
		}
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return &in, nil
}

type metadataResponse struct {
	Caption   string `json:"caption"`
	MediaType string `json:"media_type"`
	MediaURL  string `json:"media_url"`
	Permalink string `json:"permalink"`
	Timestamp string `json:"timestamp"`
}

// Graph API timestamps carry a numeric zone without a colon.
const graphTimeLayout = "2006-01-02T15:04:05-0700"

func (s *HTTPSource) FetchMetadata(ctx context.Context, externalID string) (*model.PostMetadata, error) {
	q := url.Values{}
	q.Set("fields", metadataFields)

	var resp metadataResponse
	if err := s.get(ctx, "media", "/"+url.PathEscape(externalID), q, &resp); err != nil {
		return nil, err
	}

	meta := &model.PostMetadata{
		Caption:   resp.Caption,
		MediaType: resp.MediaType,
		MediaURL:  resp.MediaURL,
		Permalink: resp.Permalink,
	}
	if resp.Timestamp != "" {
		ts, err := time.Parse(graphTimeLayout, resp.Timestamp)
		if err != nil {
			ts, err = time.Parse(time.RFC3339, resp.Timestamp)
		}
		if err != nil {
			s.logger.Warn("Unparseable media timestamp", zap.String("timestamp", resp.Timestamp))
		} else {
			meta.Timestamp = ts
		}
	}
	return meta, nil
}

// get issues one GET through the circuit breaker and decodes a 200 body into out.
func (s *HTTPSource) get(ctx context.Context, endpoint, path string, q url.Values, out any) error {
	q.Set("access_token", s.accessToken)
	target := s.baseURL + path + "?" + q.Encode()

	return s.cb.Execute(func() error {
		return otel.ClientCall(ctx, peerName, endpoint, func(ctx context.Context) error {
			start := time.Now()
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
			if err != nil {
				return err
			}
			if traceID := trace.FromContext(ctx); traceID != "" {
				req.Header.Set(trace.HeaderName(), traceID)
			}

			resp, err := s.httpClient.Do(req)
			if err != nil {
				metrics.RecordInsightsCallLatency(endpoint, "error", time.Since(start))
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				metrics.RecordInsightsCallLatency(endpoint, fmt.Sprintf("%d", resp.StatusCode), time.Since(start))
				return &StatusError{Endpoint: endpoint, Code: resp.StatusCode}
			}
			metrics.RecordInsightsCallLatency(endpoint, "success", time.Since(start))
			return json.NewDecoder(resp.Body).Decode(out)
		})
	})
}
