package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"layanan/internal/config"
	"layanan/internal/metrics"
	"layanan/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Client talks JSON over HTTPS to the booking backend.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
}

// envelope is the {success, message, data} wrapper most endpoints use.
type envelope struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func NewClient(cfg config.APIConfig, logger *zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    newLimiter(cfg.RateLimit),
		logger:     logger,
	}
}

// UseRedisCache configures optional Redis caching for mitra detail.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// BaseURL is the configured API root, handed to the background service.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListBookings returns the user's bookings filtered by status.
func (c *Client) ListBookings(ctx context.Context, userID int64, status models.Status) ([]models.Booking, error) {
	endpoint := fmt.Sprintf("%s/users/%d/bookings?status=%s", c.baseURL, userID, url.QueryEscape(string(status)))
	var out []models.Booking
	if err := c.doJSON(ctx, "list_bookings", http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	for i := range out {
		normalizeBooking(&out[i])
	}
	return out, nil
}

// GetBooking fetches one booking; the lifecycle poll target.
func (c *Client) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	endpoint := fmt.Sprintf("%s/bookings/%d", c.baseURL, id)
	var b models.Booking
	if err := c.doJSON(ctx, "booking_detail", http.MethodGet, endpoint, nil, &b); err != nil {
		return nil, err
	}
	if b.ID == 0 {
		return nil, fmt.Errorf("booking %d: empty response", id)
	}
	normalizeBooking(&b)
	return &b, nil
}

// CreateBooking posts a new booking. No idempotency key is sent.
func (c *Client) CreateBooking(ctx context.Context, req models.CreateBookingRequest) (*models.Booking, error) {
	if req.Status == "" {
		req.Status = models.StatusPending
	}
	var b models.Booking
	if err := c.doJSON(ctx, "create_booking", http.MethodPost, c.baseURL+"/bookings", req, &b); err != nil {
		return nil, err
	}
	normalizeBooking(&b)
	return &b, nil
}

func (c *Client) CancelBooking(ctx context.Context, id int64, reason string) error {
	endpoint := fmt.Sprintf("%s/bookings/%d/cancel", c.baseURL, id)
	body := map[string]string{"cancel_reason": reason}
	return c.doJSON(ctx, "cancel_booking", http.MethodPost, endpoint, body, nil)
}

// UpdateProgress sends the mitra's progress note, optional proof photo and optional completion.
func (c *Client) UpdateProgress(ctx context.Context, bookingID int64, update models.ProgressUpdate) (*models.Booking, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("progress_tracking", update.ProgressTracking); err != nil {
		return nil, err
	}
	if update.Complete {
		if err := mw.WriteField("status", string(models.StatusCompleted)); err != nil {
			return nil, err
		}
	}
	if len(update.ProofImage) > 0 {
		name := update.ProofFilename
		if name == "" {
			name = "proof.jpg"
		}
		part, err := mw.CreateFormFile("proof_image", name)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(update.ProofImage); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/bookings/%d/update", c.baseURL, bookingID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var b models.Booking
	if err := c.do(ctx, "update_progress", req, &b); err != nil {
		return nil, err
	}
	if b.ID == 0 {
		return nil, fmt.Errorf("booking %d progress: empty response", bookingID)
	}
	normalizeBooking(&b)
	return &b, nil
}

// SearchNearbyMitra runs one matching search. An empty list is not an error.
func (c *Client) SearchNearbyMitra(ctx context.Context, criteria models.SearchCriteria) ([]models.Mitra, error) {
	q := url.Values{}
	q.Set("longitude", strconv.FormatFloat(criteria.Location.Lng, 'f', -1, 64))
	q.Set("latitude", strconv.FormatFloat(criteria.Location.Lat, 'f', -1, 64))
	q.Set("service_id", strconv.FormatInt(criteria.ServiceID, 10))
	q.Set("customer_gender", criteria.CustomerGender)
	q.Set("totalPrice", strconv.FormatInt(criteria.TotalPrice, 10))
	endpoint := c.baseURL + "/mitras/nearbymitra?" + q.Encode()

	var out []models.Mitra
	if err := c.doJSON(ctx, "nearby_mitra", http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetMitra fetches partner detail, served from the redis cache when configured.
func (c *Client) GetMitra(ctx context.Context, id int64) (*models.Mitra, error) {
	cacheKey := fmt.Sprintf("mitra:%d", id)
	var m models.Mitra
	if c.readCache(ctx, cacheKey, &m) {
		return &m, nil
	}

	endpoint := fmt.Sprintf("%s/mitra/%d", c.baseURL, id)
	if err := c.doJSON(ctx, "mitra_detail", http.MethodGet, endpoint, nil, &m); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, m)
	return &m, nil
}

func (c *Client) SubmitRating(ctx context.Context, rating models.Rating) error {
	return c.doJSON(ctx, "submit_rating", http.MethodPost, c.baseURL+"/ratings", rating, nil)
}

// ReportLocation posts the mitra's current position.
func (c *Client) ReportLocation(ctx context.Context, mitraID int64, coord models.Coord) error {
	endpoint := fmt.Sprintf("%s/mitras/%d/location", c.baseURL, mitraID)
	return c.doJSON(ctx, "report_location", http.MethodPost, endpoint, coord, nil)
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.cacheTTL).Err(); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("mitra cache write failed")
	}
}

func (c *Client) doJSON(ctx context.Context, op, method, endpoint string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(ctx, op, req, out)
}

func (c *Client) do(ctx context.Context, op string, req *http.Request, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		metrics.ObserveAPI(op, "network_error", 0)
		return &NetworkError{Op: op, Err: err}
	}
	c.addHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveAPI(op, "network_error", time.Since(start).Seconds())
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveAPI(op, "network_error", time.Since(start).Seconds())
		return &NetworkError{Op: op, Err: err}
	}

	if resp.StatusCode >= 300 {
		metrics.ObserveAPI(op, "rejected", time.Since(start).Seconds())
		var env envelope
		_ = json.Unmarshal(raw, &env)
		return &ServerRejection{StatusCode: resp.StatusCode, Message: env.Message}
	}

	if err := decodeEnvelope(resp.StatusCode, raw, out); err != nil {
		metrics.ObserveAPI(op, "rejected", time.Since(start).Seconds())
		return err
	}
	metrics.ObserveAPI(op, "ok", time.Since(start).Seconds())
	return nil
}

func decodeEnvelope(status int, raw []byte, out any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil {
		if env.Success != nil && !*env.Success {
			return &ServerRejection{StatusCode: status, Message: env.Message}
		}
		if out == nil {
			return nil
		}
		if len(env.Data) > 0 && string(env.Data) != "null" {
			if err := json.Unmarshal(env.Data, out); err != nil {
				return fmt.Errorf("decode data: %w", err)
			}
			return nil
		}
		if env.Success != nil {
			return nil
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func (c *Client) addHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func normalizeBooking(b *models.Booking) {
	b.Status = models.ParseStatus(string(b.Status))
}
