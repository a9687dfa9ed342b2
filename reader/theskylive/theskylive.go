// Package theskylive polls the live coordinate service over HTTP and can
// optionally subscribe to its websocket stream. The websocket feed forwards
// normalized coordinate samples into the live channel; if the connection
// drops it is re-established automatically until the context is cancelled.
package theskylive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"cometflow/config"
	"cometflow/internal/channel"
	"cometflow/logger"
	"cometflow/models"
)

// Client fetches live coordinates on demand.
type Client struct {
	config  *config.Config
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Log
}

func NewClient(cfg *config.Config) *Client {
	log := logger.GetLogger()
	src := cfg.Source.TheSkyLive

	transport := &http.Transport{
		MaxIdleConns:        src.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: src.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     src.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     time.Duration(src.ConnectionPool.IdleConnTimeout) * time.Second,
	}

	rps := src.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := src.RateLimit.BurstSize
	if burst <= 0 {
		burst = 1
	}

	client := &Client{
		config: cfg,
		http: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(src.TimeoutMs) * time.Millisecond,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     log,
	}

	log.WithComponent("theskylive_reader").WithFields(logger.Fields{
		"url":         src.URL,
		"live_stream": src.LiveStream,
	}).Info("theskylive reader initialized")

	return client
}

// FetchLiveCoordinates returns the latest published position of the comet.
func (c *Client) FetchLiveCoordinates(ctx context.Context, designation string) (models.LiveCoordinates, error) {
	log := c.log.WithComponent("theskylive_reader").WithFields(logger.Fields{
		"designation": designation,
		"operation":   "fetch_live",
	})

	if err := c.limiter.Wait(ctx); err != nil {
		return models.LiveCoordinates{}, fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{}
	params.Set("object", designation)
	reqURL := fmt.Sprintf("%s?%s", c.config.Source.TheSkyLive.URL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return models.LiveCoordinates{}, fmt.Errorf("failed to build request: %w", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return models.LiveCoordinates{}, fmt.Errorf("theskylive request failed: %w", err)
	}
	defer resp.Body.Close()
	logger.LogPerformanceEntry(log, "theskylive_reader", "api_request", time.Since(start), nil)

	if resp.StatusCode != http.StatusOK {
		return models.LiveCoordinates{}, fmt.Errorf("theskylive returned status %d", resp.StatusCode)
	}

	var payload models.TheSkyLiveResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.LiveCoordinates{}, fmt.Errorf("failed to decode theskylive response: %w", err)
	}

	coords := normalize(designation, payload)
	logger.IncrementLiveRead(1)
	return coords, nil
}

func normalize(designation string, p models.TheSkyLiveResponse) models.LiveCoordinates {
	if p.Designation != "" {
		designation = p.Designation
	}
	ts := time.Now().UTC()
	if p.Timestamp > 0 {
		ts = time.Unix(p.Timestamp, 0).UTC()
	}
	return models.LiveCoordinates{
		Designation:   designation,
		RA:            p.RA,
		Dec:           p.Dec,
		Magnitude:     p.Magnitude,
		SunDistance:   p.SunDistance,
		EarthDistance: p.EarthDistance,
		Timestamp:     ts,
	}
}

// StreamReader subscribes to the websocket feed and forwards coordinate
// samples into the live channel.
type StreamReader struct {
	config   *config.Config
	channels *channel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	designations []string
}

func NewStreamReader(cfg *config.Config, ch *channel.Channels, designations []string) *StreamReader {
	return &StreamReader{
		config:       cfg,
		channels:     ch,
		wg:           &sync.WaitGroup{},
		log:          logger.GetLogger(),
		designations: designations,
	}
}

// Start launches the websocket stream worker. It returns an error if the
// reader is already running or the live stream is disabled in config.
func (r *StreamReader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("theskylive stream reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	cfg := r.config.Source.TheSkyLive
	log := r.log.WithComponent("theskylive_stream").WithFields(logger.Fields{"operation": "Start"})
	if !cfg.LiveStream {
		log.Warn("theskylive live stream is disabled")
		return fmt.Errorf("theskylive live stream is disabled")
	}

	log.WithFields(logger.Fields{"designations": r.designations}).Info("starting theskylive stream reader")
	r.wg.Add(1)
	go r.stream(cfg.WSURL)
	log.Info("theskylive stream reader started successfully")
	return nil
}

// Stop terminates the websocket subscription and waits for the worker to
// finish.
func (r *StreamReader) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	r.log.WithComponent("theskylive_stream").Info("stopping theskylive stream reader")
	r.wg.Wait()
	r.log.WithComponent("theskylive_stream").Info("theskylive stream reader stopped")
}

// stream handles websocket lifecycle, reconnection and forwarding of samples.
func (r *StreamReader) stream(wsURL string) {
	defer r.wg.Done()
	log := r.log.WithComponent("theskylive_stream").WithFields(logger.Fields{
		"designations": r.designations,
		"worker":       "live_stream",
	})

	for {
		if r.ctx.Err() != nil {
			return
		}

		dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		conn, _, err := dialer.Dial(wsURL, nil)
		if err != nil {
			log.WithError(err).Warn("failed to connect websocket, retrying")
			select {
			case <-time.After(5 * time.Second):
				continue
			case <-r.ctx.Done():
				return
			}
		}

		sub := map[string]interface{}{"op": "subscribe", "objects": r.designations}
		if err := conn.WriteJSON(sub); err != nil {
			log.WithError(err).Warn("failed to subscribe, retrying")
			conn.Close()
			select {
			case <-time.After(5 * time.Second):
				continue
			case <-r.ctx.Done():
				return
			}
		}

		pingTicker := time.NewTicker(20 * time.Second)
		done := make(chan struct{})
		go func() {
			defer pingTicker.Stop()
			for {
				select {
				case <-done:
					return
				case <-r.ctx.Done():
					conn.Close()
					return
				case <-pingTicker.C:
					conn.WriteMessage(websocket.TextMessage, []byte(`{"op":"ping"}`))
				}
			}
		}()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				close(done)
				conn.Close()
				if r.ctx.Err() != nil {
					return
				}
				log.WithError(err).Warn("websocket read error, reconnecting")
				break
			}
			r.processMessage(msg)
		}

		select {
		case <-time.After(time.Second):
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *StreamReader) processMessage(msg []byte) {
	var base map[string]json.RawMessage
	if err := json.Unmarshal(msg, &base); err != nil {
		r.log.WithComponent("theskylive_stream").WithError(err).Debug("failed to decode message")
		return
	}
	// server pings and subscription acks carry an op field, data does not
	if _, ok := base["op"]; ok {
		return
	}

	var payload models.TheSkyLiveResponse
	if err := json.Unmarshal(msg, &payload); err != nil {
		r.log.WithComponent("theskylive_stream").WithError(err).Debug("failed to decode coordinate sample")
		return
	}
	if payload.Designation == "" {
		return
	}

	coords := normalize(payload.Designation, payload)
	if r.channels.SendLive(r.ctx, coords) {
		logger.IncrementLiveRead(1)
	} else if r.ctx.Err() != nil {
		return
	} else {
		r.log.WithComponent("theskylive_stream").Warn("live channel full, dropping sample")
	}
}
