package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"

	"github.com/SZoloth/promptrelay/pkg/config"
	"github.com/SZoloth/promptrelay/pkg/logger"
)

// maxConfigBodyBytes caps how much of the config endpoint's response is read.
const maxConfigBodyBytes = 1 << 20

// BridgeConfig is one immutable configuration snapshot. It is replaced
// wholesale on refresh, never mutated in place.
type BridgeConfig struct {
	TargetURL string
	Secret    string
}

// remoteConfig is the wire form served by the local config endpoint. Secret is
// a pointer so a body that omits the field can be told apart from one that
// explicitly clears it.
type remoteConfig struct {
	TargetURL string  `json:"targetUrl"`
	Secret    *string `json:"secret"`
}

// Source maintains the current BridgeConfig snapshot. It is the only writer;
// everything else reads through Get.
type Source struct {
	configURL string
	interval  time.Duration
	schedule  string
	client    *http.Client
	current   atomic.Pointer[BridgeConfig]
}

func NewSource(cfg config.RelayConfig) *Source {
	interval := time.Duration(cfg.RefreshIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}

	schedule := cfg.RefreshSchedule
	if schedule != "" && !gronx.New().IsValid(schedule) {
		logger.WarnCF("config", "Invalid refresh schedule, falling back to fixed interval", map[string]interface{}{
			"schedule": schedule,
		})
		schedule = ""
	}

	return &Source{
		configURL: cfg.ConfigURL,
		interval:  interval,
		schedule:  schedule,
		client:    &http.Client{},
	}
}

// Get returns the current snapshot. It never blocks and never fails; before
// the first successful refresh it returns the zero value.
func (s *Source) Get() BridgeConfig {
	if cfg := s.current.Load(); cfg != nil {
		return *cfg
	}
	return BridgeConfig{}
}

// Refresh fetches the config endpoint once. On success the snapshot is
// replaced atomically; on any failure the previous snapshot is kept and the
// failure is only logged. A stale-but-valid configuration beats no
// configuration, so nothing here is surfaced to callers.
func (s *Source) Refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	next, err := s.fetch(ctx)
	if err != nil {
		logger.DebugCF("config", "Config refresh failed, keeping previous snapshot", map[string]interface{}{
			"url":   s.configURL,
			"error": err.Error(),
		})
		return
	}

	prev := s.Get()
	s.current.Store(next)

	if prev.TargetURL != next.TargetURL {
		logger.InfoCF("config", "Relay target updated", map[string]interface{}{
			"target_url": next.TargetURL,
		})
	}
}

func (s *Source) fetch(ctx context.Context) (*BridgeConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.configURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build config request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("config endpoint returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxConfigBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read config body: %w", err)
	}

	var rc remoteConfig
	if err := json.Unmarshal(body, &rc); err != nil {
		return nil, fmt.Errorf("malformed config body: %w", err)
	}

	if !isAbsoluteURL(rc.TargetURL) {
		return nil, fmt.Errorf("config body has no valid targetUrl: %q", rc.TargetURL)
	}

	next := &BridgeConfig{TargetURL: rc.TargetURL, Secret: s.Get().Secret}
	if rc.Secret != nil {
		next.Secret = *rc.Secret
	}
	return next, nil
}

func isAbsoluteURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// Run refreshes once immediately, then on the configured schedule until ctx
// ends. A failed refresh gets no backoff: the local config service is allowed
// to be intermittently absent, and the recurring tick is the retry policy.
func (s *Source) Run(ctx context.Context) {
	s.Refresh(ctx)

	if s.schedule != "" {
		s.runCron(ctx)
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// runCron checks the cron expression once a minute, the gronx tick
// resolution.
func (s *Source) runCron(ctx context.Context) {
	g := gronx.New()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			due, err := g.IsDue(s.schedule, time.Now())
			if err != nil {
				logger.WarnCF("config", "Refresh schedule evaluation failed", map[string]interface{}{
					"schedule": s.schedule,
					"error":    err.Error(),
				})
				continue
			}
			if due {
				s.Refresh(ctx)
			}
		}
	}
}
