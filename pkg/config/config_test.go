package config

import (
	"testing"
	"time"
)

func TestInsightsDurations(t *testing.T) {
	tests := []struct {
		name    string
		cfg     InsightsConfig
		timeout time.Duration
		delay   time.Duration
	}{
		{"configured", InsightsConfig{TimeoutMS: 2500, RefreshDelayMS: 250}, 2500 * time.Millisecond, 250 * time.Millisecond},
		{"unset", InsightsConfig{}, 5 * time.Second, time.Second},
		{"zero delay keeps throttle", InsightsConfig{TimeoutMS: 1000, RefreshDelayMS: 0}, time.Second, time.Second},
		{"negative", InsightsConfig{TimeoutMS: -1, RefreshDelayMS: -50}, 5 * time.Second, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Timeout(); got != tt.timeout {
				t.Errorf("Timeout = %v, want %v", got, tt.timeout)
			}
			if got := tt.cfg.RefreshDelay(); got != tt.delay {
				t.Errorf("RefreshDelay = %v, want %v", got, tt.delay)
			}
		})
	}
}

func TestRefreshDelayEnvOverride(t *testing.T) {
	t.Setenv("INSIGHTS_REFRESH_DELAY_MS", "0")
	cfg := Defaults().Insights
	OverrideInsightsFromEnv(&cfg)
	if got := cfg.RefreshDelay(); got != time.Second {
		t.Errorf("RefreshDelay = %v, want 1s", got)
	}
}
