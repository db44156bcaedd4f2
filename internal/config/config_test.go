package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.Scheduler.Interval = 5 * time.Minute
	cfg.Cache.RefreshInterval = 5 * time.Minute
	cfg.Cache.MaxStaleness = 15 * time.Minute
	cfg.Cache.FetchTimeout = 10 * time.Second
	cfg.Cache.PeriodsPerYear = 1095
	cfg.Gate.RedirectThresholdAnnual = 50
	cfg.Gate.RejectThresholdAnnual = 100
	cfg.Gate.ThresholdMode = "absolute"
	cfg.Export.MaxDataPoints = 1000
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("无配置文件时应回落默认值: %v", err)
	}

	if cfg.Cache.RefreshInterval != 5*time.Minute {
		t.Fatalf("默认刷新间隔应为 5m: %s", cfg.Cache.RefreshInterval)
	}
	if cfg.Cache.MaxStaleness != 15*time.Minute {
		t.Fatalf("默认陈旧上限应为 15m: %s", cfg.Cache.MaxStaleness)
	}
	if cfg.Cache.PeriodsPerYear != 1095 {
		t.Fatalf("默认年化期数应为 1095: %d", cfg.Cache.PeriodsPerYear)
	}
	if cfg.Gate.RedirectThresholdAnnual != 50 || cfg.Gate.RejectThresholdAnnual != 100 {
		t.Fatalf("默认阈值不正确: %+v", cfg.Gate)
	}
	if cfg.Gate.ThresholdMode != "absolute" {
		t.Fatalf("默认阈值模式应为 absolute: %s", cfg.Gate.ThresholdMode)
	}
	if len(cfg.Symbols) == 0 {
		t.Fatal("默认符号列表不应为空")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "zero interval", mutate: func(c *Config) { c.Scheduler.Interval = 0 }, want: "scheduler.interval"},
		{name: "ceiling below interval", mutate: func(c *Config) { c.Cache.MaxStaleness = time.Minute }, want: "max_staleness"},
		{name: "zero fetch timeout", mutate: func(c *Config) { c.Cache.FetchTimeout = 0 }, want: "fetch_timeout"},
		{name: "zero periods", mutate: func(c *Config) { c.Cache.PeriodsPerYear = 0 }, want: "periods_per_year"},
		{name: "reject below redirect", mutate: func(c *Config) { c.Gate.RejectThresholdAnnual = 10 }, want: "reject_threshold_annual"},
		{name: "unknown mode", mutate: func(c *Config) { c.Gate.ThresholdMode = "fuzzy" }, want: "threshold_mode"},
		{name: "telegram missing token", mutate: func(c *Config) {
			c.Alerting.Telegram.Enabled = true
			c.Alerting.Telegram.ChatID = "chat"
		}, want: "bot_token"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("应返回错误")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("错误信息应包含 %q: %v", tc.want, err)
			}
		})
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := validConfig()
	if got := cfg.ResolveMaxPoints(0); got != 1000 {
		t.Fatalf("无覆盖时应回落配置值: %d", got)
	}
	if got := cfg.ResolveMaxPoints(50); got != 50 {
		t.Fatalf("CLI 覆盖应优先: %d", got)
	}
}
