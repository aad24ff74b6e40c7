package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// clientFile mirrors the YAML layout of the client configuration file.
type clientFile struct {
	BaseURL      string `yaml:"base_url"`
	ThreadID     int64  `yaml:"thread_id"`
	UserID       int64  `yaml:"user_id"`
	PollInterval string `yaml:"poll_interval"`
	PollBackoff  string `yaml:"poll_backoff"`
	LongPollWait string `yaml:"long_poll_wait"`
	Push         *bool  `yaml:"push"`
	MetricsAddr  string `yaml:"metrics_addr"`
	LogLevel     string `yaml:"log_level"`
	TimeZone     string `yaml:"time_zone"`
}

// Client is the configuration of the chatfeed terminal client.
type Client struct {
	BaseURL      string
	ThreadID     int64
	UserID       int64
	PollInterval time.Duration
	PollBackoff  time.Duration
	LongPollWait time.Duration
	Push         bool
	MetricsAddr  string
	LogLevel     string
	Location     *time.Location
}

// LoadClient reads the YAML file at path (skipped when path is empty), then
// applies CHATFEED_* environment overrides.
func LoadClient(path string) (*Client, error) {
	_ = godotenv.Load()

	var f clientFile
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := f.applyEnv(); err != nil {
		return nil, err
	}
	return f.build()
}

func (f *clientFile) applyEnv() error {
	strs := map[string]*string{
		"CHATFEED_BASE_URL":       &f.BaseURL,
		"CHATFEED_POLL_INTERVAL":  &f.PollInterval,
		"CHATFEED_POLL_BACKOFF":   &f.PollBackoff,
		"CHATFEED_LONG_POLL_WAIT": &f.LongPollWait,
		"CHATFEED_METRICS_ADDR":   &f.MetricsAddr,
		"CHATFEED_LOG_LEVEL":      &f.LogLevel,
		"CHATFEED_TIME_ZONE":      &f.TimeZone,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	ints := map[string]*int64{
		"CHATFEED_THREAD_ID": &f.ThreadID,
		"CHATFEED_USER_ID":   &f.UserID,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}
	if v := os.Getenv("CHATFEED_PUSH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CHATFEED_PUSH: %w", err)
		}
		f.Push = &b
	}
	return nil
}

func (f *clientFile) build() (*Client, error) {
	c := &Client{
		BaseURL:     f.BaseURL,
		ThreadID:    f.ThreadID,
		UserID:      f.UserID,
		Push:        f.Push == nil || *f.Push,
		MetricsAddr: f.MetricsAddr,
		LogLevel:    f.LogLevel,
		Location:    time.Local,
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"poll_interval", f.PollInterval, &c.PollInterval},
		{"poll_backoff", f.PollBackoff, &c.PollBackoff},
		{"long_poll_wait", f.LongPollWait, &c.LongPollWait},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil || v < 0 {
			return nil, fmt.Errorf("invalid %s %q", d.name, d.raw)
		}
		*d.dst = v
	}

	if f.TimeZone != "" {
		loc, err := time.LoadLocation(f.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("time_zone: %w", err)
		}
		c.Location = loc
	}
	return c, nil
}

// Validate checks the fields needed to open a thread.
func (c *Client) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url %q is not an absolute URL", c.BaseURL)
	}
	if c.ThreadID <= 0 {
		return errors.New("thread_id is required")
	}
	if c.UserID <= 0 {
		return errors.New("user_id is required")
	}
	return nil
}

// ThreadPageURL is the server-rendered page of the configured thread.
func (c *Client) ThreadPageURL() string {
	base, _ := url.Parse(c.BaseURL)
	return base.ResolveReference(&url.URL{Path: fmt.Sprintf("/chat/t/%d", c.ThreadID)}).String()
}
