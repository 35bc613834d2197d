// Copyright 2023 Stock Parfait

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sdmx

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/stockparfait/errors"
	"golang.org/x/time/rate"
)

// Version of the library, reported in the default User-Agent.
const Version = "0.1.0"

// URL is the default base URL of the service; see Config.BaseURL.
var URL = "http://dataservices.imf.org/REST/SDMX_JSON.svc"

// maxAppNameLen is the maximum length of the User-Agent string; longer
// values are truncated.
const maxAppNameLen = 255

type contextKey int

const (
	clientContextKey contextKey = iota
)

// Config of the client. The zero value is usable; see the field defaults.
type Config struct {
	// AppName is sent as the User-Agent header, truncated to 255 characters.
	// NewConfig() populates it from the IMF_APP_NAME environment variable.
	// Default: "imfdata/<Version>".
	AppName string `envconfig:"APP_NAME"`

	// RateCalls per RatePeriod is the maximum call rate enforced by the
	// client's token-bucket limiter. Default: 5 calls per 5 seconds, the
	// documented limit of the service.
	RateCalls  int           `ignored:"true"`
	RatePeriod time.Duration `ignored:"true"`

	// RetryDelay is the unit of the exponential retry backoff: the sleep
	// before attempt N+1 is 2^N * RetryDelay. Default: 1 second.
	RetryDelay time.Duration `ignored:"true"`

	// Transport is the HTTP client to use. Default: http.DefaultClient.
	Transport *http.Client `ignored:"true"`

	// BaseURL of the service, primarily for tests. Default: URL.
	BaseURL string `ignored:"true"`
}

// NewConfig creates a Config with the environment overrides applied.
func NewConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("imf", &c); err != nil {
		return nil, errors.Annotate(err, "failed to process environment config")
	}
	return &c, nil
}

func (c Config) withDefaults() Config {
	if c.AppName == "" {
		c.AppName = fmt.Sprintf("imfdata/%s", Version)
	}
	if len(c.AppName) > maxAppNameLen {
		c.AppName = c.AppName[:maxAppNameLen]
	}
	if c.RateCalls <= 0 {
		c.RateCalls = 5
	}
	if c.RatePeriod <= 0 {
		c.RatePeriod = 5 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.Transport == nil {
		c.Transport = http.DefaultClient
	}
	if c.BaseURL == "" {
		c.BaseURL = URL
	}
	return c
}

// Client for querying the service. All requests of a single client share its
// rate limiter, which may block a caller until the limiter admits another
// call.
type Client struct {
	baseURL    string
	userAgent  string
	retryDelay time.Duration
	limiter    *rate.Limiter
	transport  *http.Client
}

// newClient creates a new client from the config.
func newClient(cfg Config) *Client {
	cfg = cfg.withDefaults()
	every := cfg.RatePeriod / time.Duration(cfg.RateCalls)
	return &Client{
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.AppName,
		retryDelay: cfg.RetryDelay,
		limiter:    rate.NewLimiter(rate.Every(every), cfg.RateCalls),
		transport:  cfg.Transport,
	}
}

// GetClient extracts the Client from the context, if any.
func GetClient(ctx context.Context) *Client {
	c, ok := ctx.Value(clientContextKey).(*Client)
	if !ok {
		return nil
	}
	return c
}

// UseClient creates a new client based on the config and injects it into the
// context. A nil config is equivalent to NewConfig() defaults.
func UseClient(ctx context.Context, cfg *Config) context.Context {
	if cfg == nil {
		cfg = defaultConfig()
	}
	return context.WithValue(ctx, clientContextKey, newClient(*cfg))
}

func defaultConfig() *Config {
	c, err := NewConfig()
	if err != nil {
		return &Config{}
	}
	return c
}
