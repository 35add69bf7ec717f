package client

import (
	"time"

	"github.com/ski-ext/streamhttp/cache"
	"github.com/ski-ext/streamhttp/protocol/h2"
	"github.com/ski-ext/streamhttp/protocol/h3"
)

// PreferredProtocol names which strategy the facade selects when a
// request's URL scheme doesn't force the choice.
type PreferredProtocol string

const (
	ProtocolAuto PreferredProtocol = "auto"
	ProtocolH2   PreferredProtocol = "h2"
	ProtocolH3   PreferredProtocol = "h3"
)

// ConnectionReuseMode tunes how eagerly idle connections are kept alive.
type ConnectionReuseMode string

const (
	ReuseOff        ConnectionReuseMode = "off"
	ReuseDefault    ConnectionReuseMode = "default"
	ReuseAggressive ConnectionReuseMode = "aggressive"
)

// RetryPolicy mirrors the configuration surface's retry_policy object.
type RetryPolicy struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterFactor  float64
	RetryOnStatus []int
	RetryOnErrors []string
}

// DefaultRetryPolicy shares the H2 strategy's RoundTrip retry shape (100 ms
// base, doubling, 2 s cap). The protocol strategies do not read it: H2
// retries as many times as Request.RetryAttempts says, and H3 does not
// retry requests.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    2,
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.2,
		RetryOnStatus: []int{502, 503, 504},
	}
}

// Config is the resolved configuration surface a Client is built from.
type Config struct {
	PoolMaxIdlePerHost int
	PoolSize           int
	Timeout            time.Duration
	ConnectTimeout     time.Duration
	TCPKeepAlive       bool
	TCPNoDelay         bool

	PreferredProtocol PreferredProtocol
	H2                h2.Config
	H3                h3.Config

	GzipEnabled          bool
	BrotliEnabled        bool
	DeflateEnabled       bool
	RequestCompression   bool
	ResponseCompression  bool

	RetryPolicy     RetryPolicy
	ConnectionReuse ConnectionReuseMode
	IdleSweepInterval time.Duration

	HTTPSOnly      bool
	UseNativeCerts bool

	MetricsEnabled bool
	TracingEnabled bool

	Cache *cache.Cache

	// ProxyURLs, if non-empty, routes every request through a round-robin
	// rotation of these proxies (adapted from the teacher's
	// fetch.roundRobinProxy).
	ProxyURLs []string
}

// DefaultConfig is the baseline every ClientOption (including presets)
// starts from.
func DefaultConfig() Config {
	return Config{
		PoolMaxIdlePerHost: 8,
		PoolSize:           64,
		Timeout:            30 * time.Second,
		ConnectTimeout:     10 * time.Second,
		TCPKeepAlive:       true,
		TCPNoDelay:         true,
		PreferredProtocol:  ProtocolAuto,
		GzipEnabled:        true,
		BrotliEnabled:      true,
		DeflateEnabled:     true,
		RequestCompression: true,
		ResponseCompression: true,
		RetryPolicy:        DefaultRetryPolicy(),
		ConnectionReuse:    ReuseDefault,
		IdleSweepInterval:  90 * time.Second,
		HTTPSOnly:          true,
		MetricsEnabled:     true,
	}
}

// ClientOption configures a Client at construction time, following the
// functional-option shape of the pack's durable-streams client (each
// option is a small closure mutating a shared Config).
type ClientOption func(*Config)

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Config) { c.Timeout = d }
}

func WithConnectTimeout(d time.Duration) ClientOption {
	return func(c *Config) { c.ConnectTimeout = d }
}

func WithPoolSize(maxIdlePerHost, total int) ClientOption {
	return func(c *Config) {
		c.PoolMaxIdlePerHost = maxIdlePerHost
		c.PoolSize = total
	}
}

func WithPreferredProtocol(p PreferredProtocol) ClientOption {
	return func(c *Config) { c.PreferredProtocol = p }
}

func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Config) { c.RetryPolicy = p }
}

func WithCache(c *cache.Cache) ClientOption {
	return func(cfg *Config) { cfg.Cache = c }
}

func WithConnectionReuse(mode ConnectionReuseMode) ClientOption {
	return func(c *Config) { c.ConnectionReuse = mode }
}

func WithCompression(gzip, brotli, deflate bool) ClientOption {
	return func(c *Config) {
		c.GzipEnabled = gzip
		c.BrotliEnabled = brotli
		c.DeflateEnabled = deflate
	}
}

func WithHTTP2Config(h2cfg h2.Config) ClientOption {
	return func(c *Config) { c.H2 = h2cfg }
}

func WithHTTP3Config(h3cfg h3.Config) ClientOption {
	return func(c *Config) { c.H3 = h3cfg }
}

func WithMetrics(enabled bool) ClientOption {
	return func(c *Config) { c.MetricsEnabled = enabled }
}

func WithTracing(enabled bool) ClientOption {
	return func(c *Config) { c.TracingEnabled = enabled }
}

// WithProxy routes every request through a round-robin rotation of the
// given proxy URLs.
func WithProxy(proxyURLs ...string) ClientOption {
	return func(c *Config) { c.ProxyURLs = proxyURLs }
}

// AIOptimized favors large response windows and generous timeouts for
// long-running, large-payload model-serving traffic: bigger H2/H3 flow
// control windows, a longer overall timeout, and aggressive connection
// reuse so a chat session's successive calls stay on one connection.
func AIOptimized() ClientOption {
	return func(c *Config) {
		c.Timeout = 120 * time.Second
		c.ConnectionReuse = ReuseAggressive
		c.H2.InitialWindowSize = 16 << 20
		c.H2.MaxFrameSize = 1 << 20
		c.H3.StreamReceiveWindow = 16 << 20
		c.H3.ConnectionReceiveWindow = 64 << 20
	}
}

// StreamingOptimized favors low per-chunk latency over throughput: small
// windows so data is delivered to the consumer as soon as it arrives
// rather than batched, and H3 preferred for its independent streams.
func StreamingOptimized() ClientOption {
	return func(c *Config) {
		c.PreferredProtocol = ProtocolH3
		c.H2.InitialWindowSize = 64 << 10
		c.H3.StreamReceiveWindow = 64 << 10
		c.H3.CongestionController = h3.CongestionBBR
	}
}

// BatchOptimized favors throughput and connection reuse for many
// sequential, non-latency-sensitive requests: large pools, aggressive
// reuse, and a generous retry budget.
func BatchOptimized() ClientOption {
	return func(c *Config) {
		c.PoolMaxIdlePerHost = 32
		c.PoolSize = 256
		c.ConnectionReuse = ReuseAggressive
		c.RetryPolicy.MaxRetries = 5
		c.RetryPolicy.MaxDelay = 10 * time.Second
	}
}

// LowLatency favors fast failure and minimal buffering over resilience:
// short timeouts, a tight retry budget, and compression disabled (its
// CPU cost is rarely worth it under a tight deadline).
func LowLatency() ClientOption {
	return func(c *Config) {
		c.Timeout = 3 * time.Second
		c.ConnectTimeout = 1 * time.Second
		c.RetryPolicy.MaxRetries = 0
		c.RequestCompression = false
		c.ResponseCompression = false
	}
}
