package exporters

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const defaultTimeout = 10 * time.Second

// OTLPConfig describes the collector spans are shipped to.
type OTLPConfig struct {
	// Endpoint is host:port, or a collector URL whose scheme decides TLS and whose path is
	// used as the HTTP traces path.
	Endpoint string
	// Protocol is "grpc" or "http".
	Protocol string
	Insecure bool
	// Headers is a comma separated key=value list, such as an API key for a hosted collector.
	Headers string
	Timeout time.Duration
}

// target is an OTLPConfig resolved into exporter options.
type target struct {
	host     string
	path     string
	insecure bool
	headers  map[string]string
	timeout  time.Duration
}

func (c OTLPConfig) resolve() (target, error) {
	t := target{host: c.Endpoint, insecure: c.Insecure, timeout: c.Timeout}
	if t.timeout == 0 {
		t.timeout = defaultTimeout
	}

	if strings.Contains(c.Endpoint, "://") {
		u, err := url.Parse(c.Endpoint)
		if err != nil {
			return target{}, fmt.Errorf("invalid OTLP endpoint %q: %w", c.Endpoint, err)
		}
		switch u.Scheme {
		case "http":
			t.insecure = true
		case "https":
			t.insecure = false
		default:
			return target{}, fmt.Errorf("invalid OTLP endpoint scheme %q", u.Scheme)
		}
		t.host = u.Host
		if u.Path != "" && u.Path != "/" {
			t.path = u.Path
		}
	}
	if t.host == "" {
		return target{}, fmt.Errorf("OTLP endpoint is required")
	}

	headers, err := ParseHeaders(c.Headers)
	if err != nil {
		return target{}, err
	}
	t.headers = headers
	return t, nil
}

// ParseHeaders reads "k1=v1,k2=v2". Values may contain '='.
func ParseHeaders(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	headers := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid OTLP header %q, expected key=value", pair)
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers, nil
}

// New returns the OTLP exporter when enabled, otherwise a console exporter writing to logger.
func New(ctx context.Context, enabled bool, config OTLPConfig, logger ectologger.Logger) (trace.SpanExporter, error) {
	if !enabled {
		return &ConsoleExporter{Logger: logger}, nil
	}

	t, err := config.resolve()
	if err != nil {
		return nil, err
	}
	logger.WithFields(map[string]any{
		"endpoint": t.host,
		"protocol": config.Protocol,
		"insecure": t.insecure,
	}).Info("exporting traces over OTLP")

	var exporter *otlptrace.Exporter
	switch config.Protocol {
	case "grpc":
		exporter, err = otlptracegrpc.New(ctx, grpcOptions(t)...)
	case "http":
		exporter, err = otlptracehttp.New(ctx, httpOptions(t)...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol: %s (use 'grpc' or 'http')", config.Protocol)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP %s exporter: %w", config.Protocol, err)
	}
	return exporter, nil
}

func grpcOptions(t target) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(t.host),
		otlptracegrpc.WithTimeout(t.timeout),
	}
	if t.insecure {
		opts = append(opts,
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	if len(t.headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(t.headers))
	}
	return opts
}

func httpOptions(t target) []otlptracehttp.Option {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(t.host),
		otlptracehttp.WithTimeout(t.timeout),
	}
	if t.path != "" {
		opts = append(opts, otlptracehttp.WithURLPath(t.path))
	}
	if t.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(t.headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(t.headers))
	}
	return opts
}
