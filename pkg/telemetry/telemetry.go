// Package telemetry wires the gateway into OpenTelemetry tracing. The
// exporter is optional: without OTEL_EXPORTER_OTLP_ENDPOINT the process
// runs with a local tracer provider so span context still propagates.
package telemetry

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.25.0"
)

const defaultService = "scrybe"

type exporterConfig struct {
	endpoint string
	headers  map[string]string
	timeout  time.Duration
	insecure bool
	// required turns exporter startup failures into hard errors instead
	// of a logged fallback to a local provider.
	required bool
	sampler  trace.Sampler
}

func exporterConfigFromEnv() exporterConfig {
	return exporterConfig{
		endpoint: strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		headers:  parseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		timeout:  time.Second * time.Duration(envInt("OTEL_EXPORTER_OTLP_TIMEOUT_SEC", 5)),
		insecure: os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true",
		required: os.Getenv("OTEL_REQUIRED") == "true",
		sampler:  parseSampler(os.Getenv("OTEL_TRACES_SAMPLER"), os.Getenv("OTEL_TRACES_SAMPLER_ARG")),
	}
}

// Init installs a global tracer provider for the named service and
// returns its shutdown hook. An unreachable collector only fails startup
// when OTEL_REQUIRED=true.
func Init(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	cfg := exporterConfigFromEnv()
	res := serviceResource(serviceName)

	if cfg.endpoint == "" {
		return install(res, cfg.sampler, nil), nil
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.endpoint),
		otlptracehttp.WithTimeout(cfg.timeout),
	}
	if cfg.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.headers))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		if cfg.required {
			return nil, err
		}
		log.Printf("otel exporter disabled: %v", err)
		return install(res, cfg.sampler, nil), nil
	}
	return install(res, cfg.sampler, exporter), nil
}

func serviceResource(serviceName string) *resource.Resource {
	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		serviceName = defaultService
	}
	res, _ := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	))
	return res
}

func install(res *resource.Resource, sampler trace.Sampler, exporter trace.SpanExporter) func(context.Context) error {
	tpOpts := []trace.TracerProviderOption{
		trace.WithResource(res),
		trace.WithSampler(sampler),
	}
	if exporter != nil {
		tpOpts = append(tpOpts, trace.WithBatcher(exporter))
	}
	tp := trace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown
}

// HTTPMiddleware wraps inbound handlers with server spans.
func HTTPMiddleware(serviceName string) func(http.Handler) http.Handler {
	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		serviceName = defaultService
	}
	return otelhttp.NewMiddleware(serviceName)
}

// parseSampler maps the standard OTEL_TRACES_SAMPLER values onto SDK
// samplers. Unknown names fall back to parent-based ratio sampling and
// the ratio argument is clamped to [0, 1].
func parseSampler(name, arg string) trace.Sampler {
	ratio := 1.0
	if arg = strings.TrimSpace(arg); arg != "" {
		if val, err := strconv.ParseFloat(arg, 64); err == nil {
			ratio = min(max(val, 0), 1)
		}
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "always_on":
		return trace.AlwaysSample()
	case "always_off":
		return trace.NeverSample()
	case "traceidratio":
		return trace.TraceIDRatioBased(ratio)
	default:
		return trace.ParentBased(trace.TraceIDRatioBased(ratio))
	}
}

// parseHeaders reads the W3C Baggage-ish "k1=v1,k2=v2" form used by
// OTEL_EXPORTER_OTLP_HEADERS. Malformed entries are skipped.
func parseHeaders(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		if k = strings.TrimSpace(k); k != "" {
			out[k] = strings.TrimSpace(v)
		}
	}
	return out
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
