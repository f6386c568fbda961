package observe

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{
			name: "valid",
			cfg: Config{
				ServiceName: "chatrelay",
				Tracing:     TracingConfig{Enabled: true, Exporter: "stdout", SamplePct: 1},
				Metrics:     MetricsConfig{Enabled: true, Exporter: "prometheus"},
				Logging:     LoggingConfig{Enabled: true, Level: "info", Format: "console"},
			},
		},
		{
			name: "missing service name",
			cfg:  Config{},
			want: ErrMissingServiceName,
		},
		{
			name: "unknown tracing exporter",
			cfg:  Config{ServiceName: "s", Tracing: TracingConfig{Enabled: true, Exporter: "zipkin"}},
			want: ErrInvalidTracingExporter,
		},
		{
			name: "sample pct out of range",
			cfg:  Config{ServiceName: "s", Tracing: TracingConfig{Enabled: true, Exporter: "none", SamplePct: 1.5}},
			want: ErrInvalidSamplePct,
		},
		{
			name: "unknown metrics exporter",
			cfg:  Config{ServiceName: "s", Metrics: MetricsConfig{Enabled: true, Exporter: "statsd"}},
			want: ErrInvalidMetricsExporter,
		},
		{
			name: "unknown log level",
			cfg:  Config{ServiceName: "s", Logging: LoggingConfig{Enabled: true, Level: "trace"}},
			want: ErrInvalidLogLevel,
		},
		{
			name: "unknown log format",
			cfg:  Config{ServiceName: "s", Logging: LoggingConfig{Enabled: true, Format: "xml"}},
			want: ErrInvalidLogFormat,
		},
		{
			name: "disabled subsystems are not checked",
			cfg: Config{
				ServiceName: "s",
				Tracing:     TracingConfig{Exporter: "zipkin"},
				Logging:     LoggingConfig{Level: "trace"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNewObserver_Disabled(t *testing.T) {
	obs, err := NewObserver(context.Background(), Config{ServiceName: "chatrelay-test"})
	if err != nil {
		t.Fatalf("NewObserver() error = %v", err)
	}
	if obs.Tracer() == nil || obs.Meter() == nil || obs.Logger() == nil {
		t.Fatal("observer returned nil primitive")
	}
	if _, ok := obs.Logger().(nopLogger); !ok {
		t.Errorf("Logger() = %T, want nopLogger", obs.Logger())
	}
	if err := obs.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNewObserver_InvalidConfig(t *testing.T) {
	if _, err := NewObserver(context.Background(), Config{}); !errors.Is(err, ErrMissingServiceName) {
		t.Errorf("NewObserver() error = %v, want ErrMissingServiceName", err)
	}
}

func TestNewObserver_LoggerCarriesService(t *testing.T) {
	var buf bytes.Buffer
	obs, err := NewObserver(context.Background(), Config{
		ServiceName: "chatrelay-test",
		Logging:     LoggingConfig{Enabled: true, Level: "info", Output: &buf},
	})
	if err != nil {
		t.Fatalf("NewObserver() error = %v", err)
	}

	obs.Logger().Info(context.Background(), "ready")

	if !strings.Contains(buf.String(), `"service":"chatrelay-test"`) {
		t.Errorf("log output = %s", buf.String())
	}
}

func TestNewObserver_PrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := NewObserver(context.Background(), Config{
		ServiceName: "chatrelay-test",
		Tracing:     TracingConfig{Enabled: true, Exporter: "none", SamplePct: 1},
		Metrics:     MetricsConfig{Enabled: true, Exporter: "prometheus", Registerer: reg},
	})
	if err != nil {
		t.Fatalf("NewObserver() error = %v", err)
	}
	defer func() { _ = obs.Shutdown(context.Background()) }()

	mw, err := MiddlewareFromObserver(obs)
	if err != nil {
		t.Fatalf("MiddlewareFromObserver() error = %v", err)
	}
	_ = mw.Wrap(geminiCall, func(context.Context) error { return nil })(context.Background())

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	var found bool
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), "chatrelay_call_total") {
			found = true
		}
	}
	if !found {
		t.Error("chatrelay_call_total not exported to Prometheus registry")
	}
}
