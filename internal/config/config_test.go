package config

import (
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func intPtr(v int) *int {
	return &v
}

func TestReadMeterbridgeConfig(t *testing.T) {
	type testCase struct {
		name        string
		rawYaml     string
		expectedCfg MeterbridgeConfig
		err         bool
	}

	testCases := []testCase{
		{
			name: "otlp with grpc protocol",
			rawYaml: `
exporter: otlp
otlp:
  protocol: grpc`,
			expectedCfg: MeterbridgeConfig{
				Exporter: "otlp",
				OTLP: &OTLPConfig{
					Protocol: "grpc",
				},
			},
			err: false,
		},

		{
			name: "otlp with all the bells and whistles",
			rawYaml: `
exporter: otlp
endpoint_url: https://collector.example.com:4317
batch_size: 500
step: 10
service_name: checkout
audit_mode: true
percentiles: [0.5, 0.95]
otlp:
  protocol: http
  compression: gzip
  timeout: 15
  headers:
    x-tenant: main
  tls:
    insecure_skip_verify: true`,
			expectedCfg: MeterbridgeConfig{
				Exporter:    "otlp",
				EndpointURL: "https://collector.example.com:4317",
				BatchSize:   intPtr(500),
				StepSeconds: intPtr(10),
				ServiceName: "checkout",
				AuditMode:   true,
				Percentiles: []float64{0.5, 0.95},
				OTLP: &OTLPConfig{
					Protocol:    "http",
					Compression: "gzip",
					Timeout:     intPtr(15),
					Headers:     map[string]string{"x-tenant": "main"},
					TLS:         TLSConfig{InsecureSkipVerify: true},
				},
			},
			err: false,
		},

		{
			name: "datadog with api key",
			rawYaml: `
exporter: datadog
api_key: secret
datadog:
  site: datadoghq.eu`,
			expectedCfg: MeterbridgeConfig{
				Exporter: "datadog",
				APIKey:   "secret",
				Datadog: &DatadogConfig{
					Site: "datadoghq.eu",
				},
			},
			err: false,
		},

		{
			name: "datadog with license key",
			rawYaml: `
exporter: datadog
license_key: secret
datadog: {}`,
			expectedCfg: MeterbridgeConfig{
				Exporter:   "datadog",
				LicenseKey: "secret",
				Datadog:    &DatadogConfig{},
			},
			err: false,
		},

		{
			name: "api key and license key are mutually exclusive",
			rawYaml: `
exporter: datadog
api_key: one
license_key: two
datadog: {}`,
			err: true,
		},

		{
			name: "datadog without any key",
			rawYaml: `
exporter: datadog
datadog: {}`,
			err: true,
		},

		{
			name: "invalid endpoint URL is fatal",
			rawYaml: `
exporter: otlp
endpoint_url: "::not a url::"
otlp:
  protocol: grpc`,
			err: true,
		},

		{
			name: "unknown exporter",
			rawYaml: `
exporter: graphite`,
			err: true,
		},

		{
			name: "missing exporter section",
			rawYaml: `
exporter: otlp`,
			err: true,
		},

		{
			name: "batch size out of range",
			rawYaml: `
exporter: otlp
batch_size: 0
otlp:
  protocol: grpc`,
			err: true,
		},

		{
			name: "percentile out of range",
			rawYaml: `
exporter: otlp
percentiles: [1.5]
otlp:
  protocol: grpc`,
			err: true,
		},

		{
			name:    "malformed yaml",
			rawYaml: `exporter: [`,
			err:     true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := ReadMeterbridgeConfig([]byte(tc.rawYaml))
			if tc.err {
				if err == nil {
					t.Fatalf("expected an error, got config %+v", cfg)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tc.expectedCfg, cfg); diff != "" {
				t.Errorf("unexpected config (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadMeterbridgeConfigExpandsEnv(t *testing.T) {
	os.Setenv("MB_TEST_API_KEY", "expanded-secret")
	defer os.Unsetenv("MB_TEST_API_KEY")

	rawYaml := `
exporter: datadog
api_key: ${MB_TEST_API_KEY}
datadog: {}`

	cfg, err := ReadMeterbridgeConfig([]byte(rawYaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIKey != "expanded-secret" {
		t.Errorf("expected api key to be expanded from the environment, got %q", cfg.APIKey)
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	if cfg.Exporter != "otlp" {
		t.Errorf("expected default exporter otlp, got %q", cfg.Exporter)
	}
	if cfg.OTLP == nil || cfg.OTLP.Protocol != "grpc" {
		t.Errorf("expected default otlp protocol grpc")
	}
}
