package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type MeterbridgeConfig struct {
	Exporter    string `yaml:"exporter" validate:"required,oneof=datadog otlp"`
	EnvFilePath string `yaml:"env_file" validate:"omitempty"`

	// APIKey and LicenseKey are mutually exclusive; exactly one is
	// required for the datadog exporter.
	APIKey     string `yaml:"api_key" validate:"excluded_with=LicenseKey"`
	LicenseKey string `yaml:"license_key" validate:"excluded_with=APIKey"`

	// EndpointURL overrides the backend's default ingestion endpoint.
	// An invalid URL is a construction-time error.
	EndpointURL string `yaml:"endpoint_url" validate:"omitempty"`

	BatchSize      *int   `yaml:"batch_size" validate:"omitnil,gte=1,lte=10000"`
	StepSeconds    *int   `yaml:"step" validate:"omitnil,gte=1,lte=3600"`
	ServiceName    string `yaml:"service_name" validate:"omitempty"`
	AuditMode      bool   `yaml:"audit_mode"`
	ProcessMetrics bool   `yaml:"process_metrics"`
	LogDirectory   string `yaml:"log_directory" validate:"omitempty"`

	Percentiles []float64 `yaml:"percentiles" validate:"omitempty,dive,gt=0,lt=1"`

	Datadog *DatadogConfig `yaml:"datadog" validate:"required_if=Exporter datadog"`
	OTLP    *OTLPConfig    `yaml:"otlp" validate:"required_if=Exporter otlp"`
}

type DatadogConfig struct {
	Site               string `yaml:"site" validate:"omitempty"`
	AppKey             string `yaml:"app_key" validate:"omitempty"`
	DisableCompression *bool  `yaml:"disable_compression" validate:"omitnil"`
	MaxRetries         *int   `yaml:"max_retries" validate:"omitnil,gte=0,lte=10"`
}

type OTLPConfig struct {
	Protocol    string            `yaml:"protocol" validate:"required,oneof=grpc http"`
	TLS         TLSConfig         `yaml:"tls" validate:"omitempty"`
	Compression string            `yaml:"compression" validate:"omitempty,oneof=gzip"`
	Headers     map[string]string `yaml:"headers" validate:"omitempty"`
	Timeout     *int              `yaml:"timeout" validate:"omitnil,gte=1"`
}

type TLSConfig struct {
	Insecure           bool   `yaml:"insecure"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	CAFile             string `yaml:"ca_file" validate:"omitempty,filepath"`
	CertFile           string `yaml:"cert_file" validate:"omitempty,filepath"`
	KeyFile            string `yaml:"key_file" validate:"omitempty,filepath"`
}

func GetDefaultConfig() MeterbridgeConfig {
	return MeterbridgeConfig{
		Exporter: "otlp",
		OTLP: &OTLPConfig{
			Protocol: "grpc",
		},
	}
}

// ReadMeterbridgeConfig decodes and validates a YAML configuration.
// Secret fields support ${ENV_VAR} expansion, optionally sourced from
// a .env file.
func ReadMeterbridgeConfig(fileBytes []byte) (MeterbridgeConfig, error) {
	config := MeterbridgeConfig{}
	err := yaml.Unmarshal(fileBytes, &config)
	if err != nil {
		return MeterbridgeConfig{}, fmt.Errorf("error decoding config YAML: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	err = validate.Struct(config)
	if err != nil {
		return MeterbridgeConfig{}, fmt.Errorf("invalid meterbridge configuration: %v", err)
	}

	if config.Exporter == "datadog" && config.APIKey == "" && config.LicenseKey == "" {
		return MeterbridgeConfig{}, fmt.Errorf("the datadog exporter requires either api_key or license_key")
	}

	if config.EndpointURL != "" {
		parsed, err := url.ParseRequestURI(config.EndpointURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return MeterbridgeConfig{}, fmt.Errorf("invalid endpoint URL: %q", config.EndpointURL)
		}
	}

	if config.EnvFilePath != "" {
		err = godotenv.Load(config.EnvFilePath)
		if err != nil {
			return MeterbridgeConfig{}, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	config.APIKey = os.ExpandEnv(config.APIKey)
	config.LicenseKey = os.ExpandEnv(config.LicenseKey)
	if config.Datadog != nil {
		config.Datadog.AppKey = os.ExpandEnv(config.Datadog.AppKey)
	}
	if config.OTLP != nil {
		for k, v := range config.OTLP.Headers {
			config.OTLP.Headers[k] = os.ExpandEnv(v)
		}
	}

	return config, nil
}
