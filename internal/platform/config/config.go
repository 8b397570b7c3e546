package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultSecurityEnvironment = "local"
	defaultCurrency            = "USD"
	defaultServiceFeeRate      = 0.10
	defaultPlatformFeeRate     = 0.10
	defaultTaxRate             = 0.0
	defaultOrderNumberPrefix   = "FM"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Firestore FirestoreConfig
	PSP       PSPConfig
	PubSub    PubSubConfig
	Fees      FeeConfig
	Security  SecurityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PSPConfig collects secrets for the payment gateway.
type PSPConfig struct {
	StripeAPIKey        string
	StripeWebhookSecret string
}

// PubSubConfig names the topic used for order lifecycle notifications.
type PubSubConfig struct {
	ProjectID        string
	OrderEventsTopic string
}

// FeeConfig holds the configured fee and tax rates applied at checkout and in
// the ledger. Rates are fractions, e.g. 0.10 for 10%.
type FeeConfig struct {
	ServiceFeeRate    float64
	PlatformFeeRate   float64
	TaxRate           float64
	Currency          string
	OrderNumberPrefix string
}

// SecurityConfig groups environment identification for secret resolution.
type SecurityConfig struct {
	Environment string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file consulted during loading.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = strings.TrimSpace(path)
	}
}

// WithEnvMap supplies explicit values taking precedence over file and system env.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment (for tests).
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver wires the resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Load assembles the configuration from the env file, process environment, and
// explicit overrides, resolving secret:// references through the resolver.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	env := newEnvLookup(options)

	cfg := Config{
		Server: ServerConfig{
			Port:         env.stringOr("API_PORT", defaultPort),
			ReadTimeout:  env.durationOr("API_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: env.durationOr("API_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  env.durationOr("API_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.stringOr("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: env.stringOr("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		PSP: PSPConfig{
			StripeAPIKey:        env.stringOr("API_STRIPE_API_KEY", ""),
			StripeWebhookSecret: env.stringOr("API_STRIPE_WEBHOOK_SECRET", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:        env.stringOr("API_PUBSUB_PROJECT_ID", ""),
			OrderEventsTopic: env.stringOr("API_PUBSUB_ORDER_EVENTS_TOPIC", ""),
		},
		Fees: FeeConfig{
			ServiceFeeRate:    env.floatOr("API_SERVICE_FEE_RATE", defaultServiceFeeRate),
			PlatformFeeRate:   env.floatOr("API_PLATFORM_FEE_RATE", defaultPlatformFeeRate),
			TaxRate:           env.floatOr("API_TAX_RATE", defaultTaxRate),
			Currency:          strings.ToUpper(env.stringOr("API_CURRENCY", defaultCurrency)),
			OrderNumberPrefix: env.stringOr("API_ORDER_NUMBER_PREFIX", defaultOrderNumberPrefix),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(env.stringOr("API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
		},
	}

	if err := resolveSecrets(ctx, &cfg, options.secret); err != nil {
		return Config{}, err
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func resolveSecrets(ctx context.Context, cfg *Config, resolver SecretResolver) error {
	targets := []*string{
		&cfg.PSP.StripeAPIKey,
		&cfg.PSP.StripeWebhookSecret,
	}
	for _, target := range targets {
		value := strings.TrimSpace(*target)
		if !strings.HasPrefix(value, "secret://") {
			continue
		}
		if resolver == nil {
			return fmt.Errorf("resolve %q: %w", value, errSecretResolverNotConfigured)
		}
		resolved, err := resolver.ResolveSecret(ctx, value)
		if err != nil {
			return fmt.Errorf("resolve %q: %w", value, err)
		}
		*target = resolved
	}
	return nil
}

func validate(cfg Config) error {
	var missing []string
	if strings.TrimSpace(cfg.Server.Port) == "" {
		missing = append(missing, "server.port")
	}
	if cfg.Fees.ServiceFeeRate < 0 || cfg.Fees.ServiceFeeRate >= 1 {
		missing = append(missing, "fees.serviceFeeRate")
	}
	if cfg.Fees.PlatformFeeRate < 0 || cfg.Fees.PlatformFeeRate >= 1 {
		missing = append(missing, "fees.platformFeeRate")
	}
	if cfg.Fees.TaxRate < 0 || cfg.Fees.TaxRate >= 1 {
		missing = append(missing, "fees.taxRate")
	}
	if strings.TrimSpace(cfg.Fees.Currency) == "" {
		missing = append(missing, "fees.currency")
	}
	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

type envLookup struct {
	overrides map[string]string
	fileVals  map[string]string
	useSystem bool
}

func newEnvLookup(options loaderOptions) envLookup {
	lookup := envLookup{
		overrides: options.envMap,
		useSystem: options.useSystemEnv,
	}
	if options.envFile != "" {
		lookup.fileVals = readEnvFile(options.envFile)
	}
	return lookup
}

func (e envLookup) value(key string) (string, bool) {
	if v, ok := e.overrides[key]; ok {
		return strings.TrimSpace(v), true
	}
	if e.useSystem {
		if v, ok := os.LookupEnv(key); ok {
			return strings.TrimSpace(v), true
		}
	}
	if v, ok := e.fileVals[key]; ok {
		return strings.TrimSpace(v), true
	}
	return "", false
}

func (e envLookup) stringOr(key, fallback string) string {
	if v, ok := e.value(key); ok && v != "" {
		return v
	}
	return fallback
}

func (e envLookup) durationOr(key string, fallback time.Duration) time.Duration {
	v, ok := e.value(key)
	if !ok || v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func (e envLookup) floatOr(key string, fallback float64) float64 {
	v, ok := e.value(key)
	if !ok || v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func readEnvFile(path string) map[string]string {
	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"`)
		if key == "" {
			continue
		}
		values[key] = value
	}
	return values
}
