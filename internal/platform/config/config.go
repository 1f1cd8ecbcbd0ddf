package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	// Region timezones must resolve in minimal containers.
	_ "time/tzdata"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultSecurityEnvironment = "local"
	defaultCurrency            = "JPY"
	defaultMultiple            = 1
	defaultTimezone            = "Asia/Tokyo"
	defaultLocale              = "ja"
	defaultNotifyTransport     = TransportLog
	defaultAMQPExchange        = "ownplate.notifications"
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultOrderRateLimit      = 60
	defaultOrderRateWindow     = time.Minute
)

// Notification transports understood by the API.
const (
	TransportLog    = "log"
	TransportPubSub = "pubsub"
	TransportAMQP   = "amqp"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Firebase      FirebaseConfig
	Firestore     FirestoreConfig
	Stripe        StripeConfig
	Region        RegionConfig
	Notifications NotificationsConfig
	Orders        OrdersConfig
	Security      SecurityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters. An empty ProjectID selects the in-memory store.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StripeConfig holds payment processor credentials.
type StripeConfig struct {
	SecretKey string
}

// RegionConfig describes the deployment region: currency, rounding and local time.
type RegionConfig struct {
	Currency string
	// Multiple is the rounding multiple for money amounts: 1 for JPY, 100 for cents.
	Multiple      float64
	Timezone      string
	DefaultLocale string
}

// Location resolves Timezone, falling back to UTC when it cannot be loaded.
func (r RegionConfig) Location() *time.Location {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NotificationsConfig selects and configures the notification transport.
type NotificationsConfig struct {
	Transport    string
	PubSubTopic  string
	AMQPURL      string
	AMQPExchange string
}

// OrdersConfig tunes the order endpoints. A RateLimit of zero disables throttling.
type OrdersConfig struct {
	IdempotencyTTL time.Duration
	RateLimit      int
	RateWindow     time.Duration
}

// SecurityConfig groups deployment level security settings.
type SecurityConfig struct {
	Environment string
}

// IsLocal reports whether the API runs in a developer environment.
func (s SecurityConfig) IsLocal() bool {
	return s.Environment == "" || s.Environment == defaultSecurityEnvironment
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

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets resolved to nothing.
type MissingSecretsError struct {
	names []string
}

// Error implements the error interface. Names are redacted.
func (e *MissingSecretsError) Error() string {
	redacted := make([]string, 0, len(e.names))
	for _, name := range e.names {
		redacted = append(redacted, redactSecretName(name))
	}
	sort.Strings(redacted)
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(redacted, ", "))
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// EnvironmentValues returns the effective key/value environment map after applying the same
// precedence rules as Load (dotenv < OS env < explicit env map).
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}

	values, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = make(map[string]string)
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[strings.TrimSpace(key)] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map that takes precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks config fields (e.g. "Stripe.SecretKey") that must resolve to a value.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) (string, bool) {
		if value, ok := options.envMap[key]; ok {
			return value, true
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnvValues[key]
		return value, ok
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Stripe: StripeConfig{
			SecretKey: stringWithDefault(lookup, "API_STRIPE_SECRET_KEY", ""),
		},
		Region: RegionConfig{
			Currency:      strings.ToUpper(stringWithDefault(lookup, "API_REGION_CURRENCY", defaultCurrency)),
			Multiple:      floatWithDefault(lookup, "API_REGION_MULTIPLE", defaultMultiple),
			Timezone:      stringWithDefault(lookup, "API_REGION_TIMEZONE", defaultTimezone),
			DefaultLocale: stringWithDefault(lookup, "API_REGION_DEFAULT_LOCALE", defaultLocale),
		},
		Notifications: NotificationsConfig{
			Transport:    strings.ToLower(stringWithDefault(lookup, "API_NOTIFY_TRANSPORT", defaultNotifyTransport)),
			PubSubTopic:  stringWithDefault(lookup, "API_NOTIFY_PUBSUB_TOPIC", ""),
			AMQPURL:      stringWithDefault(lookup, "API_NOTIFY_AMQP_URL", ""),
			AMQPExchange: stringWithDefault(lookup, "API_NOTIFY_AMQP_EXCHANGE", defaultAMQPExchange),
		},
		Orders: OrdersConfig{
			IdempotencyTTL: durationWithDefault(lookup, "API_ORDERS_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			RateLimit:      intWithDefault(lookup, "API_ORDERS_RATE_LIMIT", defaultOrderRateLimit),
			RateWindow:     durationWithDefault(lookup, "API_ORDERS_RATE_WINDOW", defaultOrderRateWindow),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
		},
	}

	// Firestore project defaults to Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Stripe.SecretKey", &cfg.Stripe.SecretKey},
		{"Notifications.AMQPURL", &cfg.Notifications.AMQPURL},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if len(cfg.Region.Currency) != 3 {
		missing = append(missing, "Region.Currency")
	}
	if cfg.Region.Multiple <= 0 {
		missing = append(missing, "Region.Multiple")
	}
	if _, err := time.LoadLocation(cfg.Region.Timezone); err != nil || cfg.Region.Timezone == "" {
		missing = append(missing, "Region.Timezone")
	}
	switch cfg.Notifications.Transport {
	case TransportLog:
	case TransportPubSub:
		if cfg.Notifications.PubSubTopic == "" {
			missing = append(missing, "Notifications.PubSubTopic")
		}
		if cfg.Firebase.ProjectID == "" && cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firebase.ProjectID")
		}
	case TransportAMQP:
		if cfg.Notifications.AMQPURL == "" {
			missing = append(missing, "Notifications.AMQPURL")
		}
	default:
		missing = append(missing, "Notifications.Transport")
	}
	if cfg.Orders.IdempotencyTTL <= 0 {
		missing = append(missing, "Orders.IdempotencyTTL")
	}
	if cfg.Orders.RateLimit < 0 || (cfg.Orders.RateLimit > 0 && cfg.Orders.RateWindow <= 0) {
		missing = append(missing, "Orders.RateWindow")
	}
	if !cfg.Security.IsLocal() {
		if cfg.Firebase.ProjectID == "" {
			missing = append(missing, "Firebase.ProjectID")
		}
		if cfg.Stripe.SecretKey == "" {
			missing = append(missing, "Stripe.SecretKey")
		}
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	var names []string
	seen := make(map[string]struct{})
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		if resolved[name] == "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	return &MissingSecretsError{names: names}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		return "secret://" + rest
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func floatWithDefault(lookup func(string) (string, bool), key string, fallback float64) float64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}
