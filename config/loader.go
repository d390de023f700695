package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/staffcache/secret"
)

// DefaultEnvPrefix prefixes every environment override, as in
// STAFFCACHE_BACKEND_BASE_URL.
const DefaultEnvPrefix = "STAFFCACHE"

// Loader builds a Config from its sources.
type Loader struct {
	path      string
	envPrefix string
	registry  *secret.Registry
	lookup    func(string) (string, bool)
}

// NewLoader creates a loader with the default env prefix and secret registry.
func NewLoader() *Loader {
	return &Loader{
		envPrefix: DefaultEnvPrefix,
		registry:  secret.DefaultRegistry,
		lookup:    os.LookupEnv,
	}
}

// WithPath reads path as YAML. An empty path skips the file.
func (l *Loader) WithPath(path string) *Loader {
	l.path = path
	return l
}

// WithEnvPrefix replaces DefaultEnvPrefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithSecretRegistry sets where secret providers named in the config come from.
func (l *Loader) WithSecretRegistry(r *secret.Registry) *Loader {
	l.registry = r
	return l
}

// Load applies defaults, the file, environment overrides and secrets, then
// validates the result.
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	cfg := Default()

	if l.path != "" {
		if err := l.loadFile(cfg); err != nil {
			return nil, err
		}
	}
	if err := l.loadEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, err
	}
	if err := l.resolveSecrets(ctx, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is NewLoader().WithPath(path).Load(ctx).
func Load(ctx context.Context, path string) (*Config, error) {
	return NewLoader().WithPath(path).Load(ctx)
}

// loadFile decodes the file over cfg. Unknown keys are errors.
func (l *Loader) loadFile(cfg *Config) error {
	f, err := os.Open(l.path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRead, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: parse %s: %w", ErrRead, l.path, err)
	}
	return nil
}

// loadEnv walks fields with env tags. Nested structs extend the prefix.
func (l *Loader) loadEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag

		if field.Kind() == reflect.Struct {
			if err := l.loadEnv(field, key); err != nil {
				return err
			}
			continue
		}

		raw, ok := l.lookup(key)
		if !ok || raw == "" {
			continue
		}
		if err := setField(field, raw); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalid, key, err)
		}
	}
	return nil
}

var durationType = reflect.TypeFor[time.Duration]()

func setField(field reflect.Value, raw string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int64:
		if field.Type() == durationType {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// resolveSecrets expands ${VAR} and secretref values in the credential and
// endpoint fields. Providers listed under secrets are closed afterwards.
func (l *Loader) resolveSecrets(ctx context.Context, cfg *Config) (err error) {
	resolver := secret.NewResolver(true)
	defer func() {
		if cerr := resolver.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("config: close secret providers: %w", cerr)
		}
	}()

	names := make([]string, 0, len(cfg.Secrets))
	for name := range cfg.Secrets {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		p, err := l.registry.Create(name, cfg.Secrets[name])
		if err != nil {
			return fmt.Errorf("%w: secrets.%s: %w", ErrInvalid, name, err)
		}
		resolver.Register(p)
	}

	fields := []struct {
		name  string
		value *string
	}{
		{"backend.base_url", &cfg.Backend.BaseURL},
		{"backend.token_secret", &cfg.Backend.TokenSecret},
		{"http.admin_secret", &cfg.HTTP.AdminSecret},
	}
	var errs []error
	for _, f := range fields {
		if *f.value == "" {
			continue
		}
		resolved, err := resolver.ResolveValue(ctx, *f.value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrInvalid, f.name, err))
			continue
		}
		*f.value = resolved
	}
	return errors.Join(errs...)
}
