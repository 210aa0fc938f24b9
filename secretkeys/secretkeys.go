package secretkeys

import (
	"strings"

	"github.com/bitrise-io/go-utils/v2/env"
)

const (
	EnvKey    = "UPLOAD_SECRET_ENV_KEY_LIST"
	separator = ","

	redactedValue = "[REDACTED]"
)

// DefaultKeys are used when EnvKey is not set.
var DefaultKeys = []string{"UPLOAD_COOKIES", "UPLOAD_S3_SECRET_ACCESS_KEY"}

type Manager interface {
	Load(envRepository env.Repository) []string
	Format(keys []string) string
}

type manager struct {
}

func NewManager() Manager {
	return manager{}
}

func (manager) Load(envRepository env.Repository) []string {
	value := envRepository.Get(EnvKey)
	if strings.TrimSpace(value) == "" {
		return append([]string(nil), DefaultKeys...)
	}

	var keys []string
	for _, key := range strings.Split(value, separator) {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

func (manager) Format(keys []string) string {
	return strings.Join(keys, separator)
}

// Redactor masks secret values in text meant for logs.
type Redactor struct {
	values []string
}

// NewRedactor collects the non-empty values of keys from envRepository.
func NewRedactor(envRepository env.Repository, keys []string, extraValues ...string) Redactor {
	var values []string
	for _, key := range keys {
		values = append(values, envRepository.Get(key))
	}
	return Redactor{}.With(append(values, extraValues...)...)
}

// With returns a copy of r that also masks values.
func (r Redactor) With(values ...string) Redactor {
	all := append([]string(nil), r.values...)
	for _, v := range values {
		if v != "" {
			all = append(all, v)
		}
	}
	return Redactor{values: all}
}

// Redact replaces every secret value in s.
func (r Redactor) Redact(s string) string {
	for _, v := range r.values {
		s = strings.ReplaceAll(s, v, redactedValue)
	}
	return s
}
