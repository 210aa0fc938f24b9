package secretkeys

import (
	"testing"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/stretchr/testify/assert"
)

type mapRepository map[string]string

func (r mapRepository) Get(key string) string { return r[key] }
func (r mapRepository) Set(key, value string) error {
	r[key] = value
	return nil
}
func (r mapRepository) Unset(key string) error {
	delete(r, key)
	return nil
}
func (r mapRepository) List() []string { return nil }

var _ env.Repository = mapRepository{}

func TestManager_Load(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []string
	}{
		{name: "not set", value: "", want: DefaultKeys},
		{name: "custom list", value: "A, B,,C", want: []string{"A", "B", "C"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := mapRepository{EnvKey: tt.value}
			assert.Equal(t, tt.want, NewManager().Load(repo))
		})
	}
}

func TestManager_Format(t *testing.T) {
	assert.Equal(t, "A,B", NewManager().Format([]string{"A", "B"}))
}

func TestRedactor(t *testing.T) {
	repo := mapRepository{
		"UPLOAD_COOKIES": "SESSDATA=abc; bili_jct=def",
		"EMPTY":          "",
	}
	redactor := NewRedactor(repo, []string{"UPLOAD_COOKIES", "EMPTY", "MISSING"}).With("token-123")

	got := redactor.Redact("Cookie: SESSDATA=abc; bili_jct=def\nX-Upos-Auth: token-123\nHost: example.com")

	assert.Equal(t, "Cookie: [REDACTED]\nX-Upos-Auth: [REDACTED]\nHost: example.com", got)
}
