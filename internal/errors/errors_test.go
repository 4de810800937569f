package errors

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidUUID(t *testing.T) {
	tests := []struct {
		name  string
		id    string
		valid bool
	}{
		{name: "valid lowercase", id: "a1b2c3d4-e5f6-7890-abcd-ef1234567890", valid: true},
		{name: "valid uppercase", id: "A1B2C3D4-E5F6-7890-ABCD-EF1234567890", valid: true},
		{name: "empty", id: "", valid: false},
		{name: "too short", id: "a1b2c3d4-e5f6", valid: false},
		{name: "missing hyphens", id: "a1b2c3d4e5f67890abcdef1234567890", valid: false},
		{name: "non-hex characters", id: "g1b2c3d4-e5f6-7890-abcd-ef1234567890", valid: false},
		{name: "sql injection attempt", id: "'; DROP TABLE sessions; --", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidUUID(tt.id))
		})
	}
}

func TestSanitizeErrorInDevelopment(t *testing.T) {
	os.Setenv("ENVIRONMENT", "development") //nolint:errcheck // test fixture
	defer os.Unsetenv("ENVIRONMENT")        //nolint:errcheck // test cleanup

	err := errors.New("database: connection to 10.0.0.5 refused")
	assert.Equal(t, err.Error(), sanitizeError(err), "development keeps full detail")
}

func TestSanitizeErrorInProduction(t *testing.T) {
	os.Setenv("ENVIRONMENT", "production") //nolint:errcheck // test fixture
	defer os.Unsetenv("ENVIRONMENT")       //nolint:errcheck // test cleanup

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "database detail hidden", err: errors.New("database: relation does not exist"), want: "database operation failed"},
		{name: "connection detail hidden", err: errors.New("connection refused 10.0.0.5"), want: "connection error occurred"},
		{name: "timeout detail hidden", err: errors.New("context deadline timeout"), want: "request timed out"},
		{name: "not found kept generic", err: errors.New("session row not found"), want: "resource not found"},
		{name: "unknown detail hidden", err: errors.New("panic in module x"), want: "an error occurred"},
		{name: "nil error", err: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeError(tt.err))
		})
	}
}
