package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/tigertag/tigertag-server/internal/errors"
	"github.com/tigertag/tigertag-server/internal/validation"
)

type rescanRequest struct {
	Location string `json:"location" validate:"required"`
}

type pipelineSettings struct {
	Threshold int    `env:"CONFIDENCE_THRESHOLD" validate:"gte=0,lte=100"`
	Workers   int    `env:"WORKERS" validate:"gte=1"`
	LogLevel  string `json:"log_level" validate:"oneof=debug info warn error"`
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()

	assert.NoError(t, v.Validate(rescanRequest{Location: "/photos/smile.png"}))
	assert.NoError(t, v.Validate(pipelineSettings{Threshold: 30, Workers: 1, LogLevel: "info"}))
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name      string
		input     any
		wantField string
	}{
		{"missing location", rescanRequest{}, "location"},
		{"threshold above 100", pipelineSettings{Threshold: 101, Workers: 1, LogLevel: "info"}, "CONFIDENCE_THRESHOLD"},
		{"zero workers", pipelineSettings{Threshold: 30, Workers: 0, LogLevel: "info"}, "WORKERS"},
		{"unknown level", pipelineSettings{Threshold: 30, Workers: 1, LogLevel: "loud"}, "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.input)
			require.Error(t, err)

			var domainErr *domainerrors.Error
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, domainerrors.CodeValidation, domainErr.Code)
			assert.Contains(t, domainErr.Details, tt.wantField)
			assert.Contains(t, err.Error(), tt.wantField)
		})
	}
}

func TestValidator_ReportsEveryField(t *testing.T) {
	v := validation.New()

	err := v.Validate(pipelineSettings{Threshold: -1, Workers: 0, LogLevel: "info"})
	require.Error(t, err)

	var domainErr *domainerrors.Error
	require.ErrorAs(t, err, &domainErr)
	details, ok := domainErr.Details.(map[string]string)
	require.True(t, ok)
	assert.Len(t, details, 2)
}

func TestValidator_VarTagPrefix(t *testing.T) {
	v := validation.Default()

	for _, ok := range []string{"ita", "cf", "TTF", "a1"} {
		assert.NoError(t, v.Var("prefix", ok, "tagprefix"), ok)
	}

	for _, bad := range []string{"", "my_tags", "a-b", "seventeenchars123"} {
		err := v.Var("prefix", bad, "tagprefix")
		require.Error(t, err, bad)

		var domainErr *domainerrors.Error
		require.ErrorAs(t, err, &domainErr)
		assert.Contains(t, domainErr.Details, "prefix")
	}
}
