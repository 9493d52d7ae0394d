package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		wantErr bool
	}{
		{"整数", "42", false},
		{"小数点以下2桁", "12.50", false},
		{"末尾0の3桁", "12.500", false},
		{"上限ちょうど", "1000000000000", false},
		{"ゼロ", "0", true},
		{"負", "-1", true},
		{"上限超過", "1000000000000.01", true},
		{"指数表記で巨大", "1e400", true},
		{"指数が極大", "1e999999999", true},
		{"小数点以下3桁", "12.345", true},
		{"指数が極小", "1e-999999999", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAmount(decimal.RequireFromString(tt.amount))
			if tt.wantErr {
				assert.Equal(t, KindValidationFailed, KindOf(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
