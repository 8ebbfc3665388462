package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr(v int64) *int64 { return &v }

func TestSplit(t *testing.T) {
	tests := []struct {
		name          string
		total         int64
		balance       *int64
		apply         bool
		wantReserved  int64
		wantRemainder int64
	}{
		{
			name:          "balance covers total",
			total:         500,
			balance:       ptr(800),
			apply:         true,
			wantReserved:  500,
			wantRemainder: 0,
		},
		{
			name:          "balance partially covers total",
			total:         500,
			balance:       ptr(200),
			apply:         true,
			wantReserved:  200,
			wantRemainder: 300,
		},
		{
			name:          "balance not loaded",
			total:         500,
			balance:       nil,
			apply:         true,
			wantReserved:  0,
			wantRemainder: 500,
		},
		{
			name:          "wallet not applied",
			total:         500,
			balance:       ptr(800),
			apply:         false,
			wantReserved:  0,
			wantRemainder: 500,
		},
		{
			name:          "exact balance",
			total:         500,
			balance:       ptr(500),
			apply:         true,
			wantReserved:  500,
			wantRemainder: 0,
		},
		{
			name:          "zero balance",
			total:         500,
			balance:       ptr(0),
			apply:         true,
			wantReserved:  0,
			wantRemainder: 500,
		},
		{
			name:          "negative balance treated as zero",
			total:         500,
			balance:       ptr(-100),
			apply:         true,
			wantReserved:  0,
			wantRemainder: 500,
		},
		{
			name:          "zero total",
			total:         0,
			balance:       ptr(800),
			apply:         true,
			wantReserved:  0,
			wantRemainder: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reserved, remainder := Split(tt.total, tt.balance, tt.apply)
			assert.Equal(t, tt.wantReserved, reserved, "reserved")
			assert.Equal(t, tt.wantRemainder, remainder, "remainder")
		})
	}
}

func TestSplitConservation(t *testing.T) {
	// Reserved and remainder always sum to the total.
	for _, balance := range []*int64{nil, ptr(0), ptr(250), ptr(500), ptr(10000)} {
		for _, apply := range []bool{true, false} {
			reserved, remainder := Split(500, balance, apply)
			assert.Equal(t, int64(500), reserved+remainder)
			assert.GreaterOrEqual(t, reserved, int64(0))
			assert.GreaterOrEqual(t, remainder, int64(0))
		}
	}
}
