package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode(t *testing.T) {
	pv := &PolicyViolation{ClassID: "lib", Name: "os.system", Kind: ViolationGlobal}
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", errors.New("x"), ""},
		{"malformed", malformed(3, "stack underflow"), "MALFORMED_STREAM"},
		{"wrapped limit", fmt.Errorf("load: %w", resourceLimit(0, "memo", 4)), "RESOURCE_LIMIT_EXCEEDED"},
		{"violation", fmt.Errorf("load: %w", pv), CodePolicyViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}

	got, ok := AsPolicyViolation(fmt.Errorf("wrapped: %w", pv))
	assert.True(t, ok)
	assert.Same(t, pv, got)

	_, ok = AsPolicyViolation(malformed(0, "x"))
	assert.False(t, ok)
}
