package judge_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe/internal/judge"
)

func TestStub_SupportsWhenTermsPresent(t *testing.T) {
	t.Parallel()

	j, err := judge.Stub{}.Judge(context.Background(),
		"validates input before processing requests",
		"def process(req):\n    validates = check_input(req)\n    return handle_requests(validates)")
	require.NoError(t, err)
	assert.True(t, j.Supports)
}

func TestStub_RejectsWhenTermsAbsent(t *testing.T) {
	t.Parallel()

	j, err := judge.Stub{}.Judge(context.Background(),
		"serializes protobuf frames across network boundaries",
		"def parse(src):\n    return tree")
	require.NoError(t, err)
	assert.False(t, j.Supports)
}
