package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanCommand(t *testing.T) {
	dir := modelDir(t, true)

	stdout, err := execute(t, "--format", "json", "scan", dir)
	require.NoError(t, err)

	var result ScanResult
	decodeData(t, stdout, &result)
	assert.Equal(t, 1, result.Flagged)
	require.Len(t, result.Samples, 2)

	evil, good := result.Samples[0], result.Samples[1]
	assert.Contains(t, evil.Name, "evil")
	assert.Equal(t, []string{"os.system"}, evil.Uncommon)
	assert.Contains(t, good.Name, "good")
	assert.Empty(t, good.Uncommon)
}

func TestScanCommand_CustomCommon(t *testing.T) {
	dir := modelDir(t, true)

	stdout, err := execute(t, "scan", dir, "--common", "os,collections")
	require.NoError(t, err)
	assert.Contains(t, stdout, "torch.FloatStorage, torch._utils._rebuild_tensor_v2")
	assert.Contains(t, stdout, "1 of 2 sample(s) use uncommon globals")
}

func TestHasCommonPrefix(t *testing.T) {
	common := []string{"torch", "collections.OrderedDict"}
	tests := []struct {
		name string
		want bool
	}{
		{"torch", true},
		{"torch._utils._rebuild_tensor_v2", true},
		{"torchvision.models.resnet", false},
		{"collections.OrderedDict", true},
		{"collections.defaultdict", false},
		{"os.system", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hasCommonPrefix(tt.name, common))
		})
	}
}
