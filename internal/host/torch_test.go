package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTorchPersistentLoader(t *testing.T) {
	r := Default()
	RegisterTorch(r)
	floatStorage, err := r.Resolve("torch", "FloatStorage")
	require.NoError(t, err)

	loader := TorchPersistentLoader()
	v, err := loader.PersistentLoad(Tuple{"storage", floatStorage, "0", "cpu", int64(6)})
	require.NoError(t, err)
	assert.Equal(t, &Storage{DType: "Float", Key: "0", Location: "cpu", Numel: 6}, v)

	_, err = loader.PersistentLoad(Tuple{"module", floatStorage, "0", "cpu", int64(6)})
	assert.Error(t, err)
	_, err = loader.PersistentLoad("storage")
	assert.Error(t, err)
}

func TestRebuildTensorAndParameter(t *testing.T) {
	r := Default()
	RegisterTorch(r)
	rebuild := resolveCallable(t, r, "torch", "_utils._rebuild_tensor_v2")

	storage := &Storage{DType: "Float", Key: "0", Location: "cpu", Numel: 6}
	v, err := rebuild.Call([]Object{storage, int64(0), Tuple{int64(2), int64(3)}, Tuple{int64(3), int64(1)}, false, NewDict()}, nil)
	require.NoError(t, err)
	tensor := v.(*Tensor)
	assert.Equal(t, []int64{2, 3}, tensor.Size)

	param := resolveCallable(t, r, "torch._utils", "_rebuild_parameter")
	p, err := param.Call([]Object{tensor, true, NewDict()}, nil)
	require.NoError(t, err)
	assert.True(t, p.(*Parameter).RequiresGrad)

	_, err = rebuild.Call([]Object{"nope", int64(0), Tuple{}, Tuple{}, false, nil}, nil)
	assert.ErrorIs(t, err, ErrBadArguments)
}
