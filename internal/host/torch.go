package host

import (
	"fmt"
	"strings"
)

// Storage stands in for a torch storage. Tensor bytes are never read; the
// shim only records where the data would come from.
type Storage struct {
	DType    string
	Key      string
	Location string
	Numel    int64
}

// Tensor is the result of torch._utils._rebuild_tensor_v2.
type Tensor struct {
	Storage      *Storage
	Offset       int64
	Size         []int64
	Stride       []int64
	RequiresGrad bool
}

// Parameter wraps a tensor (torch._utils._rebuild_parameter).
type Parameter struct {
	Data         Object
	RequiresGrad bool
}

var torchStorageTypes = []string{
	"FloatStorage", "DoubleStorage", "HalfStorage", "BFloat16Storage",
	"LongStorage", "IntStorage", "ShortStorage", "CharStorage",
	"ByteStorage", "BoolStorage", "ComplexFloatStorage", "ComplexDoubleStorage",
}

// RegisterTorch adds a minimal torch shim: storage type classes, torch.Size
// and the tensor rebuild functions that state-dict pickles reference.
func RegisterTorch(r *Registry) {
	torch := NewModule("torch")
	for _, name := range torchStorageTypes {
		torch.Class(&Class{Name: name})
	}
	torch.Class(&Class{Name: "Size", Construct: func(_ *Class, args []Object, _ *Dict) (Object, error) {
		if len(args) == 0 {
			return Tuple{}, nil
		}
		items, err := iterate(args[0])
		if err != nil {
			return nil, fmt.Errorf("torch.Size: %w", err)
		}
		return Tuple(items), nil
	}})

	utils := NewModule("torch._utils").
		Func("_rebuild_tensor_v2", rebuildTensorV2).
		Func("_rebuild_parameter", rebuildParameter)
	torch.Set("_utils", utils)

	r.Register(torch, utils)
}

// TorchPersistentLoader resolves ('storage', storage_type, key, location,
// numel) persistent ids into Storage placeholders.
func TorchPersistentLoader() PersistentLoader {
	return PersistentLoaderFunc(func(pid Object) (Object, error) {
		t, ok := pid.(Tuple)
		if !ok || len(t) != 5 {
			return nil, badArgs("persistent_load", "expected a 5-tuple, got %s", TypeName(pid))
		}
		if tag, _ := AsString(t[0]); tag != "storage" {
			return nil, badArgs("persistent_load", "unknown persistent id kind %v", t[0])
		}
		cls, ok := t[1].(*Class)
		if !ok {
			return nil, badArgs("persistent_load", "storage type is %s, not a class", TypeName(t[1]))
		}
		key, _ := AsString(t[2])
		loc, _ := AsString(t[3])
		numel, ok := AsInt(t[4])
		if !ok || numel < 0 {
			return nil, badArgs("persistent_load", "invalid numel %v", t[4])
		}
		return &Storage{
			DType:    strings.TrimSuffix(cls.Name, "Storage"),
			Key:      key,
			Location: loc,
			Numel:    numel,
		}, nil
	})
}

func rebuildTensorV2(args []Object, _ *Dict) (Object, error) {
	if len(args) < 6 {
		return nil, badArgs("_rebuild_tensor_v2", "expected at least 6 arguments, got %d", len(args))
	}
	storage, ok := args[0].(*Storage)
	if !ok {
		return nil, badArgs("_rebuild_tensor_v2", "storage is %s", TypeName(args[0]))
	}
	offset, ok := AsInt(args[1])
	if !ok {
		return nil, badArgs("_rebuild_tensor_v2", "storage_offset is %s", TypeName(args[1]))
	}
	size, err := intTuple(args[2])
	if err != nil {
		return nil, badArgs("_rebuild_tensor_v2", "size: %v", err)
	}
	stride, err := intTuple(args[3])
	if err != nil {
		return nil, badArgs("_rebuild_tensor_v2", "stride: %v", err)
	}
	grad, _ := args[4].(bool)
	return &Tensor{Storage: storage, Offset: offset, Size: size, Stride: stride, RequiresGrad: grad}, nil
}

func rebuildParameter(args []Object, _ *Dict) (Object, error) {
	if len(args) < 2 {
		return nil, badArgs("_rebuild_parameter", "expected at least 2 arguments, got %d", len(args))
	}
	grad, _ := args[1].(bool)
	return &Parameter{Data: args[0], RequiresGrad: grad}, nil
}

func intTuple(v Object) ([]int64, error) {
	items, err := iterate(v)
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(items))
	for i, it := range items {
		n, ok := AsInt(it)
		if !ok {
			return nil, fmt.Errorf("element %d is %s", i, TypeName(it))
		}
		out[i] = n
	}
	return out, nil
}
