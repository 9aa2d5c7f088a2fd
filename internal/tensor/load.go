package tensor

import (
	"fmt"

	"github.com/attnlens/attnlens/internal/safetensors"
)

// LoadSafetensorsMat loads a 2D matrix from a safetensors file.
func LoadSafetensorsMat(st *safetensors.File, name string) (*Mat, error) {
	data, info, err := st.ReadTensorF32(name)
	if err != nil {
		return nil, err
	}
	if len(info.Shape) != 2 {
		return nil, fmt.Errorf("%s: expected 2D tensor", name)
	}
	r := info.Shape[0]
	c := info.Shape[1]
	if r*c != len(data) {
		return nil, fmt.Errorf("%s: size mismatch", name)
	}
	return &Mat{R: r, C: c, Stride: c, Data: data}, nil
}

// LoadSafetensorsMatT loads a 2D tensor and transposes it. HF GPT-2
// checkpoints store Conv1D weights as [in, out]; MatVec wants [out, in].
func LoadSafetensorsMatT(st *safetensors.File, name string) (*Mat, error) {
	m, err := LoadSafetensorsMat(st, name)
	if err != nil {
		return nil, err
	}
	t := m.Transpose()
	return &t, nil
}

// LoadSafetensorsVec loads a 1D vector from a safetensors file.
func LoadSafetensorsVec(st *safetensors.File, name string) ([]float32, error) {
	data, info, err := st.ReadTensorF32(name)
	if err != nil {
		return nil, err
	}
	if len(info.Shape) != 1 {
		return nil, fmt.Errorf("%s: expected 1D tensor", name)
	}
	return data, nil
}
