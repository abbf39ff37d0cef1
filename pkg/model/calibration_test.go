package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityCalibration(t *testing.T) {
	calib := IdentityCalibration()

	p := mgl64.Vec3{0.1, 0.2, -0.3}
	got := calib.ToWorld(p)
	assert.Equal(t, p, got)

	q := mgl64.QuatRotate(0.5, mgl64.Vec3{0, 1, 0})
	rotated := calib.RotateToWorld(q)
	assert.InDelta(t, q.W, rotated.W, 1e-9)
	assert.InDelta(t, q.V.Y(), rotated.V.Y(), 1e-9)
}

func TestLoadCalibration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")
	data := `{
  "intrinsics": {"fx": 600.0, "fy": 600.0, "cx": 320.0, "cy": 240.0, "dist_coeffs": [0.01, -0.02, 0, 0, 0]},
  "extrinsics": {
    "rotation": [0, 0, 1, 0, 1, 0, -1, 0, 0],
    "translation": [0, 0.5, 0]
  },
  "scale": 1.8
}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	calib, err := LoadCalibration(path)
	require.NoError(t, err)
	assert.Equal(t, 1.8, calib.Scale)

	// y軸まわり90度回転＋並進
	got := calib.ToWorld(mgl64.Vec3{1, 0, 0})
	assert.InDelta(t, 0.0, got.X(), 1e-9)
	assert.InDelta(t, 0.5, got.Y(), 1e-9)
	assert.InDelta(t, -1.0, got.Z(), 1e-9)
}

func TestLoadCalibrationMissingFile(t *testing.T) {
	_, err := LoadCalibration(filepath.Join(t.TempDir(), "nothing.json"))
	require.Error(t, err)
}

func TestCalibrationSetupErrors(t *testing.T) {
	cases := []struct {
		name  string
		calib CalibrationContext
	}{
		{"zero focal length", CalibrationContext{
			Extrinsics: Extrinsics{Rotation: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}},
		}},
		{"zero rotation", CalibrationContext{
			Intrinsics: Intrinsics{Fx: 600, Fy: 600},
		}},
		{"scaled rotation", CalibrationContext{
			Intrinsics: Intrinsics{Fx: 600, Fy: 600},
			Extrinsics: Extrinsics{Rotation: [9]float64{2, 0, 0, 0, 2, 0, 0, 0, 2}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calib := tc.calib
			assert.Error(t, calib.Setup())
		})
	}
}

func TestCalibrationSetupDefaultsScale(t *testing.T) {
	calib := CalibrationContext{
		Intrinsics: Intrinsics{Fx: 600, Fy: 600},
		Extrinsics: Extrinsics{Rotation: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}},
	}
	require.NoError(t, calib.Setup())
	assert.Equal(t, 2.0, calib.Scale)
}
