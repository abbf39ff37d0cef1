package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl64"
)

// Intrinsics カメラ内部パラメータ（キャリブレーション結果をそのまま使う）
type Intrinsics struct {
	Fx         float64   `json:"fx"`
	Fy         float64   `json:"fy"`
	Cx         float64   `json:"cx"`
	Cy         float64   `json:"cy"`
	DistCoeffs []float64 `json:"dist_coeffs"`
}

// Extrinsics カメラ → ワールドの回転・並進
type Extrinsics struct {
	Rotation    [9]float64 `json:"rotation"` // 行優先3x3
	Translation [3]float64 `json:"translation"`
}

// CalibrationContext キャリブレーションで得た変換一式。セッション中は不変
type CalibrationContext struct {
	Intrinsics Intrinsics `json:"intrinsics"`
	Extrinsics Extrinsics `json:"extrinsics"`

	// 正規化座標 → カメラ座標(m)のスケール。視野に収まる人物の概寸
	Scale float64 `json:"scale"`

	rot mgl64.Mat3
	t   mgl64.Vec3
}

// LoadCalibration キャリブレーション結果のJSONを読み込む
func LoadCalibration(path string) (*CalibrationContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("calibration: %w", err)
	}
	calib := &CalibrationContext{}
	if err := json.Unmarshal(data, calib); err != nil {
		return nil, fmt.Errorf("calibration: %w", err)
	}
	if err := calib.Setup(); err != nil {
		return nil, err
	}
	return calib, nil
}

// IdentityCalibration 変換なし（カメラ座標＝ワールド座標）のコンテキスト
func IdentityCalibration() *CalibrationContext {
	calib := &CalibrationContext{
		Intrinsics: Intrinsics{Fx: 1, Fy: 1, Cx: 0.5, Cy: 0.5},
		Extrinsics: Extrinsics{Rotation: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}},
		Scale:      2.0,
	}
	if err := calib.Setup(); err != nil {
		panic(err)
	}
	return calib
}

// Setup 変換行列を組み立てて整合性を確認する。セッション開始前に必ず呼ぶ
func (c *CalibrationContext) Setup() error {
	if c.Intrinsics.Fx <= 0 || c.Intrinsics.Fy <= 0 {
		return fmt.Errorf("calibration: invalid focal length (fx=%f, fy=%f)", c.Intrinsics.Fx, c.Intrinsics.Fy)
	}
	if c.Scale <= 0 {
		c.Scale = 2.0
	}
	r := c.Extrinsics.Rotation
	for _, v := range r {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("calibration: rotation contains non-finite values")
		}
	}
	// 列優先へ詰め替え
	c.rot = mgl64.Mat3{
		r[0], r[3], r[6],
		r[1], r[4], r[7],
		r[2], r[5], r[8],
	}
	if math.Abs(c.rot.Det()-1.0) > 1e-3 {
		return fmt.Errorf("calibration: rotation is not a proper rotation matrix (det=%f)", c.rot.Det())
	}
	c.t = mgl64.Vec3{c.Extrinsics.Translation[0], c.Extrinsics.Translation[1], c.Extrinsics.Translation[2]}
	if !IsFinite(c.t) {
		return fmt.Errorf("calibration: translation contains non-finite values")
	}
	return nil
}

// ToWorld カメラ座標 → ワールド座標
func (c *CalibrationContext) ToWorld(p mgl64.Vec3) mgl64.Vec3 {
	return c.rot.Mul3x1(p).Add(c.t)
}

// RotateToWorld 回転のみ適用（向きの変換用）
func (c *CalibrationContext) RotateToWorld(q mgl64.Quat) mgl64.Quat {
	return mgl64.Mat4ToQuat(c.rot.Mat4()).Mul(q).Normalize()
}
