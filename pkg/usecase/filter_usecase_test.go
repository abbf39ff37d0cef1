package usecase

import (
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miu200521358/vr-auto-trace/pkg/config"
	"github.com/miu200521358/vr-auto-trace/pkg/model"
)

var testEpoch = time.Unix(1700000000, 0)

// skeletonFrame 指定関節だけ観測済みのフレームを作る
func skeletonFrame(t *testing.T, frameNo int, joints map[model.JointID]mgl64.Vec3) *model.SkeletonFrame {
	t.Helper()
	frame := model.NewSkeletonFrame(testEpoch.Add(time.Duration(frameNo)*time.Second/60), uint64(frameNo))
	for id, pos := range joints {
		frame.Joints[id] = model.Joint{ID: id, Position: pos, Rotation: mgl64.QuatIdent(), Confidence: 1, Observed: true}
	}
	return frame
}

func TestFilterConvergesToSmoothInput(t *testing.T) {
	cfg := config.New().Filter
	bank := NewFilterBank()

	target := mgl64.Vec3{0.3, 1.2, -0.4}
	var out *model.SkeletonFrame
	for i := 0; i < 120; i++ {
		out = bank.Apply(cfg, skeletonFrame(t, i, map[model.JointID]mgl64.Vec3{model.LeftWrist: target}))
	}

	got := out.Joints[model.LeftWrist].Position
	for axis := 0; axis < 3; axis++ {
		assert.InDelta(t, target[axis], got[axis], 1e-6)
	}
	assert.True(t, out.Joints[model.LeftWrist].Observed)
	assert.Equal(t, 1.0, out.Joints[model.LeftWrist].Confidence)
}

func TestFilterOutputAlwaysFinite(t *testing.T) {
	cfg := config.New().Filter
	bank := NewFilterBank()

	bank.Apply(cfg, skeletonFrame(t, 0, map[model.JointID]mgl64.Vec3{model.Nose: {0, 1, 0}}))

	// NaN入力は観測なし扱いになり、最後の正常推定が残る
	bad := skeletonFrame(t, 1, nil)
	bad.Joints[model.Nose] = model.Joint{ID: model.Nose, Position: mgl64.Vec3{math.NaN(), 0, 0}, Confidence: 1, Observed: true}
	out := bank.Apply(cfg, bad)

	require.True(t, model.IsFinite(out.Joints[model.Nose].Position))
	assert.InDelta(t, 1.0, out.Joints[model.Nose].Position.Y(), 1e-6)
}

func TestFilterBoundsRateOfChange(t *testing.T) {
	cfg := config.New().Filter
	cfg.MaxSpeed = 3.0
	bank := NewFilterBank()

	bank.Apply(cfg, skeletonFrame(t, 0, map[model.JointID]mgl64.Vec3{model.Nose: {0, 0, 0}}))
	out := bank.Apply(cfg, skeletonFrame(t, 1, map[model.JointID]mgl64.Vec3{model.Nose: {100, 0, 0}}))

	// 1フレームの移動量は速度上限×フレーム時間を超えない
	maxStep := cfg.MaxSpeed * (1.0 / 60.0)
	assert.LessOrEqual(t, out.Joints[model.Nose].Position.Len(), maxStep+1e-9)
}

func TestFilterDeadReckoningAndRecovery(t *testing.T) {
	cfg := config.New().Filter
	cfg.MaxMissingFrames = 10
	bank := NewFilterBank()

	pos := mgl64.Vec3{0.5, 1.0, 0.2}
	var out *model.SkeletonFrame
	for i := 0; i < 30; i++ {
		out = bank.Apply(cfg, skeletonFrame(t, i, map[model.JointID]mgl64.Vec3{model.LeftAnkle: pos}))
	}
	settled := out.Joints[model.LeftAnkle].Position

	// M-1フレーム欠測：予測でつなぎ、信頼度は線形減衰
	lastConf := 1.0
	for i := 30; i < 30+cfg.MaxMissingFrames-1; i++ {
		out = bank.Apply(cfg, skeletonFrame(t, i, nil))
		joint := out.Joints[model.LeftAnkle]
		assert.True(t, joint.Observed)
		assert.Less(t, joint.Confidence, lastConf)
		lastConf = joint.Confidence
	}

	// 復帰フレームで不連続ジャンプしない
	out = bank.Apply(cfg, skeletonFrame(t, 40, map[model.JointID]mgl64.Vec3{model.LeftAnkle: pos}))
	jump := out.Joints[model.LeftAnkle].Position.Sub(settled).Len()
	assert.Less(t, jump, 0.05)
}

func TestFilterMarksJointLostBeyondTolerance(t *testing.T) {
	cfg := config.New().Filter
	cfg.MaxMissingFrames = 5
	bank := NewFilterBank()

	pos := mgl64.Vec3{0.5, 1.0, 0.2}
	bank.Apply(cfg, skeletonFrame(t, 0, map[model.JointID]mgl64.Vec3{model.RightKnee: pos}))

	var out *model.SkeletonFrame
	for i := 1; i <= cfg.MaxMissingFrames+3; i++ {
		out = bank.Apply(cfg, skeletonFrame(t, i, nil))
	}

	joint := out.Joints[model.RightKnee]
	assert.False(t, joint.Observed)
	assert.Zero(t, joint.Confidence)
	// ポーズは原点に戻さず凍結
	assert.InDelta(t, pos.Y(), joint.Position.Y(), 1e-6)
}

func TestFilterResetsAfterSkeletonLost(t *testing.T) {
	cfg := config.New().Filter
	cfg.MaxMissingFrames = 2
	cfg.LostFrames = 5
	bank := NewFilterBank()

	bank.Apply(cfg, skeletonFrame(t, 0, map[model.JointID]mgl64.Vec3{model.Nose: {0, 1, 0}}))
	for i := 1; i <= cfg.LostFrames+1; i++ {
		bank.Apply(cfg, skeletonFrame(t, i, nil))
	}

	// リセット後は未初期化状態（出力は未観測のゼロ値）
	out := bank.Apply(cfg, skeletonFrame(t, 20, nil))
	assert.False(t, out.Joints[model.Nose].Observed)
	assert.Zero(t, out.Joints[model.Nose].Position.Len())
}
