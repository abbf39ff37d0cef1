package usecase

import (
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miu200521358/vr-auto-trace/pkg/config"
	"github.com/miu200521358/vr-auto-trace/pkg/model"
)

// armModel 上腕・前腕とも0.3mの左腕だけのモデル
func armModel(t *testing.T) *model.SkeletonModel {
	t.Helper()
	m := &model.SkeletonModel{
		Bones: []model.Bone{
			{Parent: model.LeftShoulder, Child: model.LeftElbow, MinLen: 0.2, MaxLen: 0.4, RestLen: 0.3},
			{Parent: model.LeftElbow, Child: model.LeftWrist, MinLen: 0.2, MaxLen: 0.4, RestLen: 0.3},
		},
		Limbs: []model.Limb{
			{Name: "left arm", Root: model.LeftShoulder, Mid: model.LeftElbow, End: model.LeftWrist},
		},
	}
	require.NoError(t, m.Validate())
	return m
}

func TestSolveTwoBoneElbowAnalytic(t *testing.T) {
	cfg := config.New().Solver
	cfg.BendHints = map[string][3]float64{"left arm": {0, -1, 0}} // 下へ曲げる
	solver := NewSolver(armModel(t))

	frame := skeletonFrame(t, 0, map[model.JointID]mgl64.Vec3{
		model.LeftShoulder: {0, 1, 0},
		model.LeftWrist:    {0.5, 1, 0},
	})
	out := solver.Solve(cfg, frame)

	// 余弦定理の解析解と比較する
	// d=0.5, along=(0.09+0.25-0.09)/(2*0.5)=0.25, lift=sqrt(0.09-0.0625)
	lift := math.Sqrt(0.3*0.3 - 0.25*0.25)
	want := mgl64.Vec3{0.25, 1 - lift, 0}

	got := out.Joints[model.LeftElbow].Position
	for axis := 0; axis < 3; axis++ {
		assert.InDelta(t, want[axis], got[axis], 1e-3)
	}
	assert.True(t, out.Joints[model.LeftElbow].Observed)

	// 両ボーン長も一致している
	upper := got.Sub(mgl64.Vec3{0, 1, 0}).Len()
	lower := mgl64.Vec3{0.5, 1, 0}.Sub(got).Len()
	assert.InDelta(t, 0.3, upper, 1e-3)
	assert.InDelta(t, 0.3, lower, 1e-3)
}

func TestSolveBoneLengthsAlwaysWithinBounds(t *testing.T) {
	cfg := config.New().Solver
	skeleton := model.NewSkeletonModel()
	solver := NewSolver(skeleton)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		joints := map[model.JointID]mgl64.Vec3{}
		for id := model.JointID(0); id < model.JointCount; id++ {
			joints[id] = mgl64.Vec3{
				rng.Float64()*4 - 2,
				rng.Float64() * 2,
				rng.Float64()*4 - 2,
			}
		}
		out := solver.Solve(cfg, skeletonFrame(t, i, joints))

		for _, bone := range skeleton.Bones {
			length := out.Joints[bone.Child].Position.Sub(out.Joints[bone.Parent].Position).Len()
			assert.GreaterOrEqual(t, length, bone.MinLen-1e-9, "bone %v-%v frame %d", bone.Parent, bone.Child, i)
			assert.LessOrEqual(t, length, bone.MaxLen+1e-9, "bone %v-%v frame %d", bone.Parent, bone.Child, i)
		}
	}
}

func TestSolveRetainsLastPoseWhenChainMissing(t *testing.T) {
	cfg := config.New().Solver
	solver := NewSolver(armModel(t))

	frame := skeletonFrame(t, 0, map[model.JointID]mgl64.Vec3{
		model.LeftShoulder: {0, 1, 0},
		model.LeftWrist:    {0.5, 1, 0},
	})
	out := solver.Solve(cfg, frame)
	solvedElbow := out.Joints[model.LeftElbow].Position

	// 根本も末端も欠測 → 最後の有効ポーズを保持し低信頼にする
	out = solver.Solve(cfg, skeletonFrame(t, 1, nil))
	assert.InDelta(t, solvedElbow.X(), out.Joints[model.LeftElbow].Position.X(), 1e-9)
	assert.InDelta(t, solvedElbow.Y(), out.Joints[model.LeftElbow].Position.Y(), 1e-9)
	assert.LessOrEqual(t, out.Joints[model.LeftElbow].Confidence, 0.1)
}

func TestSolveClampsOverstretchedBones(t *testing.T) {
	cfg := config.New().Solver
	solver := NewSolver(armModel(t))

	// 前腕が基準の倍以上に伸びた観測
	frame := skeletonFrame(t, 0, map[model.JointID]mgl64.Vec3{
		model.LeftShoulder: {0, 1, 0},
		model.LeftElbow:    {0.3, 1, 0},
		model.LeftWrist:    {1.5, 1, 0},
	})
	out := solver.Solve(cfg, frame)

	lower := out.Joints[model.LeftWrist].Position.Sub(out.Joints[model.LeftElbow].Position).Len()
	assert.InDelta(t, 0.4, lower, 1e-9) // MaxLenへ寄せる
}

func TestSolveDerivesOrientationFromBoneDirection(t *testing.T) {
	cfg := config.New().Solver
	solver := NewSolver(armModel(t))

	frame := skeletonFrame(t, 0, map[model.JointID]mgl64.Vec3{
		model.LeftShoulder: {0, 1, 0},
		model.LeftElbow:    {0.3, 1, 0},
		model.LeftWrist:    {0.3, 0.7, 0},
	})
	out := solver.Solve(cfg, frame)

	// ひじの向きは肩→ひじのボーン方向（+X）を向く
	forward := out.Joints[model.LeftElbow].Rotation.Rotate(mgl64.Vec3{0, 0, 1})
	assert.InDelta(t, 1.0, forward.X(), 1e-6)
}
