package usecase

import (
	"log/slog"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/miu200521358/vr-auto-trace/pkg/config"
	"github.com/miu200521358/vr-auto-trace/pkg/model"
)

var worldUp = mgl64.Vec3{0, 1, 0}

// Solver 平滑化済みフレームから制約を満たす完全なスケルトンを作る
type Solver struct {
	skeleton *model.SkeletonModel
	last     [model.JointCount]model.Joint
	hasLast  [model.JointCount]bool
}

func NewSolver(skeleton *model.SkeletonModel) *Solver {
	return &Solver{skeleton: skeleton}
}

// Solve 2段階で解く
// 1. 観測済みかつ信頼度が閾値以上の関節はそのまま採用
// 2. 残り（ひじ・ひざ）は2ボーンIKの解析解で補い、ボーン長制約を適用する
func (s *Solver) Solve(cfg config.SolverConfig, frame *model.SkeletonFrame) *model.SkeletonFrame {
	out := model.NewSkeletonFrame(frame.Timestamp, frame.Seq)
	for id := model.JointID(0); id < model.JointCount; id++ {
		out.Joints[id] = frame.Joints[id]
	}

	// 直接採用できない関節は最後の有効ポーズを保持する
	for id := model.JointID(0); id < model.JointCount; id++ {
		if s.usable(cfg, out.Joints[id]) {
			continue
		}
		if s.hasLast[id] {
			out.Joints[id].Position = s.last[id].Position
			out.Joints[id].Rotation = s.last[id].Rotation
		}
	}

	// 2ボーンIK
	for _, limb := range s.skeleton.Limbs {
		root := out.Joints[limb.Root]
		end := out.Joints[limb.End]
		mid := out.Joints[limb.Mid]

		if s.usable(cfg, mid) {
			continue
		}
		if !s.usable(cfg, root) || !s.usable(cfg, end) {
			// 根本も末端も無いなら最後の有効ポーズのまま低信頼にする
			out.Joints[limb.Mid].Confidence = math.Min(mid.Confidence, 0.1)
			continue
		}

		upper := s.skeleton.BoneByChild(limb.Mid)
		lower := s.skeleton.BoneByChild(limb.End)
		hint := s.bendHint(cfg, limb.Name)

		out.Joints[limb.Mid].Position = solveTwoBone(root.Position, end.Position, upper.RestLen, lower.RestLen, hint)
		out.Joints[limb.Mid].Observed = true
		out.Joints[limb.Mid].Confidence = math.Min(root.Confidence, end.Confidence)
	}

	// ボーン長制約（ハード制約）。親が先に来る順で子を寄せる
	for i := range s.skeleton.Bones {
		bone := &s.skeleton.Bones[i]
		parent := out.Joints[bone.Parent].Position
		child := out.Joints[bone.Child].Position

		dir := child.Sub(parent)
		length := dir.Len()
		if length < 1e-9 {
			// 方向が定まらない場合は基準長で親から離す
			dir = worldUp.Mul(-1)
			length = bone.RestLen
			out.Joints[bone.Child].Position = parent.Add(dir.Mul(length))
		}

		clamped := math.Min(math.Max(length, bone.MinLen), bone.MaxLen)
		if clamped != length {
			if math.Abs(clamped-length) > cfg.LengthTolerance {
				slog.Debug("bone length clamped",
					"bone", bone.Parent.String()+"-"+bone.Child.String(),
					"length", length, "clamped", clamped)
			}
			out.Joints[bone.Child].Position = parent.Add(dir.Mul(clamped / length))
		}
	}

	// ボーン方向から各関節の向きを求める。方向が定まらない関節は前回値を保持
	for i := range s.skeleton.Bones {
		bone := &s.skeleton.Bones[i]
		dir := out.Joints[bone.Child].Position.Sub(out.Joints[bone.Parent].Position)
		if quat, ok := model.QuatFromDirection(dir, worldUp); ok {
			out.Joints[bone.Child].Rotation = quat
		} else if s.hasLast[bone.Child] {
			out.Joints[bone.Child].Rotation = s.last[bone.Child].Rotation
		}
	}

	for id := model.JointID(0); id < model.JointCount; id++ {
		if out.Joints[id].Confidence > 0 {
			s.last[id] = out.Joints[id]
			s.hasLast[id] = true
		}
	}

	return out
}

func (s *Solver) usable(cfg config.SolverConfig, joint model.Joint) bool {
	return joint.Observed && joint.Confidence >= cfg.ConfidenceThreshold
}

func (s *Solver) bendHint(cfg config.SolverConfig, limbName string) mgl64.Vec3 {
	if hint, ok := cfg.BendHints[limbName]; ok {
		return mgl64.Vec3{hint[0], hint[1], hint[2]}
	}
	return mgl64.Vec3{0, 0, 1}
}

// solveTwoBone 余弦定理による2ボーンIKの解析解
// root・end間に上腕長upperLen・前腕長lowerLenで中間関節を置く
// 解は2つあるのでhint側に曲げる
func solveTwoBone(root, end mgl64.Vec3, upperLen, lowerLen float64, hint mgl64.Vec3) mgl64.Vec3 {
	const eps = 1e-6

	span := end.Sub(root)
	dist := span.Len()
	if dist < eps {
		return root.Add(hint.Normalize().Mul(upperLen))
	}

	// 届かない・近すぎる場合は解ける範囲に丸める
	minDist := math.Abs(upperLen-lowerLen) + eps
	maxDist := upperLen + lowerLen - eps
	dist = math.Min(math.Max(dist, minDist), maxDist)

	axis := span.Normalize()

	// 中間関節のroot→end軸への射影距離と、軸からの持ち上げ量
	along := (upperLen*upperLen + dist*dist - lowerLen*lowerLen) / (2 * dist)
	lift := math.Sqrt(math.Max(upperLen*upperLen-along*along, 0))

	// ヒントから軸成分を除いた方向へ曲げる
	bend := hint.Sub(axis.Mul(hint.Dot(axis)))
	if bend.Len() < eps {
		// ヒントが軸と平行なら適当な直交方向を選ぶ
		bend = axis.Cross(worldUp)
		if bend.Len() < eps {
			bend = axis.Cross(mgl64.Vec3{1, 0, 0})
		}
	}
	bend = bend.Normalize()

	return root.Add(axis.Mul(along)).Add(bend.Mul(lift))
}
