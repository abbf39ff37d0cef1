package usecase

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/stat"

	"github.com/miu200521358/vr-auto-trace/pkg/config"
	"github.com/miu200521358/vr-auto-trace/pkg/model"
)

type combineRule int

const (
	ruleDirect combineRule = iota
	ruleMidpoint
	ruleBoneOffset
)

// roleMapping 部位 → 元関節と合成規則の対応
// 向きはDirectionFrom→DirectionToを前方向、UpFrom→UpToを上方向として求める
type roleMapping struct {
	Role          model.TrackerRole
	Sources       []model.JointID
	Rule          combineRule
	OffsetLen     float64 // ruleBoneOffset: Sources[0]からSources[1]方向への距離 (m)
	DirectionFrom model.JointID
	DirectionTo   model.JointID
	UpFrom        model.JointID
	UpTo          model.JointID
}

var roleMappings = []roleMapping{
	{
		Role:          model.RoleHips,
		Sources:       []model.JointID{model.LeftHip, model.RightHip},
		Rule:          ruleMidpoint,
		DirectionFrom: model.RightHip,
		DirectionTo:   model.LeftHip,
		UpFrom:        model.LeftHip,
		UpTo:          model.LeftShoulder,
	},
	{
		Role:          model.RoleChest,
		Sources:       []model.JointID{model.LeftShoulder, model.RightShoulder},
		Rule:          ruleMidpoint,
		DirectionFrom: model.RightShoulder,
		DirectionTo:   model.LeftShoulder,
		UpFrom:        model.LeftHip,
		UpTo:          model.LeftShoulder,
	},
	{
		Role:          model.RoleLeftFoot,
		Sources:       []model.JointID{model.LeftAnkle},
		Rule:          ruleDirect,
		DirectionFrom: model.LeftHeel,
		DirectionTo:   model.LeftFootIndex,
		UpFrom:        model.LeftAnkle,
		UpTo:          model.LeftKnee,
	},
	{
		Role:          model.RoleRightFoot,
		Sources:       []model.JointID{model.RightAnkle},
		Rule:          ruleDirect,
		DirectionFrom: model.RightHeel,
		DirectionTo:   model.RightFootIndex,
		UpFrom:        model.RightAnkle,
		UpTo:          model.RightKnee,
	},
	{
		// ひざトラッカーは関節より少し腿側に置く
		Role:          model.RoleLeftKnee,
		Sources:       []model.JointID{model.LeftKnee, model.LeftHip},
		Rule:          ruleBoneOffset,
		OffsetLen:     0.05,
		DirectionFrom: model.LeftKnee,
		DirectionTo:   model.LeftAnkle,
		UpFrom:        model.LeftKnee,
		UpTo:          model.LeftHip,
	},
	{
		Role:          model.RoleRightKnee,
		Sources:       []model.JointID{model.RightKnee, model.RightHip},
		Rule:          ruleBoneOffset,
		OffsetLen:     0.05,
		DirectionFrom: model.RightKnee,
		DirectionTo:   model.RightAnkle,
		UpFrom:        model.RightKnee,
		UpTo:          model.RightHip,
	},
	{
		Role:          model.RoleLeftElbow,
		Sources:       []model.JointID{model.LeftElbow},
		Rule:          ruleDirect,
		DirectionFrom: model.LeftElbow,
		DirectionTo:   model.LeftWrist,
		UpFrom:        model.LeftElbow,
		UpTo:          model.LeftShoulder,
	},
	{
		Role:          model.RoleRightElbow,
		Sources:       []model.JointID{model.RightElbow},
		Rule:          ruleDirect,
		DirectionFrom: model.RightElbow,
		DirectionTo:   model.RightWrist,
		UpFrom:        model.RightElbow,
		UpTo:          model.RightShoulder,
	},
}

// ValidateMappings 対応表の検証。セッション開始前に呼び、不正ならフレーム処理に入らない
func ValidateMappings() error {
	seen := map[model.TrackerRole]bool{}
	for _, m := range roleMappings {
		if len(m.Sources) == 0 {
			return fmt.Errorf("mapper: role %s has no source joints", m.Role)
		}
		if m.Rule == ruleBoneOffset && len(m.Sources) < 2 {
			return fmt.Errorf("mapper: role %s needs two sources for bone offset", m.Role)
		}
		for _, id := range m.Sources {
			if id < 0 || id >= model.JointCount {
				return fmt.Errorf("mapper: role %s references joint out of range", m.Role)
			}
		}
		if seen[m.Role] {
			return fmt.Errorf("mapper: role %s mapped twice", m.Role)
		}
		seen[m.Role] = true
	}
	for role := model.TrackerRole(0); role < model.RoleCount; role++ {
		if !seen[role] {
			return fmt.Errorf("mapper: role %s has no mapping", role)
		}
	}
	return nil
}

// Mapper 解決済みスケルトンを仮想トラッカー部位へ投影する
type Mapper struct {
	calib   *model.CalibrationContext
	last    [model.RoleCount]model.TrackerPose
	hasLast [model.RoleCount]bool
	seq     uint64
}

func NewMapper(calib *model.CalibrationContext) *Mapper {
	return &Mapper{calib: calib}
}

// Map 宣言済みの全部位を必ず含むポーズセットを返す
// 元関節が全て欠測の部位は最後のポーズを保持したままValid=falseで出す
func (m *Mapper) Map(cfg *config.Config, frame *model.SkeletonFrame) *model.TrackerPoseSet {
	m.seq++
	set := model.NewTrackerPoseSet(frame.Timestamp, m.seq)

	for _, mapping := range roleMappings {
		pose := m.mapRole(cfg, mapping, frame)
		set.Poses[mapping.Role] = pose
		if pose.Valid {
			m.last[mapping.Role] = pose
			m.hasLast[mapping.Role] = true
		}
	}
	return set
}

func (m *Mapper) mapRole(cfg *config.Config, mapping roleMapping, frame *model.SkeletonFrame) model.TrackerPose {
	conf := 1.0
	valid := true
	for _, id := range mapping.Sources {
		joint := frame.Joints[id]
		if !joint.Observed || joint.Confidence <= 0 {
			valid = false
		}
		conf = math.Min(conf, joint.Confidence)
	}

	if !valid {
		// 原点へ飛ばさず最後のポーズを保持する
		pose := m.last[mapping.Role]
		if !m.hasLast[mapping.Role] {
			pose = model.TrackerPose{Role: mapping.Role, Rotation: mgl64.QuatIdent()}
		}
		pose.Role = mapping.Role
		pose.Valid = false
		pose.Confidence = 0
		return pose
	}

	var camPos mgl64.Vec3
	switch mapping.Rule {
	case ruleMidpoint:
		for _, id := range mapping.Sources {
			camPos = camPos.Add(frame.Joints[id].Position)
		}
		camPos = camPos.Mul(1 / float64(len(mapping.Sources)))
	case ruleBoneOffset:
		base := frame.Joints[mapping.Sources[0]].Position
		toward := frame.Joints[mapping.Sources[1]].Position.Sub(base)
		if toward.Len() > 1e-9 {
			camPos = base.Add(toward.Normalize().Mul(mapping.OffsetLen))
		} else {
			camPos = base
		}
	default:
		camPos = frame.Joints[mapping.Sources[0]].Position
	}

	pos := m.calib.ToWorld(camPos)
	if rc, ok := cfg.Trackers[mapping.Role.String()]; ok {
		pos = pos.Add(mgl64.Vec3{rc.Offset[0], rc.Offset[1], rc.Offset[2]})
	}

	rotation := mgl64.QuatIdent()
	direction := frame.Joints[mapping.DirectionTo].Position.Sub(frame.Joints[mapping.DirectionFrom].Position)
	up := frame.Joints[mapping.UpTo].Position.Sub(frame.Joints[mapping.UpFrom].Position)
	if quat, ok := model.QuatFromDirection(direction, up); ok {
		rotation = m.calib.RotateToWorld(quat)
	} else if m.hasLast[mapping.Role] {
		rotation = m.last[mapping.Role].Rotation
	}

	return model.TrackerPose{
		Role:       mapping.Role,
		Position:   pos,
		Rotation:   rotation,
		Confidence: conf,
		Valid:      true,
	}
}

// EstimateFloorOffset 接地キャリブレーション用
// 足首高さ（ワールドY）の低い方を集め、その分布から床面の高さを推定する
func EstimateFloorOffset(calib *model.CalibrationContext, frames []*model.SkeletonFrame) float64 {
	ys := make([]float64, 0, len(frames))
	for _, frame := range frames {
		lowest := math.Inf(1)
		for _, id := range []model.JointID{model.LeftAnkle, model.RightAnkle} {
			joint := frame.Joints[id]
			if !joint.Observed {
				continue
			}
			lowest = math.Min(lowest, calib.ToWorld(joint.Position).Y())
		}
		if !math.IsInf(lowest, 1) {
			ys = append(ys, lowest)
		}
	}
	if len(ys) == 0 {
		return 0
	}
	sort.Float64s(ys)
	// 足首Y値全体の9割の場所を接地点とする
	return stat.Quantile(0.9, stat.Empirical, ys, nil)
}
