package model

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

type JointID int

const (
	Nose JointID = iota
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	LeftHeel
	RightHeel
	LeftFootIndex
	RightFootIndex
	JointCount
)

var jointNames = map[JointID]string{
	Nose:           "nose",             // 0
	LeftShoulder:   "left shoulder",    // 11
	RightShoulder:  "right shoulder",   // 12
	LeftElbow:      "left elbow",       // 13
	RightElbow:     "right elbow",      // 14
	LeftWrist:      "left wrist",       // 15
	RightWrist:     "right wrist",      // 16
	LeftHip:        "left hip",         // 23
	RightHip:       "right hip",        // 24
	LeftKnee:       "left knee",        // 25
	RightKnee:      "right knee",       // 26
	LeftAnkle:      "left ankle",       // 27
	RightAnkle:     "right ankle",      // 28
	LeftHeel:       "left heel",        // 29
	RightHeel:      "right heel",       // 30
	LeftFootIndex:  "left foot index",  // 31
	RightFootIndex: "right foot index", // 32
}

// JointByName ランドマーク名 → JointID（未対応の名前は無視する）
var JointByName = func() map[string]JointID {
	m := make(map[string]JointID, len(jointNames))
	for id, name := range jointNames {
		m[name] = id
	}
	return m
}()

func (id JointID) String() string {
	if name, ok := jointNames[id]; ok {
		return name
	}
	return fmt.Sprintf("joint(%d)", int(id))
}

// Bone 親→子の接続と長さ制約
type Bone struct {
	Parent  JointID
	Child   JointID
	MinLen  float64 // m
	MaxLen  float64 // m
	RestLen float64 // IK用の基準長 (m)
}

// Limb 2ボーンIKで解く三関節チェーン
type Limb struct {
	Name string
	Root JointID
	Mid  JointID
	End  JointID
}

// SkeletonModel ボーン隣接と長さ制約。セッション中は読み取り専用
type SkeletonModel struct {
	Bones []Bone // 親が先に来る順
	Limbs []Limb

	byChild map[JointID]*Bone
}

// NewSkeletonModel 標準体型のスケルトンモデルを作る
func NewSkeletonModel() *SkeletonModel {
	m := &SkeletonModel{
		// 親から子へ向かって登録する（制約適用は先頭から順に走査する）
		Bones: []Bone{
			{Parent: LeftHip, Child: RightHip, MinLen: 0.12, MaxLen: 0.35, RestLen: 0.22},
			{Parent: LeftShoulder, Child: RightShoulder, MinLen: 0.20, MaxLen: 0.50, RestLen: 0.36},
			{Parent: LeftShoulder, Child: LeftElbow, MinLen: 0.18, MaxLen: 0.40, RestLen: 0.28},
			{Parent: LeftElbow, Child: LeftWrist, MinLen: 0.16, MaxLen: 0.36, RestLen: 0.26},
			{Parent: RightShoulder, Child: RightElbow, MinLen: 0.18, MaxLen: 0.40, RestLen: 0.28},
			{Parent: RightElbow, Child: RightWrist, MinLen: 0.16, MaxLen: 0.36, RestLen: 0.26},
			{Parent: LeftHip, Child: LeftKnee, MinLen: 0.28, MaxLen: 0.58, RestLen: 0.42},
			{Parent: LeftKnee, Child: LeftAnkle, MinLen: 0.26, MaxLen: 0.54, RestLen: 0.40},
			{Parent: RightHip, Child: RightKnee, MinLen: 0.28, MaxLen: 0.58, RestLen: 0.42},
			{Parent: RightKnee, Child: RightAnkle, MinLen: 0.26, MaxLen: 0.54, RestLen: 0.40},
			{Parent: LeftAnkle, Child: LeftHeel, MinLen: 0.02, MaxLen: 0.15, RestLen: 0.07},
			{Parent: LeftAnkle, Child: LeftFootIndex, MinLen: 0.08, MaxLen: 0.30, RestLen: 0.18},
			{Parent: RightAnkle, Child: RightHeel, MinLen: 0.02, MaxLen: 0.15, RestLen: 0.07},
			{Parent: RightAnkle, Child: RightFootIndex, MinLen: 0.08, MaxLen: 0.30, RestLen: 0.18},
		},
		Limbs: []Limb{
			{Name: "left arm", Root: LeftShoulder, Mid: LeftElbow, End: LeftWrist},
			{Name: "right arm", Root: RightShoulder, Mid: RightElbow, End: RightWrist},
			{Name: "left leg", Root: LeftHip, Mid: LeftKnee, End: LeftAnkle},
			{Name: "right leg", Root: RightHip, Mid: RightKnee, End: RightAnkle},
		},
	}
	m.byChild = make(map[JointID]*Bone, len(m.Bones))
	for i := range m.Bones {
		m.byChild[m.Bones[i].Child] = &m.Bones[i]
	}
	return m
}

// BoneByChild 子関節側から見たボーン。無ければnil
func (m *SkeletonModel) BoneByChild(child JointID) *Bone {
	return m.byChild[child]
}

// Validate ボーン定義の整合性チェック（セッション開始前に呼ぶ）
func (m *SkeletonModel) Validate() error {
	if len(m.Bones) == 0 {
		return fmt.Errorf("skeleton model: no bones")
	}
	for _, b := range m.Bones {
		if b.Parent < 0 || b.Parent >= JointCount || b.Child < 0 || b.Child >= JointCount {
			return fmt.Errorf("skeleton model: bone %v-%v out of joint range", b.Parent, b.Child)
		}
		if b.MinLen <= 0 || b.MaxLen < b.MinLen {
			return fmt.Errorf("skeleton model: bone %v-%v invalid bounds [%f, %f]", b.Parent, b.Child, b.MinLen, b.MaxLen)
		}
		if b.RestLen < b.MinLen || b.RestLen > b.MaxLen {
			return fmt.Errorf("skeleton model: bone %v-%v rest length %f outside bounds", b.Parent, b.Child, b.RestLen)
		}
	}
	for _, l := range m.Limbs {
		if m.byChild[l.Mid] == nil || m.byChild[l.End] == nil {
			return fmt.Errorf("skeleton model: limb %s has no bone definition", l.Name)
		}
	}
	return nil
}

// QuatFromDirection 方向ベクトルと上ベクトルから回転を作る
func QuatFromDirection(direction, up mgl64.Vec3) (mgl64.Quat, bool) {
	if direction.Len() < 1e-9 {
		return mgl64.QuatIdent(), false
	}
	z := direction.Normalize()
	x := up.Cross(z)
	if x.Len() < 1e-9 {
		// 方向と上がほぼ平行
		return mgl64.QuatIdent(), false
	}
	x = x.Normalize()
	y := z.Cross(x)
	m := mgl64.Mat4{
		x[0], x[1], x[2], 0,
		y[0], y[1], y[2], 0,
		z[0], z[1], z[2], 0,
		0, 0, 0, 1,
	}
	return mgl64.Mat4ToQuat(m).Normalize(), true
}

// IsFinite NaN/Infを含まないこと
func IsFinite(v mgl64.Vec3) bool {
	for i := 0; i < 3; i++ {
		if math.IsNaN(v[i]) || math.IsInf(v[i], 0) {
			return false
		}
	}
	return true
}
