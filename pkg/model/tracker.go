package model

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// TrackerRole VRChatに送る仮想トラッカー部位
// 腰・胸・肘×2・膝×2・足×2の8か所。OSCのトラッカー番号は宣言順で1から割り当てる
// （どの番号がどの部位かはVRChat側のキャリブレーションで対応付けられる）
type TrackerRole int

const (
	RoleHips TrackerRole = iota
	RoleChest
	RoleLeftFoot
	RoleRightFoot
	RoleLeftKnee
	RoleRightKnee
	RoleLeftElbow
	RoleRightElbow
	RoleCount
)

var roleNames = map[TrackerRole]string{
	RoleHips:       "Hips",
	RoleChest:      "Chest",
	RoleLeftFoot:   "LeftFoot",
	RoleRightFoot:  "RightFoot",
	RoleLeftKnee:   "LeftKnee",
	RoleRightKnee:  "RightKnee",
	RoleLeftElbow:  "LeftElbow",
	RoleRightElbow: "RightElbow",
}

func (r TrackerRole) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "Unknown"
}

// Index OSCアドレスに使うトラッカー番号（1始まり）
func (r TrackerRole) Index() int {
	return int(r) + 1
}

// TrackerPose 1部位分の出力トランスフォーム（ワールド座標系）
type TrackerPose struct {
	Role       TrackerRole
	Position   mgl64.Vec3
	Rotation   mgl64.Quat
	Confidence float64
	Valid      bool
}

// TrackerPoseSet 全部位の最新ポーズ。出力サイクルごとに丸ごと作り直す
type TrackerPoseSet struct {
	Timestamp time.Time
	Seq       uint64
	Poses     [RoleCount]TrackerPose
}

// NewTrackerPoseSet 全部位を原点・無効状態で持つセットを作る
func NewTrackerPoseSet(timestamp time.Time, seq uint64) *TrackerPoseSet {
	set := &TrackerPoseSet{Timestamp: timestamp, Seq: seq}
	for role := TrackerRole(0); role < RoleCount; role++ {
		set.Poses[role] = TrackerPose{Role: role, Rotation: mgl64.QuatIdent()}
	}
	return set
}
