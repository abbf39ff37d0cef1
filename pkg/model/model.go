package model

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// RawLandmark 推定器が返すキーポイント情報
type RawLandmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// RawFrame 推定器1フレーム分の出力（関節名 → ランドマーク）
type RawFrame struct {
	Timestamp float64                `json:"timestamp"` // 秒
	Landmarks map[string]RawLandmark `json:"landmarks"`
}

// RawFrames 録画済みキーポイントファイル1本分
type RawFrames struct {
	Path   string
	Fps    float64          `json:"fps"`
	Frames map[int]RawFrame `json:"frames"`
}

// Joint 1関節の推定状態。毎フレーム作り直す
type Joint struct {
	ID         JointID
	Position   mgl64.Vec3 // カメラ座標系 (m, 右手系Y-up)
	Rotation   mgl64.Quat
	Confidence float64
	Observed   bool
}

// SkeletonFrame 1タイムスタンプ分の全関節。構築後は読み取り専用で次段に渡す
type SkeletonFrame struct {
	Timestamp time.Time
	Seq       uint64
	Joints    [JointCount]Joint
}

// NewSkeletonFrame 全関節を未観測状態で持つフレームを作る
func NewSkeletonFrame(timestamp time.Time, seq uint64) *SkeletonFrame {
	frame := &SkeletonFrame{Timestamp: timestamp, Seq: seq}
	for id := JointID(0); id < JointCount; id++ {
		frame.Joints[id] = Joint{ID: id, Rotation: mgl64.QuatIdent()}
	}
	return frame
}
