// Package osc VRChat OSCトラッカープロトコルへの出力
//
// Unityの座標系と同じく+yが上、位置は1.0f = 1m
// VRChatでサポートされている部位は腰・胸・肘×2・膝×2・足×2の8か所
// どのトラッカー番号がどの部位になるかはVRChat内のキャリブレーションで
// 自動的に対応付けられるため、番号割り当ては送信側の任意
package osc

import (
	"fmt"

	goosc "github.com/hypebeast/go-osc/osc"

	"github.com/miu200521358/vr-auto-trace/pkg/model"
)

// Sender UDPでトラッカーポーズを送る。確認応答なしの送りっぱなし
type Sender struct {
	client *goosc.Client
}

func NewSender(host string, port int) *Sender {
	return &Sender{client: goosc.NewClient(host, port)}
}

// Send 全部位のポーズを送信する。一部の送信に失敗しても残りは送る
func (s *Sender) Send(set *model.TrackerPoseSet) error {
	var firstErr error
	for _, msg := range messages(set) {
		if err := s.client.Send(msg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// messages 1セット分のOSCメッセージ列を組み立てる
func messages(set *model.TrackerPoseSet) []*goosc.Message {
	msgs := make([]*goosc.Message, 0, model.RoleCount*3)
	for role := model.TrackerRole(0); role < model.RoleCount; role++ {
		pose := set.Poses[role]
		idx := role.Index()

		posMsg := goosc.NewMessage(fmt.Sprintf("/tracking/trackers/%d/position", idx))
		posMsg.Append(float32(pose.Position.X()))
		posMsg.Append(float32(pose.Position.Y()))
		posMsg.Append(float32(pose.Position.Z()))
		msgs = append(msgs, posMsg)

		rotMsg := goosc.NewMessage(fmt.Sprintf("/tracking/trackers/%d/rotation", idx))
		rotMsg.Append(float32(pose.Rotation.V.X()))
		rotMsg.Append(float32(pose.Rotation.V.Y()))
		rotMsg.Append(float32(pose.Rotation.V.Z()))
		rotMsg.Append(float32(pose.Rotation.W))
		msgs = append(msgs, rotMsg)

		confMsg := goosc.NewMessage(fmt.Sprintf("/tracking/trackers/%d/confidence", idx))
		conf := pose.Confidence
		if !pose.Valid {
			conf = 0
		}
		confMsg.Append(float32(conf))
		msgs = append(msgs, confMsg)
	}
	return msgs
}
