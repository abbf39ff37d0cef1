package osc

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miu200521358/vr-auto-trace/pkg/model"
)

func TestMessages(t *testing.T) {
	set := model.NewTrackerPoseSet(time.Now(), 1)
	for role := model.TrackerRole(0); role < model.RoleCount; role++ {
		set.Poses[role] = model.TrackerPose{
			Role:       role,
			Position:   mgl64.Vec3{0.1, 1.2, -0.3},
			Rotation:   mgl64.QuatIdent(),
			Confidence: 0.8,
			Valid:      true,
		}
	}

	msgs := messages(set)
	// 部位ごとに position / rotation / confidence の3通
	require.Len(t, msgs, int(model.RoleCount)*3)

	assert.Equal(t, "/tracking/trackers/1/position", msgs[0].Address)
	require.Len(t, msgs[0].Arguments, 3)
	assert.Equal(t, float32(0.1), msgs[0].Arguments[0])
	assert.Equal(t, float32(1.2), msgs[0].Arguments[1])
	assert.Equal(t, float32(-0.3), msgs[0].Arguments[2])

	// 回転は x, y, z, w の順
	assert.Equal(t, "/tracking/trackers/1/rotation", msgs[1].Address)
	require.Len(t, msgs[1].Arguments, 4)
	assert.Equal(t, float32(0), msgs[1].Arguments[0])
	assert.Equal(t, float32(1), msgs[1].Arguments[3])

	assert.Equal(t, "/tracking/trackers/1/confidence", msgs[2].Address)
	require.Len(t, msgs[2].Arguments, 1)
	assert.Equal(t, float32(0.8), msgs[2].Arguments[0])

	// 最終部位はインデックス8
	last := msgs[len(msgs)-3]
	assert.Equal(t, "/tracking/trackers/8/position", last.Address)
}

func TestMessagesInvalidPoseZeroesConfidence(t *testing.T) {
	set := model.NewTrackerPoseSet(time.Now(), 1)
	set.Poses[model.RoleHips] = model.TrackerPose{
		Role:       model.RoleHips,
		Position:   mgl64.Vec3{0, 0.9, 0},
		Rotation:   mgl64.QuatIdent(),
		Confidence: 0.7,
		Valid:      false,
	}

	msgs := messages(set)
	confMsg := msgs[int(model.RoleHips)*3+2]
	assert.Equal(t, "/tracking/trackers/1/confidence", confMsg.Address)
	assert.Equal(t, float32(0), confMsg.Arguments[0])

	// 位置は保持した最終姿勢をそのまま送る
	posMsg := msgs[int(model.RoleHips)*3]
	assert.Equal(t, float32(0.9), posMsg.Arguments[1])
}
