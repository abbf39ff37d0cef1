package usecase

import (
	"errors"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/miu200521358/vr-auto-trace/pkg/model"
)

// ErrNonMonotonic タイムスタンプが巻き戻ったフレーム。呼び出し側で破棄してログに残す
var ErrNonMonotonic = errors.New("ingest: non-monotonic timestamp")

// Ingester 推定器の生出力をスケルトンフレームに正規化する
type Ingester struct {
	calib *model.CalibrationContext
	last  time.Time
	seq   uint64
}

func NewIngester(calib *model.CalibrationContext) *Ingester {
	return &Ingester{calib: calib}
}

// Ingest 1フレーム分の生ランドマークを取り込む
// 宣言済みの全関節を必ず持つフレームを返す（欠測はObserved=false, 信頼度0）
func (g *Ingester) Ingest(raw *model.RawFrame) (*model.SkeletonFrame, error) {
	timestamp := time.Unix(0, int64(raw.Timestamp*float64(time.Second)))
	if g.seq > 0 && !timestamp.After(g.last) {
		return nil, ErrNonMonotonic
	}

	frame := model.NewSkeletonFrame(timestamp, g.seq)
	for name, lm := range raw.Landmarks {
		id, ok := model.JointByName[name]
		if !ok {
			// パイプラインが使わないランドマークは捨てる
			continue
		}
		pos := g.toCamera(lm)
		if !model.IsFinite(pos) {
			continue
		}
		frame.Joints[id] = model.Joint{
			ID:         id,
			Position:   pos,
			Rotation:   mgl64.QuatIdent(),
			Confidence: clamp01(lm.Visibility),
			Observed:   true,
		}
	}

	g.last = timestamp
	g.seq++
	return frame, nil
}

// toCamera 正規化座標 → カメラ座標 (m, 右手系Y-up)
// MediaPipeのyは画像下向きなので反転し、zはカメラ手前を+Zに揃える
func (g *Ingester) toCamera(lm model.RawLandmark) mgl64.Vec3 {
	s := g.calib.Scale
	return mgl64.Vec3{
		(lm.X - 0.5) * s,
		(0.5 - lm.Y) * s,
		-lm.Z * s,
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
