package usecase

import (
	"log/slog"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/mat"

	"github.com/miu200521358/vr-auto-trace/pkg/config"
	"github.com/miu200521358/vr-auto-trace/pkg/model"
)

const defaultFrameInterval = 1.0 / 60.0

// axisFilter 1軸分の等速度モデルKalmanフィルタ
// 状態 x = [位置, 速度]
type axisFilter struct {
	x *mat.VecDense
	p *mat.Dense
}

func newAxisFilter(pos float64) *axisFilter {
	return &axisFilter{
		x: mat.NewVecDense(2, []float64{pos, 0}),
		p: mat.NewDense(2, 2, []float64{1, 0, 0, 1}),
	}
}

// predict dt秒ぶん状態を進める
func (f *axisFilter) predict(dt, q float64) {
	ft := mat.NewDense(2, 2, []float64{1, dt, 0, 1})

	var x mat.VecDense
	x.MulVec(ft, f.x)
	f.x.CopyVec(&x)

	var fp, fpf mat.Dense
	fp.Mul(ft, f.p)
	fpf.Mul(&fp, ft.T())
	// 白色加速度ノイズ
	fpf.Set(0, 0, fpf.At(0, 0)+q*dt*dt*dt/3)
	fpf.Set(0, 1, fpf.At(0, 1)+q*dt*dt/2)
	fpf.Set(1, 0, fpf.At(1, 0)+q*dt*dt/2)
	fpf.Set(1, 1, fpf.At(1, 1)+q*dt)
	f.p.Copy(&fpf)
}

// update 観測値zで補正する
func (f *axisFilter) update(z, r float64) {
	s := f.p.At(0, 0) + r
	k0 := f.p.At(0, 0) / s
	k1 := f.p.At(1, 0) / s

	y := z - f.x.AtVec(0)
	f.x.SetVec(0, f.x.AtVec(0)+k0*y)
	f.x.SetVec(1, f.x.AtVec(1)+k1*y)

	p00, p01 := f.p.At(0, 0), f.p.At(0, 1)
	p10, p11 := f.p.At(1, 0), f.p.At(1, 1)
	f.p.Set(0, 0, (1-k0)*p00)
	f.p.Set(0, 1, (1-k0)*p01)
	f.p.Set(1, 0, p10-k1*p00)
	f.p.Set(1, 1, p11-k1*p01)
}

func (f *axisFilter) pos() float64 { return f.x.AtVec(0) }

func (f *axisFilter) setPos(v float64) { f.x.SetVec(0, v) }

// jointFilter 1関節分の永続フィルタ状態
type jointFilter struct {
	axes        [3]*axisFilter
	initialized bool
	lastTime    time.Time
	lastConf    float64
	missing     int
}

func (j *jointFilter) estimate() mgl64.Vec3 {
	return mgl64.Vec3{j.axes[0].pos(), j.axes[1].pos(), j.axes[2].pos()}
}

func (j *jointFilter) init(pos mgl64.Vec3, timestamp time.Time, conf float64) {
	for axis := 0; axis < 3; axis++ {
		j.axes[axis] = newAxisFilter(pos[axis])
	}
	j.initialized = true
	j.lastTime = timestamp
	j.lastConf = conf
	j.missing = 0
}

// FilterBank 全関節の時系列フィルタ。セッションと同じ寿命を持つ
type FilterBank struct {
	joints     [model.JointCount]*jointFilter
	lowConfRun int
}

func NewFilterBank() *FilterBank {
	bank := &FilterBank{}
	for id := range bank.joints {
		bank.joints[id] = &jointFilter{}
	}
	return bank
}

// Reset スケルトンロスト時の明示リセット。次の観測から作り直す
func (b *FilterBank) Reset() {
	for id := range b.joints {
		b.joints[id] = &jointFilter{}
	}
	b.lowConfRun = 0
}

// Apply 生フレームを平滑化済みフレームに置き換える
// 出力位置は常に有限値（NaN/Infは最後の正常推定で置き換える）
func (b *FilterBank) Apply(cfg config.FilterConfig, frame *model.SkeletonFrame) *model.SkeletonFrame {
	out := model.NewSkeletonFrame(frame.Timestamp, frame.Seq)

	allLow := true
	for id := model.JointID(0); id < model.JointCount; id++ {
		joint := frame.Joints[id]
		jf := b.joints[id]

		dt := defaultFrameInterval
		if jf.initialized && frame.Timestamp.After(jf.lastTime) {
			dt = frame.Timestamp.Sub(jf.lastTime).Seconds()
		}

		observed := joint.Observed && model.IsFinite(joint.Position)
		switch {
		case observed && !jf.initialized:
			jf.init(joint.Position, frame.Timestamp, joint.Confidence)

		case observed && jf.missing > cfg.MaxMissingFrames:
			// 古い状態からのスナップを避けるため観測値で作り直す
			jf.init(joint.Position, frame.Timestamp, joint.Confidence)

		case observed:
			prev := jf.estimate()
			for axis := 0; axis < 3; axis++ {
				jf.axes[axis].predict(dt, cfg.ProcessNoise)
				jf.axes[axis].update(joint.Position[axis], cfg.MeasurementNoise)
			}
			b.clampSpeed(jf, prev, cfg.MaxSpeed*dt)
			jf.missing = 0
			jf.lastConf = joint.Confidence
			jf.lastTime = frame.Timestamp

		case jf.initialized:
			jf.missing++
			if jf.missing <= cfg.MaxMissingFrames {
				// デッドレコニングで補間
				prev := jf.estimate()
				for axis := 0; axis < 3; axis++ {
					jf.axes[axis].predict(dt, cfg.ProcessNoise)
				}
				b.clampSpeed(jf, prev, cfg.MaxSpeed*dt)
				jf.lastTime = frame.Timestamp
			}
		}

		outJoint := model.Joint{ID: id, Rotation: joint.Rotation}
		if jf.initialized {
			outJoint.Position = jf.estimate()
			if !model.IsFinite(outJoint.Position) {
				// フィルタ状態が壊れたら観測値から作り直す
				slog.Warn("filter state became non-finite", "joint", id.String())
				jf.init(joint.Position, frame.Timestamp, joint.Confidence)
				outJoint.Position = jf.estimate()
			}
			switch {
			case observed:
				outJoint.Observed = true
				outJoint.Confidence = joint.Confidence
			case jf.missing <= cfg.MaxMissingFrames:
				// Mフレーム目で信頼度0になるよう線形減衰
				outJoint.Observed = true
				outJoint.Confidence = jf.lastConf * (1 - float64(jf.missing)/float64(cfg.MaxMissingFrames))
			default:
				outJoint.Observed = false
				outJoint.Confidence = 0
			}
		}
		out.Joints[id] = outJoint

		if outJoint.Confidence >= cfg.MinConfidence {
			allLow = false
		}
	}

	if allLow {
		b.lowConfRun++
		if b.lowConfRun >= cfg.LostFrames {
			slog.Debug("skeleton lost, resetting filter state", "frames", b.lowConfRun)
			b.Reset()
		}
	} else {
		b.lowConfRun = 0
	}

	return out
}

// clampSpeed 1フレームの移動量を物理的に妥当な範囲に抑える
func (b *FilterBank) clampSpeed(jf *jointFilter, prev mgl64.Vec3, maxStep float64) {
	if maxStep <= 0 {
		return
	}
	cur := jf.estimate()
	delta := cur.Sub(prev)
	dist := delta.Len()
	if dist <= maxStep {
		return
	}
	clamped := prev.Add(delta.Mul(maxStep / dist))
	for axis := 0; axis < 3; axis++ {
		jf.axes[axis].setPos(clamped[axis])
	}
}
