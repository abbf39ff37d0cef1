// Package session パイプライン全体の寿命を管理する
//
// 推定器レートで回る生成系（ingest → filter → solve → map）と、
// 固定レートで回る送信系の2本のループを持つ。両者が共有するのは
// 「最新のトラッカーポーズセット」1つだけで、アトミックに差し替える
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/miu200521358/vr-auto-trace/pkg/config"
	"github.com/miu200521358/vr-auto-trace/pkg/model"
	"github.com/miu200521358/vr-auto-trace/pkg/usecase"
)

// Source 推定器バックエンドの差し替え口
// 次のフレームが来るまでブロックしてよい。終端はio.EOF
type Source interface {
	Next(ctx context.Context) (*model.RawFrame, error)
}

// Sender トラッカーポーズセットの送信口
type Sender interface {
	Send(*model.TrackerPoseSet) error
}

// Session 1回の計測セッション。フィルタ状態とスケルトンモデルを専有する
type Session struct {
	id     string
	cfg    atomic.Pointer[config.Config]
	calib  *model.CalibrationContext
	source Source
	sender Sender

	ingester *usecase.Ingester
	bank     *usecase.FilterBank
	solver   *usecase.Solver
	mapper   *usecase.Mapper

	latest atomic.Pointer[model.TrackerPoseSet]
}

// New セッションを組み立てる。設定・キャリブレーション・対応表の不備は
// ここで弾き、フレーム処理を始めさせない
func New(cfg *config.Config, calib *model.CalibrationContext, skeleton *model.SkeletonModel, source Source, sender Sender) (*Session, error) {
	if cfg == nil || calib == nil || skeleton == nil || source == nil || sender == nil {
		return nil, errors.New("session: missing dependency")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := calib.Setup(); err != nil {
		return nil, err
	}
	if err := skeleton.Validate(); err != nil {
		return nil, err
	}
	if err := usecase.ValidateMappings(); err != nil {
		return nil, err
	}

	snapshot, err := cfg.Clone()
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:       uuid.NewString(),
		calib:    calib,
		source:   source,
		sender:   sender,
		ingester: usecase.NewIngester(calib),
		bank:     usecase.NewFilterBank(),
		solver:   usecase.NewSolver(skeleton),
		mapper:   usecase.NewMapper(calib),
	}
	s.cfg.Store(snapshot)
	return s, nil
}

func (s *Session) ID() string { return s.id }

// ApplyConfig チューニング値をフレーム間でホットスワップする
// フィルタ状態は維持される
func (s *Session) ApplyConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	snapshot, err := cfg.Clone()
	if err != nil {
		return err
	}
	s.cfg.Store(snapshot)
	return nil
}

// Latest 最後に発行されたポーズセット。まだ無ければnil
func (s *Session) Latest() *model.TrackerPoseSet {
	return s.latest.Load()
}

// Run 生成ループと送信ループを回す。ソースの終端かctxの取り消しで戻り、
// フィルタ状態と最新ポーズセットは破棄される
func (s *Session) Run(ctx context.Context) error {
	slog.Info("Start: Session =============================", "session", s.id)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.sendLoop(ctx)
	}()

	err := s.produceLoop(ctx)

	cancel()
	<-done

	// 終了時に仕掛かり状態を破棄する
	s.bank.Reset()
	s.latest.Store(nil)

	slog.Info("End: Session =============================", "session", s.id)
	return err
}

// produceLoop 推定器の可変レートで回る。送信にはブロックしない
func (s *Session) produceLoop(ctx context.Context) error {
	for {
		raw, err := s.source.Next(ctx)
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("session: source: %w", err)
		}

		cfg := s.cfg.Load()

		frame, err := s.ingester.Ingest(raw)
		if err != nil {
			// 時刻が巻き戻ったフレームは捨てて続行する
			slog.Warn("frame dropped", "session", s.id, "error", err)
			continue
		}

		filtered := s.bank.Apply(cfg.Filter, frame)
		solved := s.solver.Solve(cfg.Solver, filtered)
		set := s.mapper.Map(cfg, solved)

		s.latest.Store(set)
	}
}

// sendLoop 固定レートで最新セットを送る。新しいセットが無ければ
// 前回と同じものを送り直し、受信側のトラッカーを生かしておく
func (s *Session) sendLoop(ctx context.Context) {
	rate := s.cfg.Load().Output.RateHz
	ticker := time.NewTicker(interval(rate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if newRate := s.cfg.Load().Output.RateHz; newRate != rate {
				rate = newRate
				ticker.Reset(interval(rate))
			}

			set := s.latest.Load()
			if set == nil {
				continue
			}
			if err := s.sender.Send(set); err != nil {
				// 送信失敗でパイプラインは止めない
				slog.Warn("tracker send failed", "session", s.id, "error", err)
			}
		}
	}
}

func interval(rateHz float64) time.Duration {
	if rateHz <= 0 {
		rateHz = 60
	}
	return time.Duration(float64(time.Second) / rateHz)
}
