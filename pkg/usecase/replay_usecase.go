package usecase

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/miu200521358/vr-auto-trace/pkg/model"
	"github.com/miu200521358/vr-auto-trace/pkg/utils"
)

// Unpack 録画済みキーポイントJSONを読み込んで構造体に展開する
func Unpack(dirPath string) ([]*model.RawFrames, error) {
	slog.Info("Start: Unpack =============================")

	jsonPaths, err := utils.GetJSONFilePaths(dirPath, "_keypoints.json")
	if err != nil {
		slog.Error("Failed to get json file paths", "error", err)
		return nil, err
	}

	allFrames := make([]*model.RawFrames, len(jsonPaths))

	bar := utils.NewProgressBar(len(jsonPaths))

	for i, path := range jsonPaths {
		bar.Increment()

		// JSONデータを読み込んで展開
		file, err := os.Open(path)
		if err != nil {
			slog.Error("Failed to open file", "path", path, "error", err)
			return nil, err
		}

		frames := new(model.RawFrames)
		frames.Path = path
		decoder := json.NewDecoder(file)
		err = decoder.Decode(frames)
		file.Close()
		if err != nil {
			slog.Error("Failed to decode json", "path", path, "error", err)
			return nil, err
		}

		allFrames[i] = frames
	}

	bar.Finish()

	slog.Info("End: Unpack =============================")

	return allFrames, nil
}

// ReplaySource 録画済みキーポイントを推定器の代わりに流すソース
type ReplaySource struct {
	frames []model.RawFrame
	idx    int
	paced  bool

	started time.Time
	base    float64
}

// NewReplaySource ディレクトリ直下の録画ファイルを全て読み込む
// paced=trueなら記録時刻に合わせて流し、falseなら一気に流す
func NewReplaySource(dirPath string, paced bool) (*ReplaySource, error) {
	allFrames, err := Unpack(dirPath)
	if err != nil {
		return nil, err
	}

	src := &ReplaySource{paced: paced}
	for _, frames := range allFrames {
		fps := frames.Fps
		if fps <= 0 {
			fps = 30
		}
		indexes := make([]int, 0, len(frames.Frames))
		for fno := range frames.Frames {
			indexes = append(indexes, fno)
		}
		sort.Ints(indexes)

		for _, fno := range indexes {
			frame := frames.Frames[fno]
			if frame.Timestamp <= 0 {
				frame.Timestamp = float64(fno) / fps
			}
			src.frames = append(src.frames, frame)
		}
	}

	// ファイル間で時刻が重ならないよう全体を時刻順に揃える
	sort.Slice(src.frames, func(i, j int) bool {
		return src.frames[i].Timestamp < src.frames[j].Timestamp
	})

	return src, nil
}

// Next 次のフレームを返す。終端でio.EOF
func (s *ReplaySource) Next(ctx context.Context) (*model.RawFrame, error) {
	if s.idx >= len(s.frames) {
		return nil, io.EOF
	}
	frame := s.frames[s.idx]
	s.idx++

	if s.paced {
		if s.started.IsZero() {
			s.started = time.Now()
			s.base = frame.Timestamp
		}
		due := s.started.Add(time.Duration((frame.Timestamp - s.base) * float64(time.Second)))
		if wait := time.Until(due); wait > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	return &frame, nil
}
