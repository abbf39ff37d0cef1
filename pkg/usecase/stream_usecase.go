package usecase

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/miu200521358/vr-auto-trace/pkg/model"
)

// StreamSource 外部の推定器プロセスが流すNDJSONを読むソース
// 1行 = 1フレーム。壊れた行は捨ててパイプラインを止めない
type StreamSource struct {
	scanner *bufio.Scanner
}

func NewStreamSource(r io.Reader) *StreamSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &StreamSource{scanner: scanner}
}

// Next 次のフレームを返す。入力が尽きたらio.EOF
func (s *StreamSource) Next(ctx context.Context) (*model.RawFrame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		frame := &model.RawFrame{}
		if err := json.Unmarshal(line, frame); err != nil {
			slog.Warn("skipping malformed estimator frame", "error", err)
			continue
		}
		return frame, nil
	}
}
