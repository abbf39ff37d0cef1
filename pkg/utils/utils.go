package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cheggaaa/pb/v3"
)

// GetJSONFilePaths ディレクトリ直下から指定サフィックスのJSONを集める
func GetJSONFilePaths(dirPath string, suffix string) ([]string, error) {
	var paths []string
	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path != dirPath && info.IsDir() {
			// 直下だけ参照
			return filepath.SkipDir
		}
		if !info.IsDir() && strings.HasSuffix(info.Name(), suffix) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

func NewProgressBar(total int) *pb.ProgressBar {
	// プログレスバーのカスタムテンプレートを設定
	template := `{{ string . "prefix" }} {{counters . "%s/%s" "%s/?"}} {{bar . }} {{percent . "%.03f%%" "?"}} {{etime . "%s elapsed"}} {{rtime . "%s remain" "%s total" "???"}}`

	bar := pb.ProgressBarTemplate(template).Start(total)

	return bar
}
