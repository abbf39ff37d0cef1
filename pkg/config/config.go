// Package config 仮想トラッカーパイプラインの設定（YAML）
package config

import (
	"fmt"
	"os"

	"github.com/jinzhu/copier"
	"gopkg.in/yaml.v3"
)

// Config パイプライン全体の設定
type Config struct {
	Output   OutputConfig          `yaml:"output"`
	Filter   FilterConfig          `yaml:"filter"`
	Solver   SolverConfig          `yaml:"solver"`
	Trackers map[string]RoleConfig `yaml:"trackers"`
}

// OutputConfig OSC送信先と送信レート
type OutputConfig struct {
	Host   string  `yaml:"host"`
	Port   int     `yaml:"port"`
	RateHz float64 `yaml:"rate_hz"`
}

// FilterConfig 時系列フィルタのチューニング値
type FilterConfig struct {
	ProcessNoise     float64 `yaml:"process_noise"`      // Kalman Q
	MeasurementNoise float64 `yaml:"measurement_noise"`  // Kalman R
	MaxMissingFrames int     `yaml:"max_missing_frames"` // 欠測をデッドレコニングで補う上限
	MinConfidence    float64 `yaml:"min_confidence"`
	LostFrames       int     `yaml:"lost_frames"` // 全関節低信頼がこのフレーム数続いたら状態リセット
	MaxSpeed         float64 `yaml:"max_speed"`   // m/s 物理的に妥当な移動速度上限
}

// SolverConfig IKソルバのチューニング値
type SolverConfig struct {
	ConfidenceThreshold float64               `yaml:"confidence_threshold"`
	LengthTolerance     float64               `yaml:"length_tolerance"` // m
	BendHints           map[string][3]float64 `yaml:"bend_hints"`       // 四肢名 → 曲げ方向ヒント
}

// RoleConfig 部位ごとのワールド座標オフセット
type RoleConfig struct {
	Offset [3]float64 `yaml:"offset"` // m
}

func (c *Config) defaults() {
	if c.Output.Host == "" {
		c.Output.Host = "127.0.0.1"
	}
	if c.Output.Port <= 0 {
		c.Output.Port = 9000
	}
	if c.Output.RateHz <= 0 {
		c.Output.RateHz = 60
	}
	if c.Filter.ProcessNoise <= 0 {
		c.Filter.ProcessNoise = 0.1
	}
	if c.Filter.MeasurementNoise <= 0 {
		c.Filter.MeasurementNoise = 10.0
	}
	if c.Filter.MaxMissingFrames <= 0 {
		c.Filter.MaxMissingFrames = 15
	}
	if c.Filter.MinConfidence <= 0 {
		c.Filter.MinConfidence = 0.3
	}
	if c.Filter.LostFrames <= 0 {
		c.Filter.LostFrames = 30
	}
	if c.Filter.MaxSpeed <= 0 {
		c.Filter.MaxSpeed = 10.0
	}
	if c.Solver.ConfidenceThreshold <= 0 {
		c.Solver.ConfidenceThreshold = 0.5
	}
	if c.Solver.LengthTolerance <= 0 {
		c.Solver.LengthTolerance = 0.02
	}
	if c.Solver.BendHints == nil {
		c.Solver.BendHints = map[string][3]float64{
			// ひざは前（カメラ寄り）、ひじは後ろへ曲げる
			"left leg":  {0, 0, 1},
			"right leg": {0, 0, 1},
			"left arm":  {0, 0, -1},
			"right arm": {0, 0, -1},
		}
	}
	if c.Trackers == nil {
		c.Trackers = map[string]RoleConfig{}
	}
}

// Validate セッション開始前の検証。ここで弾いたものはフレーム処理に入らない
func (c *Config) Validate() error {
	if c.Output.Port < 1 || c.Output.Port > 65535 {
		return fmt.Errorf("config: invalid output port %d", c.Output.Port)
	}
	if c.Output.RateHz > 1000 {
		return fmt.Errorf("config: output rate %f too high", c.Output.RateHz)
	}
	if c.Filter.MinConfidence > 1 {
		return fmt.Errorf("config: min_confidence %f out of [0,1]", c.Filter.MinConfidence)
	}
	if c.Solver.ConfidenceThreshold > 1 {
		return fmt.Errorf("config: confidence_threshold %f out of [0,1]", c.Solver.ConfidenceThreshold)
	}
	for limb, hint := range c.Solver.BendHints {
		if hint == [3]float64{} {
			return fmt.Errorf("config: bend hint for %q is a zero vector", limb)
		}
	}
	return nil
}

// New デフォルト値のみの設定を作る
func New() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}

// Load YAML設定ファイルを読み込む
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Clone ホットスワップ用のディープコピー
func (c *Config) Clone() (*Config, error) {
	clone := &Config{}
	if err := copier.CopyWithOption(clone, c, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("config: clone: %w", err)
	}
	return clone, nil
}
