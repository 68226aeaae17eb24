// Package config 加载并校验实验配置。单个 YAML 文件描述一次实验的全部参数，
// 未知键一律拒绝，避免拼写错误静默生效。
package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"hedgesim/internal/env"
	"hedgesim/internal/eval"
	"hedgesim/internal/policy"
	"hedgesim/internal/sim"
	"hedgesim/internal/train"
)

// AppConfig 应用级参数：日志与数据文件路径。
type AppConfig struct {
	LogLevel       string `mapstructure:"log_level" json:"log_level"`
	LogJSON        bool   `mapstructure:"log_json" json:"log_json"`
	LogPath        string `mapstructure:"log_path" json:"log_path"`
	DatasetPath    string `mapstructure:"dataset_path" json:"dataset_path"`
	CheckpointPath string `mapstructure:"checkpoint_path" json:"checkpoint_path"`
	ReportPath     string `mapstructure:"report_path" json:"report_path"`
	ChartPath      string `mapstructure:"chart_path" json:"chart_path"`
}

// Config 一次实验的完整配置。
type Config struct {
	App         AppConfig     `mapstructure:"app" json:"app"`
	Simulation  sim.Config    `mapstructure:"simulation" json:"simulation"`
	Environment env.Config    `mapstructure:"environment" json:"environment"`
	Policy      policy.Config `mapstructure:"policy" json:"policy"`
	Training    train.Config  `mapstructure:"training" json:"training"`
	Evaluation  eval.Config   `mapstructure:"evaluation" json:"evaluation"`
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.dataset_path", "data/dataset.db")
	v.SetDefault("app.checkpoint_path", "data/checkpoints.db")
	v.SetDefault("app.report_path", "data/reports.db")
	v.SetDefault("app.chart_path", "data/report.html")

	v.SetDefault("simulation.model", sim.ModelGBM)
	v.SetDefault("simulation.initial_price", 100.0)
	v.SetDefault("simulation.vol", 0.2)
	v.SetDefault("simulation.steps", 30)
	v.SetDefault("simulation.maturity", 30.0/252.0)
	v.SetDefault("simulation.seed", 1)
	v.SetDefault("simulation.option.type", sim.OptionCall)
	v.SetDefault("simulation.option.strike", 100.0)

	v.SetDefault("environment.action_min", -1.5)
	v.SetDefault("environment.action_max", 1.5)
	v.SetDefault("environment.allow_clamping", true)
	v.SetDefault("environment.reward", env.RewardPnL)

	v.SetDefault("policy.name", policy.NameReinforce)
	v.SetDefault("policy.learning_rate", 0.01)
	v.SetDefault("policy.sigma", 0.1)
	v.SetDefault("policy.baseline_beta", 0.05)

	v.SetDefault("training.episodes", 5000)
	v.SetDefault("training.workers", 4)
	v.SetDefault("training.batch_size", 256)
	v.SetDefault("training.update_every", 8)
	v.SetDefault("training.buffer_capacity", 65536)
	v.SetDefault("training.buffer_eviction", train.EvictFIFO)
	v.SetDefault("training.buffer_sampling", train.SampleRecent)
	v.SetDefault("training.checkpoint_every", 500)
	v.SetDefault("training.max_consecutive_failures", 10)

	v.SetDefault("evaluation.episodes", 1000)
	v.SetDefault("evaluation.workers", 4)
	v.SetDefault("evaluation.seed", 990000)
	v.SetDefault("evaluation.confidence", 0.95)
	v.SetDefault("evaluation.curve_count", 5)
}

// Load 读取 YAML 配置并做全量校验。path 为空时仅用默认值。
func Load(path string) (*Config, error) {
	v := viper.New()
	applyDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败 (%s): %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.ErrorUnused = true
	}); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 逐段委托各组件自身的校验。
func (c *Config) Validate() error {
	if err := c.Simulation.Validate(); err != nil {
		return err
	}
	if err := c.Environment.Validate(); err != nil {
		return err
	}
	if err := c.Policy.Validate(); err != nil {
		return err
	}
	if err := c.Training.Validate(); err != nil {
		return err
	}
	if err := c.Evaluation.Validate(); err != nil {
		return err
	}
	if c.Simulation.Model == sim.ModelReplay && c.App.DatasetPath == "" {
		return &sim.ConfigError{Field: "app.dataset_path", Reason: "replay 模型需要数据集路径"}
	}
	return nil
}
