package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadEngineConfig 加载框架配置文件，并应用默认值与校验（对外导出）
// path为空时返回默认配置
func LoadEngineConfig(path string) (*EngineConfig, error) {
	var cfg EngineConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取框架配置失败: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("解析框架配置失败: %w", err)
		}
	}

	cfg.ApplyDefaults()
	if err := ValidateEngineConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadPipelineConfig 加载业务配置文件并校验（对外导出）
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取Pipeline配置失败: %w", err)
	}
	return ParsePipelineConfig(data)
}

// ParsePipelineConfig 从YAML内容解析业务配置（对外导出）
func ParsePipelineConfig(data []byte) (*PipelineConfig, error) {
	var cfg PipelineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析Pipeline配置失败: %w", err)
	}
	if err := ValidatePipelineConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
