package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/LENAX/ctas-pipeline/internal/logging"
	"github.com/LENAX/ctas-pipeline/pkg/config"
	"github.com/LENAX/ctas-pipeline/pkg/core/engine"
	"github.com/spf13/cobra"
)

var (
	// 全局变量
	configPath    string
	pipelinesPath string
	outputJSON    bool
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "ctas-pipeline",
	Short: "CTAS Pipeline CLI - 按SQL文件重建表的调度工具",
	Long: `CTAS Pipeline 根据 <sql_directory>/<schema>/<table>.sql 中的查询，
以 CREATE TABLE ... AS 的方式按依赖顺序重建数据库中的表。

使用示例：
  # 查看解析后的Task
  ctas-pipeline render --pipelines ./configs/pipelines.yaml

  # 预览某个Task渲染后的SQL
  ctas-pipeline render marts --sql --ds 2024-06-01

  # 立即执行一次Pipeline
  ctas-pipeline run marts

  # 启动定时调度与HTTP服务
  ctas-pipeline serve --config ./configs/engine.yaml`,
	SilenceUsage: true,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "引擎配置文件路径（默认依次查找 ./configs/engine.yaml、./engine.yaml）")
	rootCmd.PersistentFlags().StringVarP(&pipelinesPath, "pipelines", "p", "./configs/pipelines.yaml", "Pipeline定义文件路径")
	rootCmd.PersistentFlags().BoolVarP(&outputJSON, "json", "j", false, "使用JSON格式输出")

	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolveConfigPath 未指定--config时尝试默认路径，都不存在则使用内置默认配置
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	for _, p := range []string{"./configs/engine.yaml", "./config/engine.yaml", "./engine.yaml"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// loadEngine 加载配置、初始化日志并创建加载好Pipeline的引擎
func loadEngine(ctx context.Context) (*engine.Engine, *config.EngineConfig, error) {
	cfg, err := config.LoadEngineConfig(resolveConfigPath())
	if err != nil {
		return nil, nil, err
	}
	if err := logging.Setup(cfg.Pipeline.General.LogLevel, cfg.Pipeline.General.Env); err != nil {
		return nil, nil, err
	}

	eng, err := engine.NewEngine(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("创建引擎失败: %w", err)
	}
	if err := eng.LoadPipelinesFromFile(pipelinesPath); err != nil {
		eng.Stop()
		return nil, nil, err
	}
	return eng, cfg, nil
}
