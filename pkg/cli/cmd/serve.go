package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/LENAX/ctas-pipeline/pkg/api"
	"github.com/LENAX/ctas-pipeline/pkg/cli/output"
	"github.com/spf13/cobra"
	log "github.com/sirupsen/logrus"
)

var listenAddr string

// serveCmd 启动定时调度与HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动定时调度与HTTP API服务",
	Long: `启动引擎：为配置了schedule的Pipeline注册Cron调度，并提供HTTP API。

示例：
  ctas-pipeline serve --config ./configs/engine.yaml --pipelines ./configs/pipelines.yaml
  ctas-pipeline serve --listen :9090`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		eng, cfg, err := loadEngine(ctx)
		if err != nil {
			output.Error("加载失败: %v", err)
			return err
		}
		defer eng.Stop()

		if err := eng.Start(ctx); err != nil {
			output.Error("启动引擎失败: %v", err)
			return err
		}

		addr := cfg.Pipeline.API.ListenAddr
		if listenAddr != "" {
			addr = listenAddr
		}
		serverCfg := api.DefaultServerConfig(addr)
		server := api.NewAPIServer(eng, serverCfg, Version)

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()
		output.Success("CTAS Pipeline 已启动: %s（%d 个Pipeline）", server.Addr(), len(eng.PipelineIDs()))

		select {
		case err := <-errCh:
			if err != nil {
				output.Error("API服务器错误: %v", err)
				return err
			}
		case <-ctx.Done():
			log.Info("收到退出信号，正在关闭服务")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.WriteTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("关闭API服务器失败")
		}
		output.Success("服务已停止")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "HTTP监听地址（覆盖配置中的api.listen_addr）")
}
