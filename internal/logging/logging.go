package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

// Setup 根据配置初始化全局logrus：prod环境输出JSON，其余环境输出带时间的文本。
func Setup(level, env string) error {
	return SetupWithOutput(level, env, os.Stdout)
}

// SetupWithOutput 同Setup，可指定输出目标。
func SetupWithOutput(level, env string, out io.Writer) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("无效的日志级别 %q: %w", level, err)
	}
	if env == "prod" {
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	}
	log.SetOutput(out)
	log.SetLevel(lvl)
	return nil
}
