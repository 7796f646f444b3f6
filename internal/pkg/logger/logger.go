// internal/pkg/logger/logger.go
package logger

import (
	"os"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Init 配置全局 zerolog。
// 各包直接使用 github.com/rs/zerolog/log 的全局 logger。
func Init(serviceName string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if parsed, err := zerolog.ParseLevel(v); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)

	zlog.Logger = zlog.With().Str("service", serviceName).Logger()
}
