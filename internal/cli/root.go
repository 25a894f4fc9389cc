package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ToughForge/EspoMCP/internal/config"
	"github.com/ToughForge/EspoMCP/internal/logging"
)

var (
	configPath string
	verbose    bool
	jsonOut    bool
)

var rootCmd = &cobra.Command{
	Use:   "espo-mcp",
	Short: "EspoCRM MCP 서버",
	Long: `espo-mcp - EspoCRM MCP 서버

EspoCRM 메타데이터를 읽어 엔티티별 MCP 도구를 생성하고
Streamable HTTP 로 제공합니다.

주요 기능:
  - serve:   MCP 서버 실행 (세션 / stateless 모드)
  - inspect: 생성될 도구 목록 확인
  - browse:  도구 스키마 탐색 (TUI)
  - audit:   도구 호출 기록 조회`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "설정 파일 경로 (기본: ~/.espo-mcp/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "상세 출력")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "JSON 출력")
}

// loadConfig reads the config named by --config and applies --verbose.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the process logger from cfg.
func newLogger(cfg *config.Config) (*zap.SugaredLogger, error) {
	return logging.New(cfg.Log.Level, cfg.Log.Development)
}

// IsVerbose returns verbose flag
func IsVerbose() bool {
	return verbose
}

// IsJSON returns json output flag
func IsJSON() bool {
	return jsonOut
}
