package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ToughForge/EspoMCP/internal/audit"
	"github.com/ToughForge/EspoMCP/internal/tui"
)

var browseAPIKey string

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "도구 스키마 탐색 (TUI)",
	Long: `생성된 도구와 최근 호출 기록을 터미널 UI 로 탐색합니다.

키 조작:
  1, 2     탭 전환 (도구 / 감사 로그)
  Tab      목록 / 스키마 포커스 전환
  /        도구 이름 필터
  r        감사 로그 새로고침
  q        종료`,
	RunE: runBrowse,
}

func init() {
	rootCmd.AddCommand(browseCmd)
	browseCmd.Flags().StringVar(&browseAPIKey, "api-key", "", "사용할 API 키 (기본: 설정 espo.api_key)")
}

func runBrowse(cmd *cobra.Command, args []string) error {
	cfg, ts, err := buildToolset(cmd, browseAPIKey)
	if err != nil {
		return err
	}

	var source tui.AuditSource
	if cfg.Audit.Driver != "" {
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}
		auditLog, database, err := openAudit(cfg, log)
		if err != nil {
			return err
		}
		defer database.Close()

		source = func() ([]audit.Call, audit.Stats, error) {
			ctx := context.Background()
			calls, _, err := auditLog.List(ctx, audit.Filter{Limit: 50})
			if err != nil {
				return nil, audit.Stats{}, err
			}
			stats, err := auditLog.Stats(ctx)
			return calls, stats, err
		}
	}

	return tui.Run(ts.Operations, ts.Warnings, source)
}
