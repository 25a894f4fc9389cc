package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ToughForge/EspoMCP/internal/audit"
	"github.com/ToughForge/EspoMCP/internal/tui"
)

var (
	auditLimit  int
	auditCaller string
	auditTool   string
	auditEntity string
	auditErrors bool
	auditSince  time.Duration
	auditStats  bool
	auditPrune  time.Duration
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "도구 호출 기록 조회",
	Long: `serve 가 기록한 tools/call 이력을 조회합니다.

호출자는 세션 ID 또는 stateless 모드의 키 다이제스트 앞 12자리입니다.

예시:
  espo-mcp audit
  espo-mcp audit --tool search_account --errors
  espo-mcp audit --since 1h --json
  espo-mcp audit --stats
  espo-mcp audit --prune 720h`,
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 20, "최대 출력 수")
	auditCmd.Flags().StringVar(&auditCaller, "session", "", "호출자 (세션 ID 또는 키 다이제스트) 필터")
	auditCmd.Flags().StringVar(&auditTool, "tool", "", "도구 이름 필터")
	auditCmd.Flags().StringVar(&auditEntity, "entity", "", "엔티티 필터")
	auditCmd.Flags().BoolVar(&auditErrors, "errors", false, "실패한 호출만")
	auditCmd.Flags().DurationVar(&auditSince, "since", 0, "최근 기간만 (예: 1h, 24h)")
	auditCmd.Flags().BoolVar(&auditStats, "stats", false, "도구별 통계 출력")
	auditCmd.Flags().DurationVar(&auditPrune, "prune", 0, "이 기간보다 오래된 기록 삭제 (예: 720h)")
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Audit.Driver == "" {
		return fmt.Errorf("감사 로그가 비활성화되어 있습니다 (audit.driver)")
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	auditLog, database, err := openAudit(cfg, log)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx := cmd.Context()

	if auditPrune > 0 {
		n, err := auditLog.Prune(ctx, time.Now().Add(-auditPrune))
		if err != nil {
			return err
		}
		if jsonOut {
			return json.NewEncoder(os.Stdout).Encode(map[string]interface{}{"pruned": n})
		}
		fmt.Printf("✓ %d 건 삭제\n", n)
		return nil
	}

	if auditStats {
		stats, err := auditLog.Stats(ctx)
		if err != nil {
			return err
		}
		if jsonOut {
			return json.NewEncoder(os.Stdout).Encode(stats)
		}
		printAuditStats(stats)
		return nil
	}

	filter := audit.Filter{
		Caller:     auditCaller,
		Tool:       auditTool,
		Entity:     auditEntity,
		ErrorsOnly: auditErrors,
		Limit:      auditLimit,
	}
	if auditSince > 0 {
		filter.Since = time.Now().Add(-auditSince)
	}

	calls, total, err := auditLog.List(ctx, filter)
	if err != nil {
		return err
	}

	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
			"calls": calls,
			"total": total,
		})
	}

	if len(calls) == 0 {
		fmt.Println("기록이 없습니다.")
		return nil
	}

	fmt.Printf("%-3s %-19s %-12s %-32s %8s\n", "", "TIME", "CALLER", "TOOL", "MS")
	for _, c := range calls {
		status := "ok"
		if c.IsError {
			status = "error"
		}
		fmt.Printf("%s  %-19s %-12s %-32s %8d\n",
			tui.StatusIcon(status),
			c.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			truncate(c.Caller, 12),
			c.Tool,
			c.Duration.Milliseconds())
	}
	fmt.Println()
	fmt.Println(tui.Muted(fmt.Sprintf("%d / %d 건", len(calls), total)))
	return nil
}

func printAuditStats(stats audit.Stats) {
	fmt.Println(tui.Box("도구 호출 통계", []string{
		tui.Label("전체", fmt.Sprintf("%d", stats.Total)),
		tui.Label("실패", fmt.Sprintf("%d", stats.Errors)),
	}, 40))
	fmt.Println()

	if len(stats.ByTool) == 0 {
		return
	}
	fmt.Printf("%-32s %8s %8s %10s\n", "TOOL", "CALLS", "ERRORS", "AVG MS")
	for _, ts := range stats.ByTool {
		fmt.Printf("%-32s %8d %8d %10.1f\n", ts.Tool, ts.Calls, ts.Errors, ts.AvgMillis)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
