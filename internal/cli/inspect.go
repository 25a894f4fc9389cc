package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ToughForge/EspoMCP/internal/config"
	"github.com/ToughForge/EspoMCP/internal/server"
	"github.com/ToughForge/EspoMCP/internal/session"
	"github.com/ToughForge/EspoMCP/internal/tui"
)

var inspectAPIKey string

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "생성될 도구 확인",
	Long: `EspoCRM 메타데이터를 읽어 생성될 도구를 출력합니다.

서버를 띄우지 않고 엔티티, 도구 수, 생성 경고를 확인합니다.
--json 을 주면 tools/list 와 같은 형식으로 출력합니다.

예시:
  espo-mcp inspect
  espo-mcp inspect --json | jq '.tools[].name'`,
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVar(&inspectAPIKey, "api-key", "", "사용할 API 키 (기본: 설정 espo.api_key)")
}

// buildToolset fetches the catalog once with the configured credential.
func buildToolset(cmd *cobra.Command, apiKey string) (*config.Config, *session.Toolset, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if apiKey != "" {
		cfg.Espo.APIKey = apiKey
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if cfg.Espo.APIKey == "" {
		return nil, nil, fmt.Errorf("API 키가 없습니다 (--api-key 또는 espo.api_key)")
	}
	if !verbose {
		cfg.Log.Level = "warn"
	}

	log, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(cmd.Context(), 3*cfg.Espo.Timeout)
	defer cancel()

	ts, err := newFactory(cfg, log).Build(ctx, cfg.Espo.APIKey)
	if err != nil {
		return nil, nil, fmt.Errorf("카탈로그 조회 실패: %w", err)
	}
	return cfg, ts, nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, ts, err := buildToolset(cmd, inspectAPIKey)
	if err != nil {
		return err
	}

	if jsonOut {
		list := server.ToolsListResult{Tools: make([]server.Tool, 0, len(ts.Operations))}
		for _, op := range ts.Operations {
			list.Tools = append(list.Tools, server.Tool{
				Name:        op.Name,
				Description: op.Description,
				InputSchema: op.InputSchema(),
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	entities := ts.Catalog.VisibleEntities()

	fmt.Println(tui.Title("EspoCRM 도구 카탈로그"))
	fmt.Println(tui.Box("요약", []string{
		tui.Label("CRM", cfg.Espo.URL),
		tui.Label("엔티티", fmt.Sprintf("%d", len(entities))),
		tui.Label("도구", fmt.Sprintf("%d", len(ts.Operations))),
		tui.Label("경고", fmt.Sprintf("%d", len(ts.Warnings))),
	}, 60))
	fmt.Println()

	perEntity := make(map[string]int, len(entities))
	for _, op := range ts.Operations {
		if op.Operation.Entity != "" {
			perEntity[op.Operation.Entity]++
		}
	}

	fmt.Printf("%-3s %-28s %6s %6s %6s\n", "", "ENTITY", "FIELDS", "LINKS", "TOOLS")
	for _, name := range entities {
		e, ok := ts.Catalog.Entity(name)
		if !ok {
			continue
		}
		status := "ok"
		if perEntity[name] == 0 {
			status = "error"
		}
		fmt.Printf("%s  %-28s %6d %6d %6d\n",
			tui.StatusIcon(status), name, len(e.FieldNames()), len(e.RelationNames()), perEntity[name])
	}

	if len(ts.Warnings) > 0 {
		fmt.Println()
		for _, w := range ts.Warnings {
			fmt.Println(tui.StatusIcon("warning"), tui.Warning(w))
		}
	}

	if verbose {
		fmt.Println()
		for _, op := range ts.Operations {
			fmt.Printf("  %-32s %s\n", op.Name, tui.Muted(op.Description))
		}
	}
	return nil
}
