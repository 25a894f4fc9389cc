package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ToughForge/EspoMCP/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "설정 관리",
	Long: `espo-mcp 설정을 관리합니다.

설정 파일: ~/.espo-mcp/config.yaml
환경변수 ESPO_MCP_* 가 파일 값을 덮어씁니다.

예시:
  espo-mcp config show         # 적용된 설정 표시 (API 키 가림)
  espo-mcp config init         # 기본 설정 파일 생성
  espo-mcp config path         # 설정 파일 경로
`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "적용된 설정 표시",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "설정 초기화",
	Long: `기본 설정으로 설정 파일을 생성합니다.

--url 과 --api-key 로 CRM 접속 정보를 함께 기록할 수 있습니다.
`,
	RunE: runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "설정 파일 경로 출력",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(effectiveConfigPath())
	},
}

var (
	configForce  bool
	configURL    string
	configAPIKey string
)

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "기존 설정 덮어쓰기")
	configInitCmd.Flags().StringVar(&configURL, "url", "", "EspoCRM URL")
	configInitCmd.Flags().StringVar(&configAPIKey, "api-key", "", "기본 API 키")
}

func effectiveConfigPath() string {
	if configPath != "" {
		return config.ExpandHome(configPath)
	}
	return config.GlobalConfigPath()
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	shown := cfg.Redacted()

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(shown)
	}

	data, err := yaml.Marshal(shown)
	if err != nil {
		return fmt.Errorf("설정 직렬화 실패: %w", err)
	}
	fmt.Printf("# %s\n", effectiveConfigPath())
	fmt.Print(string(data))

	if err := cfg.Validate(); err != nil {
		fmt.Println()
		fmt.Printf("⚠️  %v\n", err)
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := effectiveConfigPath()

	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("설정 파일이 이미 존재합니다: %s (--force 로 덮어쓰기)", path)
	}

	cfg := config.Default()
	cfg.Espo.URL = configURL
	cfg.Espo.APIKey = configAPIKey

	if err := config.Save(path, cfg); err != nil {
		return err
	}

	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
			"status": "created",
			"path":   path,
		})
	}

	fmt.Printf("✓ 설정 파일 생성: %s\n", path)
	if cfg.Espo.URL == "" {
		fmt.Println("  espo.url 을 설정한 뒤 'espo-mcp serve' 를 실행하세요.")
	}
	return nil
}
