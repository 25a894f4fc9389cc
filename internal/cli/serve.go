package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ToughForge/EspoMCP/internal/audit"
	"github.com/ToughForge/EspoMCP/internal/config"
	"github.com/ToughForge/EspoMCP/internal/db"
	"github.com/ToughForge/EspoMCP/internal/espo"
	"github.com/ToughForge/EspoMCP/internal/router"
	"github.com/ToughForge/EspoMCP/internal/server"
	"github.com/ToughForge/EspoMCP/internal/session"
	"github.com/ToughForge/EspoMCP/internal/store"
)

var (
	serveAddr   string
	serveMode   string
	serveAPIKey string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "MCP 서버 실행",
	Long: `Streamable HTTP MCP 서버를 실행합니다.

엔드포인트:
  POST   /mcp     JSON-RPC 요청 (JSON 또는 SSE 응답)
  GET    /mcp     서버 푸시 스트림 (세션 모드)
  DELETE /mcp     세션 종료 (세션 모드)
  GET    /health  상태 확인

모드:
  session    initialize 시 X-Api-Key 로 도구를 생성하고 세션에 보관
  stateless  요청마다 X-Api-Key 를 읽고 키별로 도구를 캐시

예시:
  espo-mcp serve
  espo-mcp serve --addr :8080 --mode stateless`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "수신 주소 (기본: 설정 server.addr)")
	serveCmd.Flags().StringVar(&serveMode, "mode", "", "서버 모드 (session, stateless)")
	serveCmd.Flags().StringVar(&serveAPIKey, "api-key", "", "X-Api-Key 가 없을 때 사용할 기본 API 키")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr = serveAddr
	}
	if cmd.Flags().Changed("mode") {
		cfg.Server.Mode = serveMode
	}
	if cmd.Flags().Changed("api-key") {
		cfg.Espo.APIKey = serveAPIKey
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	opts := []server.Option{server.WithLogger(log)}
	if cfg.Audit.Driver != "" {
		auditLog, database, err := openAudit(cfg, log)
		if err != nil {
			return err
		}
		defer database.Close()
		opts = append(opts, server.WithRecorder(auditLog))
	}

	factory := newFactory(cfg, log)
	sessionCfg := session.Config{
		IdleTimeout:   cfg.Session.IdleTimeout,
		SweepInterval: cfg.Session.SweepInterval,
	}

	var (
		sessions    *session.Manager
		credentials *session.CredentialCache
	)
	switch cfg.Server.Mode {
	case config.ModeStateless:
		credentials = session.NewCredentialCache(factory, store.NewSharded[*session.CredentialEntry](), sessionCfg, session.WithLogger(log))
	default:
		sessions = session.NewManager(factory, store.NewSharded[*session.Session](), sessionCfg, session.WithLogger(log))
	}

	srv := server.New(server.Config{
		Addr:          cfg.Server.Addr,
		Mode:          server.Mode(cfg.Server.Mode),
		DefaultAPIKey: cfg.Espo.APIKey,
		KeepAlive:     cfg.Session.KeepAlive,
		CORSOrigins:   cfg.Server.CORSOrigins,
		Version:       Version,
	}, sessions, credentials, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !jsonOut {
		fmt.Printf("espo-mcp %s\n", Version)
		fmt.Printf("  CRM:     %s\n", cfg.Espo.URL)
		fmt.Printf("  Listen:  %s\n", cfg.Server.Addr)
		fmt.Printf("  Mode:    %s\n", cfg.Server.Mode)
		if cfg.Audit.Driver != "" {
			fmt.Printf("  Audit:   %s (%s)\n", cfg.Audit.Path, cfg.Audit.Driver)
		}
		fmt.Println()
	}

	return srv.Start(ctx)
}

// newFactory returns the toolset builder for cfg's CRM.
func newFactory(cfg *config.Config, log *zap.SugaredLogger) *session.Factory {
	baseURL, timeout := cfg.Espo.URL, cfg.Espo.Timeout
	return &session.Factory{
		NewClient: func(apiKey string) espo.API {
			return espo.NewClient(baseURL, apiKey, timeout)
		},
		DisplayNames: router.ParseDisplayNames(cfg.DisplayNameFields),
		Log:          log,
	}
}

// openAudit opens the audit database, falling back to SQLite when the
// DuckDB driver is unavailable.
func openAudit(cfg *config.Config, log *zap.SugaredLogger) (*audit.Log, db.Database, error) {
	database, driver, err := db.OpenAuto(db.Driver(cfg.Audit.Driver), cfg.Audit.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("감사 DB 열기 실패: %w", err)
	}
	if string(driver) != cfg.Audit.Driver {
		log.Warnw("audit driver fallback", "requested", cfg.Audit.Driver, "using", driver, "path", database.Path())
	}
	return audit.New(database), database, nil
}
