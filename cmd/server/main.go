// Rota 排班求解编排服务
// 主程序入口

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/paiban/rota/internal/config"
	"github.com/paiban/rota/internal/database"
	"github.com/paiban/rota/internal/handler"
	"github.com/paiban/rota/internal/orchestrator"
	"github.com/paiban/rota/internal/policy"
	"github.com/paiban/rota/internal/repository"
	"github.com/paiban/rota/internal/solver"
	"github.com/paiban/rota/internal/solver/stubengine"
	"github.com/paiban/rota/pkg/logger"
)

// 构建信息（通过 ldflags 注入）
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "rota",
		Short:         "排班求解编排服务",
		Version:       fmt.Sprintf("%s (%s, %s)", Version, BuildTime, GitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("ROTA_CONFIG"), "配置文件路径")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("加载配置失败: %w", err)
		}
		logger.Init(logger.Config{
			Level:  cfg.App.LogLevel,
			Format: cfg.App.LogFormat,
			Output: "stdout",
		})
		return cfg, nil
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "执行数据库迁移",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return runMigrate(cmd.Context(), cfg)
		},
	}

	stub := &cobra.Command{
		Use:   "stub-engine",
		Short: "启动本地桩求解引擎",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return listen(cfg.Solver.StubEngineAddr, stubengine.New().Handler(), "桩求解引擎")
		},
	}

	root.AddCommand(serve, migrate, stub)
	// 不带子命令时等同 serve
	root.RunE = serve.RunE
	return root
}

func runMigrate(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := database.New(&cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}
	version, err := db.MigrationVersion(ctx)
	if err != nil {
		return err
	}
	logger.Info().Int64("version", version).Msg("数据库迁移完成")
	return nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger.Info().
		Str("version", Version).
		Str("env", cfg.App.Env).
		Msg("Rota 排班求解编排服务启动中")

	db, err := database.New(&cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}

	schedules := repository.NewScheduleRepository(db, db)
	policies := repository.NewPolicyRepository(db)
	wards := repository.NewWardRepository(db)

	cache := policy.NewCache()
	resolver := policy.NewResolver(policies, wards, cache, cfg.Policy.HierarchyEnabled)
	policyService := policy.NewService(policies, cache)

	builder := solver.NewBuilder(solver.Sources{
		Policies:    resolver,
		Wards:       wards,
		Staff:       repository.NewStaffRepository(db),
		Demand:      repository.NewDemandRepository(db),
		ShiftTypes:  repository.NewShiftTypeRepository(db),
		RuleSets:    repository.NewRuleSetRepository(db),
		Preferences: repository.NewPreferenceRepository(db),
		Locks:       repository.NewLockRepository(db),
	})

	var debug *solver.DebugRecorder
	var debugSource handler.DebugSource
	if cfg.Solver.Debug {
		debug = solver.NewDebugRecorder(cfg.Solver.DebugDir)
		debugSource = debug
		logger.Warn().Str("dir", cfg.Solver.DebugDir).Msg("求解调试记录已开启")
	}
	gateway := solver.NewGateway(cfg.Solver, debug)

	orch := orchestrator.New(
		schedules,
		builder,
		gateway,
		repository.NewBulkAssignmentWriter(db),
		repository.NewEventRepository(db),
	)

	router := handler.NewRouter(handler.RouterOptions{
		Solve:     handler.NewSolveHandler(orch, debugSource),
		Policies:  handler.NewPolicyHandler(policyService),
		Schedules: handler.NewScheduleHandler(schedules),
		DB:        db,
		Build:     handler.BuildInfo{Version: Version, BuildTime: BuildTime, GitCommit: GitCommit},
		API:       cfg.API,
		Metrics:   cfg.Metrics,
	})

	err = listen(fmt.Sprintf(":%d", cfg.App.Port), router, "API 服务")
	if debug != nil {
		debug.Flush()
	}
	return err
}

// listen 启动 HTTP 服务并在收到退出信号后优雅关闭
func listen(addr string, h http.Handler, name string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  30 * time.Second,
		// 全量求解预算最长 600s
		WriteTimeout: 11 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msgf("%s已启动", name)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-errCh:
		if ok {
			logger.Error().Err(err).Msgf("%s启动失败", name)
			return err
		}
		return nil
	case <-quit:
	}

	logger.Info().Msgf("正在关闭%s...", name)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msgf("%s关闭失败", name)
		return err
	}
	logger.Info().Msgf("%s已关闭", name)
	return nil
}
