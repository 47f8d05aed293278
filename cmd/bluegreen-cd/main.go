package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"bluegreen-cd/internal/api/router"
	"bluegreen-cd/internal/core/orchestrator"
	"bluegreen-cd/internal/model"
	"bluegreen-cd/internal/pkg/config"
	"bluegreen-cd/internal/pkg/database"
	"bluegreen-cd/internal/pkg/jwt"
	"bluegreen-cd/internal/pkg/logger"
	"bluegreen-cd/internal/scheduler"
	"bluegreen-cd/internal/service"

	_ "bluegreen-cd/docs" // Swagger docs
)

// @title BlueGreen CD API
// @version 1.0
// @description 蓝绿发布编排服务 API 文档
// @description 提供部署目标管理、发布记录查询、切流审批等功能

// @contact.name API Support
// @contact.email support@example.com

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

const (
	appVersion = "1.0.0"
	appName    = "bluegreen-cd"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "deploy":
		runDeploy(os.Args[2:])
	case "resume":
		runResume(os.Args[2:])
	case "token":
		runToken(os.Args[2:])
	case "version", "-version", "--version":
		fmt.Printf("%s version %s\n", appName, appVersion)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("使用方式:")
	fmt.Println("  bluegreen-cd serve   [-config=configs/config.yaml]                    启动API服务")
	fmt.Println("  bluegreen-cd deploy  -kind=static -env=prod -artifact-version=v1.2.3  执行一次蓝绿发布")
	fmt.Println("  bluegreen-cd resume  -attempt-id=xxx                                  恢复一次中断的发布")
	fmt.Println("  bluegreen-cd token   -operator=alice [-role=approver]                 签发审批Token")
	fmt.Println("  bluegreen-cd version                                                  显示版本信息")
}

// bootstrap 加载配置, 初始化日志与数据库, 返回配置与清理函数
func bootstrap(configPath string) (*config.Config, func()) {
	cfg, err := config.Load(resolveConfigPath(configPath))
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		fmt.Println("\n配置文件优先级: 命令行参数 > 环境变量 CONFIG_FILE > configs/config.yaml")
		os.Exit(1)
	}

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	if err := database.Init(&cfg.Database); err != nil {
		logger.Fatal("初始化数据库失败", zap.Error(err))
	}

	// 表结构迁移
	if err := database.GetDB().AutoMigrate(
		&model.DeploymentTarget{},
		&model.Slot{},
		&model.DeploymentAttempt{},
		&model.ApprovalRequest{},
		&model.TargetLease{},
	); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 注入数据库连接到配置
	cfg.DB = database.GetDB()

	cleanup := func() {
		_ = database.Close()
		_ = logger.Close()
	}
	return cfg, cleanup
}

// runServe 启动API服务与后台清理调度器
func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "配置文件路径")
	_ = fs.Parse(args)

	cfg, cleanup := bootstrap(*configPath)
	defer cleanup()

	logger.Info(fmt.Sprintf("服务 %s 启动中...", appName), zap.String("version", appVersion))
	logger.Info(fmt.Sprintf("数据库连接成功 %s:%v", cfg.Database.Host, cfg.Database.Port),
		zap.String("database", cfg.Database.Database))

	// 初始化并启动定时任务调度器
	taskScheduler := scheduler.NewScheduler(database.GetDB(), logger.Log, cfg)
	if err := taskScheduler.Start(cfg); err != nil {
		logger.Warn("定时任务调度器启动失败", zap.Error(err))
	}

	// 设置路由
	r := router.Setup(cfg)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		logger.Info(fmt.Sprintf("%s 服务启动成功", cfg.Server.Name),
			zap.String("address", addr),
			zap.String("mode", cfg.Server.Mode),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("服务器启动失败", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("服务正在关闭...")

	taskScheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	logger.Info("服务已关闭")
}

// runDeploy 执行一次蓝绿发布, 同步阻塞到终态, 进程退出码反映发布结果
func runDeploy(args []string) {
	fs := flag.NewFlagSet("deploy", flag.ExitOnError)
	configPath := fs.String("config", "", "配置文件路径")
	kind := fs.String("kind", "", "目标类型: static/workload/mock")
	env := fs.String("env", "", "环境: dev/test/staging/prod")
	artifactVersion := fs.String("artifact-version", "", "制品版本")
	artifactPath := fs.String("artifact-path", "", "静态制品目录(static目标)")
	valuesFile := fs.String("values-file", "", "helm values文件(workload目标)")
	_ = fs.Parse(args)

	if *kind == "" || *env == "" || *artifactVersion == "" {
		fmt.Println("缺少必填参数: -kind -env -artifact-version")
		fs.Usage()
		os.Exit(1)
	}

	cfg, cleanup := bootstrap(*configPath)
	defer cleanup()

	values, err := loadValuesFile(*valuesFile)
	if err != nil {
		logger.Fatal("解析values文件失败", zap.Error(err))
	}

	svc := service.NewDeployService(database.GetDB(), cfg)
	result, err := svc.Deploy(signalContext(), &service.DeployRequest{
		Kind:            *kind,
		Environment:     *env,
		ArtifactVersion: *artifactVersion,
		ArtifactPath:    *artifactPath,
		Values:          values,
	})
	if err != nil {
		logger.Error("发布失败", zap.Error(err))
		cleanup()
		os.Exit(1)
	}

	printResult(result)
	cleanup()
	os.Exit(result.ExitCode)
}

// runResume 恢复一次未到终态的发布
func runResume(args []string) {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	configPath := fs.String("config", "", "配置文件路径")
	attemptID := fs.String("attempt-id", "", "发布编号")
	artifactPath := fs.String("artifact-path", "", "静态制品目录(static目标)")
	valuesFile := fs.String("values-file", "", "helm values文件(workload目标)")
	_ = fs.Parse(args)

	if *attemptID == "" {
		fmt.Println("缺少必填参数: -attempt-id")
		fs.Usage()
		os.Exit(1)
	}

	cfg, cleanup := bootstrap(*configPath)
	defer cleanup()

	values, err := loadValuesFile(*valuesFile)
	if err != nil {
		logger.Fatal("解析values文件失败", zap.Error(err))
	}

	svc := service.NewDeployService(database.GetDB(), cfg)
	result, err := svc.Resume(signalContext(), *attemptID, orchestrator.RunOptions{
		ArtifactPath: *artifactPath,
		Values:       values,
	})
	if err != nil {
		logger.Error("恢复发布失败", zap.Error(err))
		cleanup()
		os.Exit(1)
	}

	printResult(result)
	cleanup()
	os.Exit(result.ExitCode)
}

// runToken 签发审批API使用的JWT
func runToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", "", "配置文件路径")
	operator := fs.String("operator", "", "操作员标识")
	role := fs.String("role", "approver", "角色: approver/viewer")
	_ = fs.Parse(args)

	if *operator == "" {
		fmt.Println("缺少必填参数: -operator")
		fs.Usage()
		os.Exit(1)
	}

	// Token签发只依赖配置中的JWT密钥, 不需要数据库
	if _, err := config.Load(resolveConfigPath(*configPath)); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	access, err := jwt.GenerateAccessToken(*operator, *role)
	if err != nil {
		fmt.Printf("签发Token失败: %v\n", err)
		os.Exit(1)
	}
	refresh, err := jwt.GenerateRefreshToken(*operator, *role)
	if err != nil {
		fmt.Printf("签发Token失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("access_token:  %s\n", access)
	fmt.Printf("refresh_token: %s\n", refresh)
}

// signalContext 返回随SIGINT/SIGTERM取消的context
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Warn("收到退出信号, 正在中止发布...")
		cancel()
	}()
	return ctx
}

func loadValuesFile(path string) (map[string]interface{}, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	values := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	return values, nil
}

func printResult(result *service.DeployResult) {
	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
}

// resolveConfigPath 获取配置文件路径
// 优先级: 命令行参数 > 环境变量 > 默认路径
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envConfig := os.Getenv("CONFIG_FILE"); envConfig != "" {
		return envConfig
	}
	return "configs/config.yaml"
}
