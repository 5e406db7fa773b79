package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/gin-gonic/gin"

	"assistant-web/handler"
	"assistant-web/internal/branding"
	"assistant-web/internal/integrations/functions"
	"assistant-web/internal/integrations/gotrue"
	"assistant-web/internal/integrations/paramstore"
	"assistant-web/internal/repository"
	"assistant-web/internal/usecase"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// ---- Configuration (read only here) ----
	projectURL := mustEnv("SUPABASE_URL")
	publicKey := os.Getenv("SUPABASE_ANON_KEY")
	paramPrefix := os.Getenv("PARAM_PREFIX")
	sessionTable := os.Getenv("SESSION_TABLE")
	sessionDBDriver := envOr("SESSION_DB_DRIVER", "sqlite")
	sessionDBDSN := os.Getenv("SESSION_DB_DSN")
	assistantFunction := envOr("ASSISTANT_FUNCTION", functions.DefaultAssistantFunction)
	assistantUserID := envOr("ASSISTANT_USER_ID", "demo-user")
	assistantTimeout := envInt("ASSISTANT_TIMEOUT_SECONDS", 30)
	listenAddr := envOr("LISTEN_ADDR", ":8080")
	brandingFile := os.Getenv("BRANDING_FILE")
	secureCookies := envBool("SECURE_COOKIES", false)
	idleMinutes := envInt("SCREEN_IDLE_MINUTES", 30)
	lambdaMode := os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""

	if publicKey == "" && paramPrefix == "" {
		slog.Error("either SUPABASE_ANON_KEY or PARAM_PREFIX must be set")
		os.Exit(1)
	}

	// ---- AWS SDK config ----
	var awsCfg *aws.Config
	loadAWS := func() aws.Config {
		if awsCfg == nil {
			cfg, err := config.LoadDefaultConfig(ctx)
			if err != nil {
				slog.Error("failed to load AWS config", "err", err)
				os.Exit(1)
			}
			awsCfg = &cfg
		}
		return *awsCfg
	}

	if publicKey == "" {
		ssmClient, err := paramstore.New(awsssm.NewFromConfig(loadAWS()))
		if err != nil {
			slog.Error("failed to create SSM client", "err", err)
			os.Exit(1)
		}
		publicKey, err = ssmClient.LookupSecret(ctx, strings.TrimRight(paramPrefix, "/")+"/supabase-anon-key", "key")
		if err != nil {
			slog.Error("failed to read public key", "err", err)
			os.Exit(1)
		}
	}

	// ---- Session storage ----
	var store gotrue.SessionStore
	switch {
	case sessionTable != "":
		dynamoStore, err := repository.New(awsdynamodb.NewFromConfig(loadAWS()), sessionTable)
		if err != nil {
			slog.Error("failed to create session store", "err", err)
			os.Exit(1)
		}
		store = dynamoStore
	case sessionDBDSN != "":
		sqlStore, err := repository.OpenSQLStore(sessionDBDriver, sessionDBDSN)
		if err != nil {
			slog.Error("failed to open session database", "driver", sessionDBDriver, "err", err)
			os.Exit(1)
		}
		store = sqlStore
	default:
		if lambdaMode {
			slog.Warn("SESSION_TABLE is not set, sessions will not survive across instances")
		}
		store = repository.NewMemoryStore()
	}

	// ---- Clients ----
	authClient, err := gotrue.NewClient(projectURL, publicKey)
	if err != nil {
		slog.Error("failed to create auth client", "err", err)
		os.Exit(1)
	}
	functionsClient, err := functions.NewClient(projectURL, publicKey, functions.WithLogger(logger))
	if err != nil {
		slog.Error("failed to create functions client", "err", err)
		os.Exit(1)
	}

	brand, err := branding.Load(brandingFile)
	if err != nil {
		slog.Error("failed to load branding", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	gin.SetMode(gin.ReleaseMode)
	h, err := handler.NewHandler(
		func(browserID string) (handler.BrowserAuth, error) {
			return gotrue.NewAuth(authClient, store, browserID, gotrue.WithLogger(logger))
		},
		func(auth handler.BrowserAuth) usecase.AssistantCaller {
			return functionsClient.Bind(assistantFunction, auth)
		},
		handler.WithBranding(brand),
		handler.WithLogger(logger),
		handler.WithIdleTimeout(time.Duration(idleMinutes)*time.Minute),
		handler.WithSecureCookies(secureCookies),
		handler.WithSyncDispatch(lambdaMode),
		handler.WithDispatcherOptions(
			usecase.WithAssistantUserID(assistantUserID),
			usecase.WithCallTimeout(time.Duration(assistantTimeout)*time.Second),
		),
	)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go h.RunJanitor(runCtx, time.Minute)
	if brandingFile != "" && !lambdaMode {
		go func() {
			if err := branding.Watch(runCtx, brandingFile, logger, h.SetBranding); err != nil {
				slog.Warn("branding hot reload disabled", "err", err)
			}
		}()
	}

	if lambdaMode {
		lambda.Start(h.HandleLambda)
		return
	}

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "err", err)
		}
	}()

	slog.Info("listening", "addr", listenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
