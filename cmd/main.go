package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/gorilla/mux"

	"genie-bot/handler"
	"genie-bot/internal/bot"
	"genie-bot/internal/export"
	"genie-bot/internal/integrations/botframework"
	"genie-bot/internal/integrations/genie"
	"genie-bot/internal/integrations/paramstore"
	"genie-bot/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	host := mustEnv("DATABRICKS_HOST")
	spaceID := mustEnv("GENIE_SPACE_ID")
	port := envInt("PORT", 3978)
	appID := os.Getenv("APP_ID")
	appPassword := os.Getenv("APP_PW")
	tenantID := os.Getenv("APP_TENANTID")
	baseURL := os.Getenv("APP_BASE_URL")
	paramPrefix := strings.TrimRight(os.Getenv("PARAM_PREFIX"), "/")

	// ---- Secrets: SSM when a prefix is configured, environment otherwise ----
	var genieOpts []genie.Option
	var secrets paramstore.Getter
	tokenParam := ""
	if paramPrefix != "" {
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			slog.Error("failed to load AWS config", "err", err)
			os.Exit(1)
		}
		ps, err := paramstore.New(awsssm.NewFromConfig(cfg))
		if err != nil {
			slog.Error("failed to create SSM client", "err", err)
			os.Exit(1)
		}
		secrets = ps
		tokenParam = paramPrefix + "/databricks-token"
		if appID != "" && appPassword == "" {
			appPassword, err = ps.GetParameter(ctx, paramPrefix+"/bot-app-password")
			if err != nil {
				slog.Error("failed to load bot app password", "err", err)
				os.Exit(1)
			}
		}
	} else {
		genieOpts = append(genieOpts, genie.WithStaticToken(mustEnv("DATABRICKS_TOKEN")))
	}

	// ---- Clients ----
	genieClient, err := genie.NewClient(host, secrets, tokenParam, genieOpts...)
	if err != nil {
		slog.Error("failed to create genie client", "err", err)
		os.Exit(1)
	}
	connector, err := botframework.NewClient(botframework.Credentials{
		AppID:       appID,
		AppPassword: appPassword,
		TenantID:    tenantID,
	})
	if err != nil {
		slog.Error("failed to create connector client", "err", err)
		os.Exit(1)
	}

	// ---- Core wiring ----
	// Link mode serves single-use downloads; consent mode needs entries to
	// survive from offer to upload, so TTL alone governs removal there.
	policy := export.EvictOnExpiry
	if baseURL != "" {
		policy = export.EvictOnRead
	}
	cache := export.NewCache(policy)

	askService, err := usecase.NewAskService(genieClient)
	if err != nil {
		slog.Error("failed to create ask service", "err", err)
		os.Exit(1)
	}
	handshake, err := bot.NewHandshake(cache)
	if err != nil {
		slog.Error("failed to create handshake", "err", err)
		os.Exit(1)
	}
	b, err := bot.NewBot(askService, cache, handshake, bot.Config{
		SpaceID:         spaceID,
		DownloadBaseURL: baseURL,
	})
	if err != nil {
		slog.Error("failed to create bot", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(b, cache, connector)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	r := mux.NewRouter()
	h.Routes(r)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("listening", "port", port)
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("missing required environment variable", "key", key)
		os.Exit(1)
	}
	return v
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Error("invalid integer environment variable", "key", key, "value", v)
		os.Exit(1)
	}
	return n
}
