package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mymmrac/telego"

	"tg-bale-bridge/internal/config"
	"tg-bale-bridge/internal/logger"
)

// WebhookServer represents a webhook HTTP server
type WebhookServer struct {
	server   *http.Server
	certFile string
	keyFile  string
}

// Start starts the webhook server
func (ws *WebhookServer) Start() error {
	logger.Infof("Starting HTTP server on %s", ws.server.Addr)

	if ws.certFile != "" && ws.keyFile != "" {
		logger.Infof("Using TLS with cert: %s, key: %s", ws.certFile, ws.keyFile)
		return ws.server.ListenAndServeTLS(ws.certFile, ws.keyFile)
	}

	logger.Infof("WARNING: Running without TLS. Make sure you have a HTTPS proxy in front of this server")
	return ws.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (ws *WebhookServer) Shutdown(ctx context.Context) error {
	return ws.server.Shutdown(ctx)
}

// SetupWebhook registers the webhook with Telegram and prepares the
// HTTP server that receives updates.
func SetupWebhook(ctx context.Context, bot *telego.Bot, cfg config.WebhookConfig) (<-chan telego.Update, *WebhookServer, error) {
	if cfg.Endpoint == "" {
		return nil, nil, fmt.Errorf("webhook endpoint is required")
	}

	listenPort := cfg.ListenPort
	if listenPort == "" {
		listenPort = "8443"
		logger.Infof("Using default listen port: %s", listenPort)
	}

	if (cfg.CertFile == "" || cfg.KeyFile == "") && !strings.HasPrefix(cfg.Endpoint, "https://") {
		return nil, nil, fmt.Errorf("HTTPS configuration required: set cert_file and key_file in config or use a HTTPS proxy")
	}

	parsedURL, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid webhook endpoint: %w", err)
	}

	webhookPath := parsedURL.Path
	if webhookPath == "" {
		webhookPath = "/webhook"
		logger.Infof("No path specified in webhook endpoint, using default path: %s", webhookPath)
	}

	logger.Infof("Setting webhook to: %s", cfg.Endpoint)
	err = bot.SetWebhook(ctx, &telego.SetWebhookParams{
		URL:            cfg.Endpoint,
		AllowedUpdates: []string{"message", "channel_post"},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set webhook: %w", err)
	}

	webhookInfo, err := bot.GetWebhookInfo(ctx)
	if err != nil {
		logger.Warningf("Failed to get webhook info: %v", err)
	} else {
		logger.Infof("Webhook info: URL=%s, HasCustomCert=%v, PendingUpdateCount=%d",
			webhookInfo.URL, webhookInfo.HasCustomCertificate, webhookInfo.PendingUpdateCount)
		if webhookInfo.LastErrorDate > 0 {
			logger.Warningf("Webhook last error: [%d] %s", webhookInfo.LastErrorDate, webhookInfo.LastErrorMessage)
		}
	}

	mux := http.NewServeMux()
	server := &http.Server{
		Addr:    "0.0.0.0:" + listenPort,
		Handler: mux,
	}

	updates, err := bot.UpdatesViaWebhook(ctx,
		telego.WebhookHTTPServeMux(mux, webhookPath, ""),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get updates channel: %w", err)
	}

	return updates, &WebhookServer{
		server:   server,
		certFile: cfg.CertFile,
		keyFile:  cfg.KeyFile,
	}, nil
}
