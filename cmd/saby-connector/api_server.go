package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/crm-integrations/saby-connector/internal/config"
	"github.com/crm-integrations/saby-connector/internal/controller/api"
	"github.com/crm-integrations/saby-connector/internal/dealevents"
	"github.com/crm-integrations/saby-connector/internal/middlewares"
	"github.com/crm-integrations/saby-connector/internal/platform/logger"
	"github.com/crm-integrations/saby-connector/internal/platform/queue"
	"github.com/crm-integrations/saby-connector/internal/platform/utils"
	"github.com/crm-integrations/saby-connector/internal/saby"

	"github.com/gorilla/mux"
)

func startApiServer(listenAddr string) {

	logger.InitLogger()

	logger.Log.Info("Starting Saby-Connector service")

	cfg := config.GetConfig()
	logger.Log.Info("Saby-Connector configuration:\n", cfg)

	if cfg.SabyAppClientId == "" || cfg.SabyAppSecret == "" || cfg.SabySecretKey == "" {
		logger.Log.Fatal("Saby CRM credentials are not configured")
	}

	tokenManager := saby.NewTokenManager(cfg)
	rpcClient := saby.NewRpcClient(cfg, tokenManager)
	crmClient := saby.NewClient(cfg, rpcClient)

	dealEventPublisher := buildDealEventPublisher(cfg)

	apiMux := mux.NewRouter()
	apiMux.Use(middlewares.RequestID)

	monitoringServer := api.NewMonitoringServer(crmClient, apiMux, cfg)
	monitoringServer.Routes()

	dealServer := api.NewDealServer(crmClient, dealEventPublisher, apiMux, cfg.UrlBasePath, cfg)
	dealServer.Routes()

	lookupServer := api.NewLookupServer(crmClient, apiMux, cfg.UrlBasePath, cfg)
	lookupServer.Routes()

	webhookReceiver := api.NewWebhookReceiver(apiMux, cfg.UrlBasePath, cfg)
	webhookReceiver.Routes()

	apiSrv := utils.StartHTTPServer(listenAddr, "api", apiMux)

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-signalChan
	logger.Log.Info("Received signal to shutdown: ", sig)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HttpShutdownTimeout)
	defer cancel()

	utils.ShutdownHTTPServer(ctx, "api", apiSrv)

	tokenManager.Invalidate(ctx)

	logger.Log.Info("Saby-Connector shutting down")
}

func buildDealEventPublisher(cfg *config.Config) *dealevents.Publisher {

	if len(cfg.KafkaBrokers) == 0 {
		logger.Log.Info("No Kafka brokers configured, deal events disabled")
		return nil
	}

	var saslConfig *queue.SaslConfig
	if cfg.KafkaUsername != "" {
		saslConfig = &queue.SaslConfig{
			SaslMechanism: cfg.KafkaSASLMechanism,
			SaslUsername:  cfg.KafkaUsername,
			SaslPassword:  cfg.KafkaPassword,
			KafkaCA:       cfg.KafkaCA,
		}
	}

	writer := queue.StartProducer(&queue.ProducerConfig{
		Brokers:    cfg.KafkaBrokers,
		SaslConfig: saslConfig,
		Topic:      cfg.KafkaDealEventsTopic,
		BatchSize:  cfg.KafkaDealEventsBatchSize,
		BatchBytes: cfg.KafkaDealEventsBatchBytes,
	})

	return dealevents.NewPublisher(writer)
}
