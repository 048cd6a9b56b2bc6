// Package cmd wires every subsystem together and exposes the cobra
// command tree. initApp follows the teacher's cmd/root.go staging: open
// storage, build the domain-facing services on top of it, then the
// background loops that depend on those services.
package cmd

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wa-platform/core/core/config"
	"github.com/wa-platform/core/core/database"
	"github.com/wa-platform/core/dispatch"
	"github.com/wa-platform/core/domain/flow"
	"github.com/wa-platform/core/infrastructure/valkey"
	"github.com/wa-platform/core/ingest"
	"github.com/wa-platform/core/integrations"
	"github.com/wa-platform/core/interpreter"
	"github.com/wa-platform/core/messaging"
	"github.com/wa-platform/core/pkg/crypto"
	"github.com/wa-platform/core/pkg/utils"
	"github.com/wa-platform/core/pkg/workerpool"
	"github.com/wa-platform/core/provider/cloudapi"
	"github.com/wa-platform/core/realtime"
	"github.com/wa-platform/core/repository"
	"github.com/wa-platform/core/scheduler"
	"github.com/wa-platform/core/storage"
	"github.com/wa-platform/core/ui/rest"

	"gorm.io/gorm"
)

var (
	cfg *config.Config
	db  *gorm.DB

	vkClient *valkey.Client
	serverID string

	tenants       *storage.TenantRepository
	contacts      *storage.ContactRepository
	conversations *storage.ConversationRepository
	messages      *storage.MessageRepository
	flows         *storage.FlowRepository
	broadcasts    *storage.BroadcastRepository
	notifications *storage.NotificationRepository

	sessionStore flow.Store

	sender     *messaging.Sender
	engine     *interpreter.Engine
	ingester   *ingest.Ingester
	dispatcher *dispatch.Dispatcher
	sched      *scheduler.Scheduler
	pool       *workerpool.Pool
	hub        *realtime.Hub
	handlers   *rest.Handlers
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "wa-platform",
	Short: "Multi-tenant WhatsApp Business messaging platform",
}

func init() {
	_ = godotenv.Load()
	time.Local = time.UTC
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	cobra.OnInitialize(initApp)
}

// initApp builds every dependency in order: configuration, storage, the
// interpreter's integration surface, the messaging/ingest/dispatch
// services built on top of it, the background scheduler, and the
// realtime hub. cmd/rest.go reads the resulting package vars to build
// the REST handlers and start serving.
func initApp() {
	var err error
	cfg, err = config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("[STARTUP] failed to load configuration")
	}

	if cfg.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}

	if cfg.Security.EncryptionKey != "" {
		if err := crypto.SetEncryptionKey(cfg.Security.EncryptionKey); err != nil {
			logrus.WithError(err).Fatal("[STARTUP] failed to set tenant secret encryption key")
		}
	} else {
		logrus.Warn("[STARTUP] ENCRYPTION_KEY not set, tenant secrets will be stored in plain text")
	}

	serverID = utils.GetPersistentServerID(cfg.App.ServerID, cfg.Paths.Storages)

	if err := os.MkdirAll(cfg.Paths.Storages, 0o755); err != nil {
		logrus.WithError(err).Fatal("[STARTUP] failed to create storage directory")
	}

	ctx := context.Background()

	db, err = database.NewDatabase(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("[STARTUP] failed to open database")
	}

	tenants = storage.NewTenantRepository(db)
	contacts = storage.NewContactRepository(db)
	conversations = storage.NewConversationRepository(db)
	messages = storage.NewMessageRepository(db)
	flows = storage.NewFlowRepository(db)
	broadcasts = storage.NewBroadcastRepository(db)
	notifications = storage.NewNotificationRepository(db)

	type migrator interface {
		Init(ctx context.Context) error
	}
	for _, m := range []migrator{tenants, contacts, conversations, messages, flows, broadcasts, notifications} {
		if err := m.Init(ctx); err != nil {
			logrus.WithError(err).Fatal("[STARTUP] failed to migrate storage")
		}
	}

	if cfg.Database.ValkeyEnabled {
		vkClient, err = valkey.NewClient(valkey.Config{
			Address:        cfg.Database.ValkeyAddress,
			Password:       cfg.Database.ValkeyPassword,
			DB:             cfg.Database.ValkeyDB,
			KeyPrefix:      cfg.Database.ValkeyKeyPrefix,
			ConnectTimeout: 5 * time.Second,
		})
		if err != nil {
			logrus.WithError(err).Warn("[STARTUP] failed to connect to Valkey, falling back to in-memory/single-replica behavior")
			vkClient = nil
		} else {
			logrus.Info("[STARTUP] connected to Valkey")
		}
	}

	if vkClient != nil {
		sessionStore = repository.NewValkeySessionStore(vkClient)
		logrus.Info("[STARTUP] using Valkey for flow session storage")
	} else {
		sessionStore = repository.NewMemoryFlowSessionStore()
		logrus.Info("[STARTUP] using in-memory flow session storage")
	}

	legacyDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Fatal("[STARTUP] failed to obtain sql.DB handle for integrations")
	}

	httpClient := integrations.NewHTTPClient(logrus.WithField("component", "integrations.http"))
	sqlExecutor := integrations.NewSQLExecutor(legacyDB, logrus.WithField("component", "integrations.sql"))
	sheetsClient := integrations.NewSheetsClient(cfg.Integrations.SheetsAccessToken)
	driveClient := integrations.NewDriveClient(cfg.Integrations.DriveAPIKey)
	paymentClient := integrations.NewPaymentClient(decodePaymentGateways(cfg.Integrations.PaymentGatewaysJSON))
	commerceClient := integrations.NewCommerceClient(decodeCommerceStores(cfg.Integrations.CommerceStoresJSON))

	sender = &messaging.Sender{
		Provider:      cloudapi.NewClient(nil),
		Tenants:       tenants,
		Contacts:      contacts,
		Conversations: conversations,
		Messages:      messages,
		AppID:         cfg.CloudAPI.AppID,
	}

	hub = realtime.NewHub(vkClient, serverID)
	go hub.Run(ctx)

	engine = &interpreter.Engine{
		Flows:         flows,
		Sessions:      sessionStore,
		Contacts:      contacts,
		Conversations: conversations,
		Sender:        sender,

		HTTP:     httpClient,
		SQL:      sqlExecutor,
		Sheets:   sheetsClient,
		Drive:    driveClient,
		Payments: paymentClient,
		Commerce: commerceClient,

		Publisher: hub,
	}

	ingester = &ingest.Ingester{
		AppSecret: cfg.CloudAPI.AppSecret,

		Tenants:       tenants,
		Contacts:      contacts,
		Conversations: conversations,
		Messages:      messages,
		Broadcasts:    broadcasts,

		Engine:    engine,
		Publisher: hub,
	}

	dispatcher = &dispatch.Dispatcher{
		Broadcasts: broadcasts,
		Sender:     sender,
	}

	pool = workerpool.New(20, 1000)
	pool.Start(ctx)

	sched = &scheduler.Scheduler{
		Broadcasts:    broadcasts,
		Notifications: notifications,
		Dispatch:      dispatcher,
		Sender:        sender,
		Valkey:        vkClient,
	}
	sched.Start(ctx)

	handlers = &rest.Handlers{
		JWTSecret: []byte(cfg.Security.JWTSecret),

		Tenants:       tenants,
		Contacts:      contacts,
		Conversations: conversations,
		Messages:      messages,
		Flows:         flows,
		Broadcasts:    broadcasts,

		Ingester:   ingester,
		Dispatcher: dispatcher,
		Sender:     sender,
		Pool:       pool,
		Hub:        hub,
	}
}

func decodePaymentGateways(raw string) map[string]integrations.PaymentGateway {
	gateways := map[string]integrations.PaymentGateway{}
	if raw == "" {
		return gateways
	}
	if err := json.Unmarshal([]byte(raw), &gateways); err != nil {
		logrus.WithError(err).Warn("[STARTUP] failed to parse INTEGRATIONS_PAYMENT_GATEWAYS_JSON, ignoring")
		return map[string]integrations.PaymentGateway{}
	}
	return gateways
}

func decodeCommerceStores(raw string) map[string]integrations.CommerceStore {
	stores := map[string]integrations.CommerceStore{}
	if raw == "" {
		return stores
	}
	if err := json.Unmarshal([]byte(raw), &stores); err != nil {
		logrus.WithError(err).Warn("[STARTUP] failed to parse INTEGRATIONS_COMMERCE_STORES_JSON, ignoring")
		return map[string]integrations.CommerceStore{}
	}
	return stores
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// StopApp performs a clean shutdown of background subsystems.
func StopApp() {
	logrus.Info("[APP] stopping application...")

	if pool != nil {
		pool.Stop()
	}
	if vkClient != nil {
		vkClient.Close()
	}

	logrus.Info("[APP] application stopped cleanly")
}
