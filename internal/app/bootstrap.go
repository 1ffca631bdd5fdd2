package app

import (
	"log/slog"

	"swap_calc/internal/domain"
	"swap_calc/internal/infra"
	"swap_calc/internal/infra/orderapi"
	"swap_calc/internal/infra/storage"
	"swap_calc/internal/service"

	"github.com/benbjohnson/clock"
)

// ConfigPath is where the configuration is read from.
const ConfigPath = "configs/config.yaml"

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config  *infra.Config
	Logger  *slog.Logger
	Metrics *infra.Metrics
	Journal *storage.Journal
	API     *orderapi.Client
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{Metrics: infra.GlobalMetrics}
}

// Initialize loads the configuration and opens every shared resource.
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping swap calculator...")

	// 1. Load Config
	cfg, err := infra.LoadConfig(ConfigPath)
	if err != nil {
		return err // Let main handle the error
	}
	return b.InitializeWith(cfg)
}

// InitializeWith is Initialize for an already loaded configuration.
func (b *Bootstrap) InitializeWith(cfg *infra.Config) error {
	b.Config = cfg

	// 2. Setup Logger
	b.Logger = infra.NewLogger(cfg)
	slog.SetDefault(b.Logger)

	// 3. Submission journal
	journal, err := storage.NewJournal(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Journal = journal
	slog.Info("✅ Journal opened", slog.String("path", cfg.Storage.Path))

	// 4. Order service client
	b.API = orderapi.NewClient(cfg, b.Metrics)
	slog.Info("✅ Order API client ready", slog.String("base_url", cfg.API.BaseURL))

	return nil
}

// NewController assembles a session and its controller. host may be nil.
func (b *Bootstrap) NewController(host domain.HostBridge) *service.ConversionController {
	session := service.NewOrderSession(service.SessionDeps{
		API:               b.API,
		Journal:           b.Journal,
		Metrics:           b.Metrics,
		Logger:            b.Logger,
		MaxLimitRefetches: b.Config.Session.MaxLimitRefetches,
	})

	return service.NewConversionController(service.ControllerDeps{
		Session:    session,
		Rate:       b.Config.ExchangeRate(),
		Host:       host,
		Clock:      clock.New(),
		CloseDelay: b.Config.CloseDelay(),
		Metrics:    b.Metrics,
		Logger:     b.Logger,
	})
}

// Close releases resources opened by Initialize.
func (b *Bootstrap) Close() {
	if b.Journal != nil {
		if err := b.Journal.Close(); err != nil {
			slog.Warn("Failed to close journal", slog.Any("error", err))
		}
	}
}
