package app

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/brandloom/storefront/internal/app/services/brands"
	"github.com/brandloom/storefront/internal/app/services/catalog"
	"github.com/brandloom/storefront/internal/app/services/content"
	"github.com/brandloom/storefront/internal/app/services/fulfillment"
	"github.com/brandloom/storefront/internal/app/services/marketing"
	"github.com/brandloom/storefront/internal/app/services/orders"
	"github.com/brandloom/storefront/internal/app/services/support"
	"github.com/brandloom/storefront/internal/app/services/users"
	"github.com/brandloom/storefront/internal/app/storage"
	"github.com/brandloom/storefront/internal/app/storage/memory"
	"github.com/brandloom/storefront/internal/app/system"
	"github.com/brandloom/storefront/internal/cache"
	"github.com/brandloom/storefront/internal/config"
	"github.com/brandloom/storefront/internal/errors"
	"github.com/brandloom/storefront/internal/logging"
	"github.com/brandloom/storefront/internal/messaging"
	"github.com/brandloom/storefront/internal/notify"
	"github.com/brandloom/storefront/internal/upload"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Users     storage.UserStore
	Brands    storage.BrandStore
	Catalog   storage.CatalogStore
	Orders    storage.OrderStore
	Content   storage.ContentStore
	Support   storage.SupportStore
	Marketing storage.MarketingStore
}

func (s *Stores) defaults() {
	mem := memory.New()
	if s.Users == nil {
		s.Users = mem
	}
	if s.Brands == nil {
		s.Brands = mem
	}
	if s.Catalog == nil {
		s.Catalog = mem
	}
	if s.Orders == nil {
		s.Orders = mem
	}
	if s.Content == nil {
		s.Content = mem
	}
	if s.Support == nil {
		s.Support = mem
	}
	if s.Marketing == nil {
		s.Marketing = mem
	}
}

// Options configure New. Zero values fall back to in-process defaults.
type Options struct {
	Config       *config.Config
	Stores       Stores
	KV           cache.KV
	Integrations Integrations
	// CheckOrigin authorizes WebSocket upgrades; nil allows same-host only.
	CheckOrigin func(r *http.Request) bool
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager   *system.Manager
	scheduler *system.Scheduler
	jobs      map[string]system.JobFunc
	log       *logging.Logger

	Config  *config.Config
	Caches  *cache.Caches
	Objects upload.Store
	Hub     *notify.Hub

	Users       *users.Service
	Brands      *brands.Service
	Catalog     *catalog.Service
	Orders      *orders.Service
	Fulfillment *fulfillment.Service
	Content     *content.Service
	Support     *support.Service
	Marketing   *marketing.Service
	Uploads     *upload.Service
}

// New builds a fully initialised application.
func New(opts Options, log *logging.Logger) (*Application, error) {
	if log == nil {
		log = logging.NewDefault("app")
	}
	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.FromEnv(); err != nil {
			return nil, err
		}
	}
	opts.Stores.defaults()
	stores := opts.Stores

	kv := opts.KV
	if kv == nil {
		kv = cache.NewLocalKV(cfg.Redis.LocalCapacity)
	}
	caches := cache.NewCaches(kv, cache.TTLs{}, log.Named("cache"))

	in := opts.Integrations
	in.defaults(cfg, log)

	hub := notify.NewHub(opts.CheckOrigin, log.Named("notify"))

	userService := users.New(stores.Users, caches.User, cfg.AdminEmails(), log.Named("users"))
	brandService := brands.New(stores.Brands, stores.Users, caches, log.Named("brands"))
	catalogService := catalog.New(stores.Catalog, stores.Brands, caches, cfg.Shop.Currency, log.Named("catalog"))
	orderService := orders.New(orders.Deps{
		Orders:   stores.Orders,
		Catalog:  stores.Catalog,
		Brands:   stores.Brands,
		Gateway:  in.Gateway,
		Events:   hub,
		Pixel:    in.Pixel,
		WhatsApp: in.WhatsApp,
		Email:    in.Email,
		Listings: catalogService,
	}, orders.Config{
		ShopName:          cfg.Shop.Name,
		Currency:          cfg.Shop.Currency,
		ShippingFeeMinor:  cfg.Shop.ShippingFeeMinor,
		FreeShippingMinor: cfg.Shop.FreeShippingMinor,
		WhatsAppTemplate:  cfg.WhatsApp.OrderTemplate,
		PlatformPixelID:   cfg.Pixel.PixelID,
		BaseURL:           cfg.BaseURL,
	}, log.Named("orders"))
	fulfillmentService := fulfillment.New(orderService, stores.Orders, in.Shipping, log.Named("fulfillment"))
	contentService := content.New(stores.Content, caches, log.Named("content"))
	supportService := support.New(stores.Support, stores.Catalog, in.Email, cfg.Shop.Name, log.Named("support"))
	marketingService := marketing.New(marketing.Deps{
		Campaigns: stores.Marketing,
		Support:   stores.Support,
		Orders:    stores.Orders,
		Catalog:   stores.Catalog,
		WhatsApp:  in.WhatsApp,
		Email:     in.Email,
		Bulk:      messaging.NewBulk(cfg.Jobs.BulkConcurrency, cfg.Jobs.BulkRatePerSec),
	}, log.Named("marketing"))
	uploadService := upload.New(in.Objects, cfg.Upload.MaxBytes, log.Named("upload"))

	manager := system.NewManager()
	scheduler := system.NewScheduler(cfg.Jobs.JobTimeout, log.Named("scheduler"))

	jobs := []struct {
		name string
		spec string
		run  system.JobFunc
	}{
		{"tracking-sync", cfg.Jobs.TrackingSync, func(ctx context.Context) error {
			_, err := fulfillmentService.SyncTracking(ctx)
			return err
		}},
		{"campaign-dispatch", cfg.Jobs.CampaignDispatch, func(ctx context.Context) error {
			_, err := marketingService.DispatchDue(ctx)
			return err
		}},
		{"pending-expiry", cfg.Jobs.PendingExpiry, func(ctx context.Context) error {
			_, err := orderService.ExpirePending(ctx, cfg.Jobs.PendingOrderTTL)
			return err
		}},
	}
	registered := make(map[string]system.JobFunc, len(jobs))
	for _, job := range jobs {
		registered[job.name] = job.run
		if job.spec == "" || job.spec == "off" {
			log.WithField("job", job.name).Warn("job disabled")
			continue
		}
		if err := scheduler.Add(job.name, job.spec, job.run); err != nil {
			return nil, err
		}
	}

	services := []system.Service{hub, scheduler}
	if local, ok := kv.(*cache.LocalKV); ok {
		services = append([]system.Service{localKVService{local}}, services...)
	}
	for _, svc := range services {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:     manager,
		scheduler:   scheduler,
		jobs:        registered,
		log:         log,
		Config:      cfg,
		Caches:      caches,
		Objects:     in.Objects,
		Hub:         hub,
		Users:       userService,
		Brands:      brandService,
		Catalog:     catalogService,
		Orders:      orderService,
		Fulfillment: fulfillmentService,
		Content:     contentService,
		Support:     supportService,
		Marketing:   marketingService,
		Uploads:     uploadService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

// Services lists the registered lifecycle services in start order.
func (a *Application) Services() []string {
	return a.manager.Services()
}

// Jobs lists the background job names.
func (a *Application) Jobs() []string {
	names := make([]string, 0, len(a.jobs))
	for name := range a.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunJob runs a background job immediately, outside its schedule.
func (a *Application) RunJob(name string) error {
	job, ok := a.jobs[name]
	if !ok {
		return errors.NotFound("job", name)
	}
	return a.scheduler.RunNow(name, job)
}

// localKVService runs the expiry loop of the in-process cache.
type localKVService struct {
	kv *cache.LocalKV
}

func (s localKVService) Name() string { return "local-cache" }

func (s localKVService) Start(context.Context) error {
	s.kv.Start()
	return nil
}

func (s localKVService) Stop(context.Context) error {
	s.kv.Stop()
	return nil
}
