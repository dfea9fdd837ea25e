// Package di wires the process together from a config.Config and owns the lifecycle of
// everything it builds.
package di

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"carelog/internal/auth"
	"carelog/internal/blob"
	blobmemory "carelog/internal/blob/memory"
	blobs3 "carelog/internal/blob/s3"
	"carelog/internal/care/controller"
	caremodel "carelog/internal/care/model"
	carerepo "carelog/internal/care/repository"
	"carelog/internal/config"
	docstorehttp "carelog/internal/docstore/adapter/http"
	"carelog/internal/docstore/adapter/feed"
	docmemory "carelog/internal/docstore/adapter/persistence/memory"
	docmongo "carelog/internal/docstore/adapter/persistence/mongodb"
	"carelog/internal/docstore/domain/repository"
	"carelog/internal/docstore/gateway"
	"carelog/internal/shared/errors"
	"carelog/internal/shared/eventbus"
	"carelog/internal/shared/logger"
	"carelog/internal/shared/mainloop"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type closer struct {
	name string
	fn   func(context.Context) error
}

// Container holds the built components. Fields are set once by NewContainer.
type Container struct {
	mu       sync.RWMutex
	services map[reflect.Type]interface{}
	closers  []closer
	closed   bool

	Config   *config.Config
	Logger   logger.Logger
	Bus      eventbus.EventBusInterface
	Registry *prometheus.Registry

	MongoClient *mongo.Client
	Redis       *redis.Client

	Backend repository.Backend
	Feed    repository.ChangeFeed
	Gateway *gateway.Gateway
	Blobs   blob.Store
	Policy  *docstorehttp.Policy

	Users    *carerepo.UserRepository
	Kids     *carerepo.KidRepository
	Routines *carerepo.RoutineRepository
	Medical  *carerepo.MedicalRepository

	AuthModule *auth.AuthModule

	Loop     *mainloop.Loop
	Session  *controller.SessionController
	KidsView *controller.ListController[caremodel.Kid]
}

// NewContainer connects to the configured backends and builds every component. On error
// whatever was already opened is closed again.
func NewContainer(ctx context.Context, cfg *config.Config, log logger.Logger) (c *Container, err error) {
	if log == nil {
		log = logger.NewLoggerWithConfig(cfg.Log.Level, cfg.Log.Format)
	}
	built := &Container{
		services: make(map[reflect.Type]interface{}),
		Config:   cfg,
		Logger:   log,
		Registry: prometheus.NewRegistry(),
	}
	c = built
	defer func() {
		if err != nil {
			if cerr := built.Close(); cerr != nil {
				log.Warnf("Cleanup after failed start: %v", cerr)
			}
			c = nil
		}
	}()

	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.Bus = eventbus.NewEventBus(log)

	if cfg.UsesMongo() {
		if err = c.connectMongo(ctx); err != nil {
			return nil, err
		}
	}
	if err = c.buildDocstore(ctx); err != nil {
		return nil, err
	}
	if err = c.buildBlobs(ctx); err != nil {
		return nil, err
	}
	if c.Policy, err = docstorehttp.NewPolicy(cfg.Policy.Rule); err != nil {
		return nil, err
	}

	c.Users = carerepo.NewUserRepository(c.Gateway)
	c.Kids = carerepo.NewKidRepository(c.Gateway, c.Blobs, log)
	c.Routines = carerepo.NewRoutineRepository(c.Gateway)
	c.Medical = carerepo.NewMedicalRepository(c.Gateway)

	var database *mongo.Database
	if c.MongoClient != nil {
		database = c.MongoClient.Database(cfg.Mongo.Database)
	}
	c.AuthModule, err = auth.NewAuthModule(ctx, &cfg.Auth, auth.Options{Database: database, Bus: c.Bus, Log: log})
	if err != nil {
		return nil, err
	}

	c.Loop = mainloop.New(log)
	c.onClose("mainloop", func(context.Context) error { c.Loop.Stop(); return nil })
	c.KidsView = controller.NewKidsController(c.Loop, c.Kids, log)
	c.Session = controller.NewSessionController(c.Loop, c.AuthModule.Provider(), log, c.KidsView)
	c.onClose("session", func(context.Context) error { c.Session.Close(); return nil })

	for _, svc := range []interface{}{c.Gateway, c.Kids, c.Routines, c.Medical, c.Users, c.AuthModule, c.Policy, c.Session} {
		if err = c.Register(svc); err != nil {
			return nil, err
		}
	}
	log.Info("Container initialized")
	return c, nil
}

func (c *Container) connectMongo(ctx context.Context) error {
	cfg := c.Config.Mongo
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return errors.NewTransportError("failed to connect to MongoDB", err)
	}
	c.onClose("mongodb", client.Disconnect)
	if err := client.Ping(ctx, nil); err != nil {
		return errors.NewTransportError("failed to ping MongoDB", err)
	}
	c.MongoClient = client
	c.Logger.Info("MongoDB connection established")
	return nil
}

func (c *Container) buildDocstore(ctx context.Context) error {
	cfg := c.Config
	switch cfg.Store.Driver {
	case config.DriverMemory:
		c.Backend = docmemory.NewBackend(c.Logger)
	default:
		backend, err := docmongo.Open(ctx, c.MongoClient.Database(cfg.Mongo.Database), cfg.Mongo.Collection, c.Logger)
		if err != nil {
			return err
		}
		c.Backend = backend
	}
	c.onClose("backend", c.Backend.Close)

	switch cfg.Feed.Driver {
	case config.DriverRedis:
		c.Redis = config.NewRedisClient(cfg.Redis)
		c.onClose("redis", func(context.Context) error { return c.Redis.Close() })
		if err := c.Redis.Ping(ctx).Err(); err != nil {
			return errors.NewTransportError("failed to ping Redis", err)
		}
		c.Feed = feed.NewRedisFeed(c.Redis, cfg.Feed.ChannelPrefix, c.Logger)
	default:
		c.Feed = feed.NewLocalFeed(c.Bus, c.Logger)
	}
	c.onClose("feed", func(context.Context) error { return c.Feed.Close() })

	c.Gateway = gateway.New(c.Backend, c.Feed, gateway.Config{
		RetryDelay:     cfg.Store.RetryDelay,
		MaxRetryDelay:  cfg.Store.MaxRetryDelay,
		ResyncInterval: cfg.Store.ResyncInterval,
	}, gateway.NewMetrics(c.Registry), c.Logger)
	return nil
}

func (c *Container) buildBlobs(ctx context.Context) error {
	cfg := c.Config.Blob
	if cfg.Driver != config.DriverS3 {
		c.Blobs = blobmemory.New(cfg.Bucket)
		return nil
	}
	store, err := blobs3.New(ctx, blobs3.Config{
		Bucket:          cfg.Bucket,
		Region:          cfg.Region,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		PathStyle:       cfg.PathStyle,
	}, c.Logger)
	if err != nil {
		return err
	}
	c.Blobs = store
	return nil
}

func (c *Container) onClose(name string, fn func(context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closers = append(c.closers, closer{name: name, fn: fn})
}

// Register records a service under its type so GetService can find it.
func (c *Container) Register(service interface{}) error {
	if service == nil {
		return fmt.Errorf("cannot register a nil service")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[reflect.TypeOf(service)] = service
	return nil
}

// Resolve looks a service up by its exact type.
func (c *Container) Resolve(serviceType reflect.Type) (interface{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if service, ok := c.services[serviceType]; ok {
		return service, nil
	}
	return nil, fmt.Errorf("service of type %v not registered", serviceType)
}

// GetService is the typed form of Resolve, e.g. GetService[*gateway.Gateway](c).
func GetService[T any](c *Container) (T, error) {
	var zero T
	service, err := c.Resolve(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return zero, err
	}
	typed, ok := service.(T)
	if !ok {
		return zero, fmt.Errorf("service is not of expected type %T", zero)
	}
	return typed, nil
}

// HealthCheck pings the external dependencies in use.
func (c *Container) HealthCheck(ctx context.Context) error {
	if c.MongoClient != nil {
		if err := c.MongoClient.Ping(ctx, nil); err != nil {
			return errors.NewTransportError("MongoDB health check failed", err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Ping(ctx).Err(); err != nil {
			return errors.NewTransportError("Redis health check failed", err)
		}
	}
	return nil
}

// Close releases everything in reverse order of construction. Safe to call twice.
func (c *Container) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	closers := c.closers
	c.closers = nil
	c.services = make(map[reflect.Type]interface{})
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var failed []string
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].fn(ctx); err != nil {
			c.Logger.Warnf("Failed to close %s: %v", closers[i].name, err)
			failed = append(failed, closers[i].name)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("cleanup errors in %v", failed)
	}
	c.Logger.Info("Container closed")
	return nil
}
