package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"

	"identrisk/internal/events"
	kafkaevents "identrisk/internal/events/kafka"
	"identrisk/internal/events/memory"
	"identrisk/internal/events/outbox"
	"identrisk/internal/fraud/engine"
	fraudhandler "identrisk/internal/fraud/handler"
	"identrisk/internal/fraud/history"
	fraudmetrics "identrisk/internal/fraud/metrics"
	fraudservice "identrisk/internal/fraud/service"
	fraudstore "identrisk/internal/fraud/store"
	"identrisk/internal/platform/config"
	"identrisk/internal/platform/kafka"
	"identrisk/internal/platform/kafka/consumer"
	httpmetrics "identrisk/internal/platform/metrics"
	"identrisk/internal/platform/objectstore"
	"identrisk/internal/platform/postgres"
	"identrisk/internal/platform/redis"
	"identrisk/internal/verification/extractor"
	"identrisk/internal/verification/extractor/ocr"
	"identrisk/internal/verification/facematch"
	verificationhandler "identrisk/internal/verification/handler"
	"identrisk/internal/verification/images"
	"identrisk/internal/verification/imaging"
	"identrisk/internal/verification/liveness"
	verificationmetrics "identrisk/internal/verification/metrics"
	"identrisk/internal/verification/registry"
	verificationservice "identrisk/internal/verification/service"
	verificationstore "identrisk/internal/verification/store"
	"identrisk/pkg/platform/circuit"
	"identrisk/pkg/platform/httputil"
	"identrisk/pkg/platform/middleware/metadata"
	"identrisk/pkg/platform/middleware/requesttime"
	"identrisk/pkg/platform/pii"
)

// infra holds the external clients. Each is nil when its backend is not
// configured and the matching in-memory implementation is used instead.
type infra struct {
	db       *sql.DB
	pool     *pgxpool.Pool
	redis    *redis.Client
	producer *kgo.Client
	s3       *s3.Client
	log      *slog.Logger
}

func openInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{log: log}
	var err error

	if in.db, err = postgres.Open(ctx, cfg.Database); err != nil {
		return nil, err
	}
	if in.db != nil {
		if err := postgres.Migrate(ctx, in.db); err != nil {
			in.Close()
			return nil, err
		}
		if in.pool, err = postgres.OpenPool(ctx, cfg.Database); err != nil {
			in.Close()
			return nil, err
		}
	}
	if in.redis, err = redis.New(ctx, cfg.Redis); err != nil {
		in.Close()
		return nil, err
	}
	if in.producer, err = kafka.NewProducer(cfg.Kafka); err != nil {
		in.Close()
		return nil, err
	}
	if in.producer != nil {
		err := kafka.EnsureTopics(ctx, in.producer, 3, 1,
			cfg.Kafka.VerificationTopic, cfg.Kafka.FraudTopic, cfg.Kafka.TransactionTopic)
		if err != nil {
			in.Close()
			return nil, err
		}
	}
	if cfg.Storage.Bucket != "" {
		if in.s3, err = objectstore.NewS3Client(ctx, cfg.Storage); err != nil {
			in.Close()
			return nil, err
		}
	}

	log.Info("infrastructure ready",
		"postgres", in.db != nil,
		"redis", in.redis != nil,
		"kafka", in.producer != nil,
		"s3", in.s3 != nil,
	)
	return in, nil
}

func (in *infra) Close() {
	if in.producer != nil {
		in.producer.Close()
	}
	if in.redis != nil {
		if err := in.redis.Close(); err != nil {
			in.log.Warn("redis close failed", "error", err)
		}
	}
	if in.pool != nil {
		in.pool.Close()
	}
	if in.db != nil {
		if err := in.db.Close(); err != nil {
			in.log.Warn("postgres close failed", "error", err)
		}
	}
}

type app struct {
	router  http.Handler
	workers []func(context.Context) error
}

func buildApp(ctx context.Context, cfg config.Config, in *infra, log *slog.Logger) (*app, error) {
	a := &app{}
	hasher := pii.NewHasher([]byte(cfg.SubjectHashKey))
	routes := events.Routes{Verification: cfg.Kafka.VerificationTopic, Fraud: cfg.Kafka.FraudTopic}

	publisher, transactional, err := buildPublisher(cfg, in, routes)
	if err != nil {
		return nil, err
	}
	if transactional && in.producer != nil {
		relay := outbox.NewRelay(in.db, in.producer, log, cfg.Kafka.OutboxPollInterval)
		a.workers = append(a.workers, relay.Run)
	}

	verification, err := buildVerification(cfg, in, log, hasher, publisher, transactional)
	if err != nil {
		return nil, err
	}
	fraud, hist, fm, err := buildFraud(cfg, in, log, publisher)
	if err != nil {
		return nil, err
	}

	if len(cfg.Kafka.Brokers) > 0 {
		router := consumer.NewRouter(log)
		router.Register(cfg.Kafka.TransactionTopic, history.NewUpdater(hist, log, fm))
		c, err := consumer.New(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, router.Topics(), router, log)
		if err != nil {
			return nil, err
		}
		a.workers = append(a.workers, func(ctx context.Context) error {
			defer c.Close()
			return c.Run(ctx)
		})
	}

	hm := httpmetrics.New()
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(hm.Middleware)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", healthHandler(in))
	r.Handle("/metrics", promhttp.Handler())
	verificationhandler.New(verification, log).Register(r)
	fraudhandler.New(fraud, log).Register(r)

	a.router = r
	return a, nil
}

// buildPublisher picks the event sink. transactional reports whether events
// are written inside the verification transaction.
func buildPublisher(cfg config.Config, in *infra, routes events.Routes) (events.Publisher, bool, error) {
	switch cfg.EventsMode {
	case config.EventsOutbox:
		if in.db == nil {
			return nil, false, fmt.Errorf("events mode %q requires DATABASE_URL", cfg.EventsMode)
		}
		return outbox.New(in.db, routes), true, nil
	case config.EventsKafka:
		if in.producer == nil {
			return nil, false, fmt.Errorf("events mode %q requires KAFKA_BROKERS", cfg.EventsMode)
		}
		return kafkaevents.NewPublisher(in.producer, routes), false, nil
	case config.EventsMemory, "":
		return memory.NewPublisher(), false, nil
	default:
		return nil, false, fmt.Errorf("unknown events mode %q", cfg.EventsMode)
	}
}

func buildVerification(cfg config.Config, in *infra, log *slog.Logger, hasher *pii.Hasher,
	publisher events.Publisher, transactional bool,
) (*verificationservice.Service, error) {
	detector, err := imaging.NewPigoDetector(cfg.Analysis.CascadePath)
	if err != nil {
		return nil, fmt.Errorf("load face cascade: %w", err)
	}
	vm := verificationmetrics.New()

	breaker := circuit.New("registry",
		circuit.WithFailureThreshold(cfg.Registry.FailureThreshold),
		circuit.WithCooldown(cfg.Registry.Cooldown),
	)
	client := registry.NewHTTPClient(cfg.Registry.BaseURL,
		registry.WithTimeout(cfg.Registry.Timeout),
		registry.WithRateLimit(cfg.Registry.RatePerSecond, cfg.Registry.Burst),
		registry.WithBreaker(breaker),
		registry.WithRegulatedMode(cfg.RegulatedMode),
		registry.WithLogger(log),
		registry.WithMetrics(vm),
	)
	var cache registry.ResultCache = registry.NewMemoryCache(cfg.Registry.CacheTTL)
	if in.redis != nil {
		cache = registry.NewRedisCache(in.redis.Client, hasher, cfg.Registry.CacheTTL)
	}

	var imageStore verificationservice.ImageStore = images.NewMemoryStore()
	if in.s3 != nil {
		imageStore = images.NewS3Store(in.s3, cfg.Storage.Bucket)
	}
	var store verificationservice.Store = verificationstore.NewInMemoryStore()
	if in.db != nil {
		store = verificationstore.NewPostgres(in.db)
	}

	opts := []verificationservice.Option{
		verificationservice.WithLogger(log),
		verificationservice.WithMetrics(vm),
		verificationservice.WithPool(imaging.NewPool(cfg.Analysis.Workers, cfg.Analysis.StageTimeout)),
		verificationservice.WithMinDocumentConfidence(cfg.Analysis.MinDocumentConfidence),
		verificationservice.WithSubjectHasher(hasher),
	}
	if transactional {
		opts = append(opts, verificationservice.WithOutbox(publisher))
	} else {
		opts = append(opts, verificationservice.WithEventPublisher(publisher))
	}

	return verificationservice.New(
		store,
		extractor.New(ocr.New(cfg.OCR.URL, cfg.OCR.Timeout), extractor.WithLogger(log)),
		liveness.New(detector, liveness.WithThreshold(cfg.Analysis.LivenessThreshold)),
		facematch.New(detector, facematch.WithThreshold(cfg.Analysis.FaceMatchThreshold)),
		registry.NewCachedVerifier(client, cache),
		imageStore,
		opts...,
	), nil
}

func buildFraud(cfg config.Config, in *infra, log *slog.Logger, publisher events.Publisher,
) (*fraudservice.Service, history.Store, *fraudmetrics.Metrics, error) {
	rules := engine.DefaultRules()
	if cfg.Risk.RulesPath != "" {
		loaded, err := engine.LoadRules(cfg.Risk.RulesPath)
		if err != nil {
			return nil, nil, nil, err
		}
		rules = loaded
	}
	eng, err := engine.New(rules)
	if err != nil {
		return nil, nil, nil, err
	}
	fm := fraudmetrics.New()

	var hist history.Store = history.NewMemoryStore(history.DefaultMaxTransactions)
	if in.redis != nil {
		hist = history.NewRedisStore(in.redis.Client, cfg.Redis.HistoryTTL, history.DefaultMaxTransactions)
	}
	var store fraudservice.Store = fraudstore.NewInMemoryStore()
	if in.pool != nil {
		store = fraudstore.NewPostgres(in.pool)
	}

	svc := fraudservice.New(store, hist, eng,
		fraudservice.WithLogger(log),
		fraudservice.WithMetrics(fm),
		fraudservice.WithEventPublisher(publisher),
		fraudservice.WithBatchWorkers(cfg.Risk.BatchWorkers),
	)
	return svc, hist, fm, nil
}

// healthHandler pings each configured backend.
func healthHandler(in *infra) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		checks := map[string]string{}
		healthy := true
		record := func(name string, err error) {
			if err != nil {
				checks[name] = err.Error()
				healthy = false
				return
			}
			checks[name] = "ok"
		}
		if in.db != nil {
			record("postgres", in.db.PingContext(ctx))
		}
		if in.pool != nil {
			record("postgres_pool", in.pool.Ping(ctx))
		}
		if in.redis != nil {
			record("redis", in.redis.Health(ctx))
		}
		if in.producer != nil {
			record("kafka", in.producer.Ping(ctx))
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, map[string]any{"healthy": healthy, "checks": checks})
	}
}
