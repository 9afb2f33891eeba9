package app

import (
	"context"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/fx"

	"github.com/nguyentranbao-ct/mindmap-chat/internal/collab"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/config"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/repo/llm"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/repo/memstore"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/repo/mongodb"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/repo/realtime"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/server"
	"github.com/nguyentranbao-ct/mindmap-chat/internal/usecase"
	log "github.com/nguyentranbao-ct/mindmap-chat/pkg/logger/log_context"
)

type stores struct {
	fx.Out

	Messages   usecase.MessageStore
	Chats      usecase.ChatStore
	Sessions   usecase.SessionStore
	Activities usecase.ActivityStore
}

// newStores picks the persistence backend from DATABASE_DRIVER.
func newStores(lc fx.Lifecycle, cfg *config.Config) (stores, error) {
	if cfg.Database.Driver == "memory" {
		log.Warnw(context.Background(), "using in-memory stores, data is lost on restart")
		return stores{
			Messages:   memstore.NewMessageStore(),
			Chats:      memstore.NewChatStore(),
			Sessions:   memstore.NewSessionStore(),
			Activities: memstore.NewActivityStore(),
		}, nil
	}

	db, err := newMongoDB(lc, cfg)
	if err != nil {
		return stores{}, err
	}
	migrations := mongodb.NewMigrationRepository(db)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return migrations.EnsureIndexes(ctx)
		},
	})
	return stores{
		Messages:   mongodb.NewMessageRepository(db),
		Chats:      mongodb.NewChatRepository(db),
		Sessions:   mongodb.NewCollaborationSessionRepository(db),
		Activities: mongodb.NewChatActivityRepository(db),
	}, nil
}

func newMongoDB(lc fx.Lifecycle, cfg *config.Config) (*mongodb.DB, error) {
	opts := options.Client().
		SetAppName("mindmap-chat").
		SetDirect(cfg.Database.Direct).
		SetHosts(cfg.Database.Hosts)

	if cfg.Database.Username != "" {
		opts.SetAuth(options.Credential{
			Username:      cfg.Database.Username,
			Password:      cfg.Database.Password,
			AuthSource:    cfg.Database.AuthDB,
			AuthMechanism: "SCRAM-SHA-256",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	mongoClient, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("init mongo client: %w", err)
	}

	db := &mongodb.DB{
		Client:       mongoClient,
		Database:     mongoClient.Database(cfg.Database.Database),
		Transactions: cfg.Database.Transactions,
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return mongoClient.Ping(ctx, nil)
		},
		OnStop: func(ctx context.Context) error {
			return db.Close(ctx)
		},
	})
	return db, nil
}

// newTransport shares rooms through Redis when REDIS_ADDRS is set and keeps
// them in process otherwise.
func newTransport(lc fx.Lifecycle, cfg *config.Config) realtime.Transport {
	if len(cfg.Redis.Addrs) == 0 {
		hub := realtime.NewHub()
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return hub.Close()
			},
		})
		return hub
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	transport := realtime.NewRedisTransport(rdb, cfg.Redis.ChannelPrefix)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			_ = transport.Close()
			return rdb.Close()
		},
	})
	return transport
}

func newBroadcaster(transport realtime.Transport) usecase.Broadcaster {
	return realtime.NewBroadcaster(transport)
}

func newGenkitClient(cfg *config.Config) *genkit.Genkit {
	ctx := context.Background()
	if cfg.LLM.GoogleAIAPIKey == "" {
		log.Warnw(ctx, "LLM_GOOGLE_AI_API_KEY is empty, branch generation will fail")
		return genkit.Init(ctx)
	}
	googleAI := &googlegenai.GoogleAI{
		APIKey: cfg.LLM.GoogleAIAPIKey,
	}
	return genkit.Init(ctx, genkit.WithPlugins(googleAI))
}

func newGenerator(g *genkit.Genkit, cfg *config.Config) usecase.Generator {
	return llm.NewGenerator(g, cfg)
}

func newCollabDeps(
	transport realtime.Transport,
	broadcaster usecase.Broadcaster,
	registry *collab.Registry,
	graph usecase.GraphUsecase,
	sessions usecase.CollaborationUsecase,
) collab.Deps {
	return collab.Deps{
		Transport:   transport,
		Broadcaster: broadcaster,
		Registry:    registry,
		Positions:   graph,
		Activity:    sessions,
	}
}

func newBranchController(branches usecase.BranchUsecase, cfg *config.Config) *server.BranchController {
	return server.NewBranchController(branches, cfg.LLM.Timeout)
}
