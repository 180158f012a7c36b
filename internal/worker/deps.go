package worker

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"cardpress/internal/pkg/config"
	"cardpress/internal/pkg/logger"
	"cardpress/internal/ports"
)

type Deps struct {
	Pool   *pgxpool.Pool
	RDB    *redis.Client
	SP     ports.StorageProvider
	Config config.Worker
	Log    *logger.Logger
}
