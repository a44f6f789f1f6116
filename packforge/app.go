package packforge

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/packforge/packforge/packforge/bus"
	"github.com/packforge/packforge/packforge/database"
	"github.com/packforge/packforge/packforge/database/models"
	"github.com/packforge/packforge/packforge/database/repositories"
)

func New(cfg Config, version string, commit string) *App {
	return &App{
		Cfg:     cfg,
		Version: version,
		Commit:  commit,
	}
}

// App holds every wired component of the fulfillment service. main builds
// it top to bottom and then calls Run.
type App struct {
	Cfg     Config
	Version string
	Commit  string

	DB        *database.DB
	Bus       *bus.Client
	Publisher *bus.Publisher
	Rarities  *models.RaritySet

	RarityRepository       repositories.RarityRepository
	CardDesignRepository   repositories.CardDesignRepository
	CardInstanceRepository repositories.CardInstanceRepository
	PackTypeRepository     repositories.PackTypeRepository
	PackRepository         repositories.PackRepository
	UserRepository         repositories.UserRepository
	TradeRepository        repositories.TradeRepository
	DeadLetterRepository   repositories.DeadLetterRepository
	EventRepository        repositories.FulfillmentEventRepository

	Consumers []*bus.Consumer
}

// LoadRarities reads the rarity catalog once at startup. The catalog is
// static for the life of the process.
func (a *App) LoadRarities(ctx context.Context) error {
	rarities, err := a.RarityRepository.GetAll(ctx)
	if err != nil {
		return err
	}
	a.Rarities = models.NewRaritySet(rarities)
	slog.Info("Rarity catalog loaded",
		slog.String("type", "db"),
		slog.Int("tiers", len(rarities)))
	return nil
}

// Run starts every registered consumer and blocks until the context is
// canceled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	for _, c := range a.Consumers {
		c := c
		group.Go(func() error {
			return c.Run(ctx)
		})
	}
	return group.Wait()
}

func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}
