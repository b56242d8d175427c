package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/adboardhq/moderation-backend/api/controllers"
	"github.com/adboardhq/moderation-backend/api/middleware"
	"github.com/adboardhq/moderation-backend/internal/ads"
	"github.com/adboardhq/moderation-backend/internal/users"
	"github.com/adboardhq/moderation-backend/pkg/config"
	"github.com/adboardhq/moderation-backend/pkg/db"
	"github.com/adboardhq/moderation-backend/pkg/logger"
	"github.com/adboardhq/moderation-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	usersService users.Service,
	adsService ads.Service,
	moderationService controllers.ModerationReader,
	producer controllers.TaskSubmitter,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/healthz", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Post("/users", controllers.CreateUser(usersService, logg))

	r.Route("/advertisements", func(r chi.Router) {
		r.Post("/", controllers.CreateAdvertisement(adsService, logg))
		r.Get("/{itemID}", controllers.GetAdvertisement(adsService, logg))
		r.Get("/{itemID}/moderation_results", controllers.ModerationHistory(moderationService, logg))
	})
	r.Post("/close", controllers.CloseAdvertisement(adsService, logg))

	r.Post("/predict", controllers.Predict(moderationService, logg))
	r.Get("/simple_predict", controllers.SimplePredict(moderationService, logg))
	r.Post("/async_predict", controllers.AsyncPredict(producer, logg))
	r.Get("/moderation_result/{taskID}", controllers.ModerationResult(moderationService, logg))

	return r
}
