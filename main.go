// main.go
//
// Process entrypoint: load env, open SQLite, apply migrations, wire the
// services, and serve HTTP.

package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/futuristaz/geohunt-sub000/internal/achievements"
	"github.com/futuristaz/geohunt-sub000/internal/geo"
	"github.com/futuristaz/geohunt-sub000/internal/geocode"
	"github.com/futuristaz/geohunt-sub000/internal/httpserver"
	"github.com/futuristaz/geohunt-sub000/internal/leaderboard"
	"github.com/futuristaz/geohunt-sub000/internal/multiplayer"
	"github.com/futuristaz/geohunt-sub000/internal/realtime"
	"github.com/futuristaz/geohunt-sub000/internal/solo"
	"github.com/futuristaz/geohunt-sub000/internal/store"
)

func main() {
	_ = godotenv.Load()
	if lvl, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	db, err := openDB(getEnv("DATABASE_PATH", "./data/app.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	if err := migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}

	if err := geocode.InitRegions(); err != nil {
		log.Fatal().Err(err).Msg("failed to load geocoding regions")
	}
	provider := newProvider()

	bcast := realtime.NewBroadcaster()
	presence := realtime.NewPresence()
	evaluator := achievements.NewEvaluator(db, log.Logger)

	rooms := multiplayer.NewService(store.NewSQLiteStore(db), provider, bcast, log.Logger)
	rooms.SetAdvanceDelay(time.Duration(envInt("ROUND_ADVANCE_DELAY_MS", 5000)) * time.Millisecond)
	rooms.OnGameFinished(func(ctx context.Context, results []multiplayer.PlayerResult) {
		for _, res := range results {
			err := evaluator.Record(ctx, achievements.Result{
				UserID:         res.UserID,
				TotalScore:     res.TotalScore,
				BestRoundScore: res.BestRound,
			})
			if err != nil {
				log.Warn().Err(err).Str("user", res.UserID).Msg("record game result")
			}
		}
	})

	soloSvc := solo.NewService(provider, solo.NewSQLResultStore(db), log.Logger)
	soloSvc.OnFinished(func(ctx context.Context, g *solo.FinishedGame) {
		err := evaluator.Record(ctx, achievements.Result{
			UserID:         g.UserID,
			TotalScore:     g.TotalScore,
			BestRoundScore: g.BestRound,
		})
		if err != nil {
			log.Warn().Err(err).Str("user", g.UserID).Msg("record solo result")
		}
	})

	srv := httpserver.New(httpserver.Deps{
		Auth:         httpserver.NewAuth(db, log.Logger),
		Rooms:        rooms,
		Solo:         soloSvc,
		Boards:       leaderboard.New(db),
		Achievements: evaluator,
		Broadcaster:  bcast,
		Presence:     presence,
		Logger:       log.Logger,
	})

	port := getEnv("PORT", "5175")
	log.Info().Str("port", port).Int("regions", len(geocode.Regions())).Msg("starting geohunt server")
	if err := srv.Start(":" + port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

// newProvider picks the panorama source: the live metadata API when a key is
// configured, otherwise region centers served statically for offline dev.
func newProvider() geocode.Provider {
	if key := os.Getenv("MAPS_API_KEY"); key != "" {
		base := getEnv("STREETVIEW_METADATA_URL", "https://maps.googleapis.com/maps/api/streetview/metadata")
		return geocode.NewStreetView(base, key, geocode.Regions())
	}
	log.Warn().Msg("MAPS_API_KEY unset, serving static region centers")
	var pts []geo.Point
	for _, reg := range geocode.Regions() {
		pts = append(pts, geo.Point{Lat: reg.Lat, Lng: reg.Lng})
	}
	return geocode.NewStatic(pts...)
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
