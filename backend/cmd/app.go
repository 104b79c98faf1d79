package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/camroulette/signaling/backend/matchmaking"
	"github.com/camroulette/signaling/backend/registry"
	"github.com/camroulette/signaling/backend/relay"
	httpServer "github.com/camroulette/signaling/backend/server/http"
	websocketServer "github.com/camroulette/signaling/backend/server/websocket"
	"github.com/camroulette/signaling/backend/service"
	store "github.com/camroulette/signaling/backend/storage/memory"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)

	var (
		apiListenAddr = fs.StringP("api-listen-addr", "a", ":8080", "api listen address")
		wsListenAddr  = fs.StringP("ws-listen-addr", "w", ":8888", "websocket signaling listen address")
		logLevel      = fs.StringP("log-level", "l", "debug", "log level")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	var (
		reg   = registry.New()
		queue = matchmaking.NewQueue()
		rooms = store.NewStore()
	)
	svc := service.NewService(service.Config{
		Registry:  reg,
		Queue:     queue,
		Matcher:   matchmaking.NewMatcher(queue, &logger),
		RoomStore: rooms,
		Relay:     relay.New(rooms, &logger),
		Logger:    &logger,
	})
	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:       &logger,
		StatsService: svc,
		ListenAddr:   *apiListenAddr,
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:           &logger,
		LifecycleService: svc,
		ListenAddr:       *wsListenAddr,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(2)
	go httpSrv.Run(ctx, wg, errc)
	go wsSrv.Run(ctx, wg, errc)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}
