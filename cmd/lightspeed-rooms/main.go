package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
	"github.com/tcriess/lightspeed-rooms/commands"
	"github.com/tcriess/lightspeed-rooms/config"
	"github.com/tcriess/lightspeed-rooms/globals"
	"github.com/tcriess/lightspeed-rooms/membership"
	"github.com/tcriess/lightspeed-rooms/persistence"
	"github.com/tcriess/lightspeed-rooms/ws"
)

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
	sslCert    = pflag.String("ssl-cert", "", "SSL cert for websocket (optional)")
	sslKey     = pflag.String("ssl-key", "", "SSL key for websocket (optional)")
)

func main() {
	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))

	persister, err := persistence.NewPersister(globalConfig)
	if err != nil {
		panic(err)
	}
	defer persister.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	room, err := membership.Bootstrap(ctx, persister, globalConfig.AdminUser, globalConfig.DefaultRoom)
	if err != nil {
		panic(err)
	}
	globals.AppLogger.Info("default room ready", "room", room.Name, "owner", globalConfig.AdminUser)

	registry := ws.NewRegistry(persister, globalConfig.HistoryConfig.HistorySize, globals.AppLogger.Named("hub"))
	defer registry.Close()
	privateRooms, err := commands.NewPrivateRooms(persister, globalConfig.PrivateRoomCacheSize)
	if err != nil {
		panic(err)
	}
	dispatcher := commands.NewDispatcher(&commands.Env{
		Persister:    persister,
		Broadcaster:  registry,
		PrivateRooms: privateRooms,
		Logger:       globals.AppLogger.Named("commands"),
	})

	cronRunner := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err = cronRunner.AddFunc(globalConfig.AnonymousConfig.SweepSpec, func() {
		n, err := membership.SweepAnonymousUsers(ctx, persister)
		if err != nil {
			globals.AppLogger.Error("could not sweep anonymous users", "error", err)
			return
		}
		if n > 0 {
			globals.AppLogger.Info("swept anonymous users", "count", n)
		}
	})
	if err != nil {
		panic(err)
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	server := ws.NewServer(globalConfig, persister, registry, dispatcher, globals.AppLogger.Named("ws"))
	httpServer := &http.Server{Addr: globalConfig.Addr, Handler: server.Router()}
	go func() {
		<-ctx.Done()
		globals.AppLogger.Info("interrupted, shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	globals.AppLogger.Info("listening", "addr", globalConfig.Addr)
	if *sslCert != "" && *sslKey != "" {
		err = httpServer.ListenAndServeTLS(*sslCert, *sslKey)
	} else {
		err = httpServer.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		globals.AppLogger.Error("stopped listening", "error", err)
	}
}
