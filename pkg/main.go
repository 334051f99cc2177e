package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	pkg "github.com/wanderparty/tripchat/pkg/internal"
	"github.com/wanderparty/tripchat/pkg/internal/database"
	"github.com/wanderparty/tripchat/pkg/internal/server"
	"github.com/wanderparty/tripchat/pkg/internal/services"
)

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
}

func main() {
	// Configure settings
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.SetConfigName("settings")
	viper.SetConfigType("toml")

	// Load settings
	if err := viper.ReadInConfig(); err != nil {
		log.Panic().Err(err).Msg("An error occurred when loading settings.")
	}

	// Connect to database
	if err := database.NewSource(); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when connect to database.")
	} else if err := database.RunMigration(database.C); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when running database auto migration.")
	}

	// Messaging core
	registry := services.NewRegistry(database.C, services.Options{
		TypingTimeout:       viper.GetDuration("presence.typing_timeout"),
		LocationMinInterval: viper.GetDuration("location.min_interval"),
	})

	// Server
	app := server.NewServer(registry)
	go app.Listen()

	// Configure timed tasks
	retention := 24 * time.Hour * time.Duration(max(viper.GetInt("messages.retention_days"), 1))
	quartz := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(&log.Logger)))
	quartz.AddFunc("@every 60m", func() {
		registry.Messages.CleanupExpired(retention)
	})
	quartz.Start()

	color.New(color.FgHiCyan, color.Bold).Printf("WanderParty.Tripchat v%s\n", pkg.AppVersion)
	log.Info().Msgf("Tripchat v%s is started...", pkg.AppVersion)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msgf("Tripchat v%s is quitting...", pkg.AppVersion)

	quartz.Stop()
	registry.Drain()
}
