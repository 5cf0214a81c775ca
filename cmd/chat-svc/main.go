package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/RxJP/StreetSource/internal/dbmysql"
	"github.com/RxJP/StreetSource/internal/di"
)

func main() {
	log.Println("Starting Chat Service...")

	if err := godotenv.Load(); err != nil {
		log.Println(".env file not found, using system env variables")
	}

	app, cleanup, err := di.InitializeChatService()
	if err != nil {
		log.Fatalf("Failed to initialize chat service: %v", err)
	}
	defer cleanup()

	if err := app.DB.AutoMigrate(&dbmysql.Conversation{}, &dbmysql.Message{}); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("✅ Database migration completed")

	// background sweep closing out proposed offers past their TTL
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go runOfferSweep(sweepCtx, app)

	server := &http.Server{
		Addr:         app.Config.Server.Host + ":" + app.Config.Server.ChatServicePort,
		Handler:      app.Handler.Router(),
		ReadTimeout:  time.Duration(app.Config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(app.Config.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Printf("Chat Service running on port %s", app.Config.Server.ChatServicePort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down Chat Service...")
	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Chat Service stopped")
}

func runOfferSweep(ctx context.Context, app *di.Application) {
	ticker := time.NewTicker(app.Config.Chat.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := app.Offers.ExpireStale(ctx)
			if err != nil {
				log.Printf("Offer expiry sweep failed: %v", err)
				continue
			}
			if expired > 0 {
				log.Printf("Offer expiry sweep closed %d offers", expired)
			}
		}
	}
}
