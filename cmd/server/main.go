package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"

	"github.com/yourorg/tokudoku/internal/config"
	appdb "github.com/yourorg/tokudoku/internal/db"
	"github.com/yourorg/tokudoku/internal/routes"
)

func main() {
	_ = godotenv.Load()

	app := fiber.New()
	app.Use(logger.New())

	agencies, err := config.LoadAgencies(config.AgenciesFile())
	if err != nil {
		log.Fatalf("❌ agency registry: %v", err)
	}

	// ============================================================================
	// DB CONNECTION
	// ============================================================================
	db, err := appdb.Connect()
	if err != nil {
		log.Fatalf("❌ db connect: %v", err)
	}
	for i := 0; ; i++ {
		if err := appdb.EnsureSchema(db); err != nil {
			if i >= 5 {
				log.Fatalf("❌ ensure schema: %v", err)
			}
			log.Printf("ensure schema error: %v (retrying in 5s)", err)
			time.Sleep(5 * time.Second)
			continue
		}
		break
	}

	adminKey := config.AdminKey()
	if adminKey == "" {
		log.Println("⚠️ ADMIN_API_KEY not set - import trigger disabled")
	}
	routes.Register(app, db, agencies, adminKey)
	log.Printf("✅ Database ready and routes registered (%d agencies)", len(agencies))

	// ============================================================================
	// GRACEFUL SHUTDOWN
	// ============================================================================
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("🛑 shutting down...")
		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ shutdown error: %v", err)
		}
		db.Close()
		os.Exit(0)
	}()

	port := config.Port()
	log.Printf("🚀 listening on :%s", port)
	log.Println("📍 endpoints:")
	log.Println("   GET  /api/health")
	log.Println("   GET  /api/gtfs/stops          - 地図範囲内のバス停")
	log.Println("   GET  /api/gtfs/stop-timetable - バス停の時刻表")
	log.Println("   GET  /api/gtfs/import         - インポート状況")
	log.Println("   POST /api/gtfs/import         - 停留所インポート (要x-admin-key)")
	log.Println("   WS   /ws/import               - インポート進捗")

	if err := app.Listen(":" + port); err != nil {
		log.Fatal(err)
	}
}
