package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"

	"social-chat-core/config"
	"social-chat-core/database"
	"social-chat-core/middleware"
	"social-chat-core/models"
	"social-chat-core/pkg/db/sqlite"
	"social-chat-core/telemetry"
	"social-chat-core/util/api"

	"github.com/rs/cors"
	"golang.org/x/crypto/bcrypt"
)

// seedUsers upserts the configured accounts so the server is usable right
// after boot. Re-running against an existing database refreshes profiles
// without duplicating users.
func seedUsers(store *database.Store, seeds []config.SeedUser) {
	for _, s := range seeds {
		hash, err := bcrypt.GenerateFromPassword([]byte(s.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("Failed to hash password for %s: %v", s.Username, err)
		}
		_, err = store.CreateUser(&models.User{
			Username:     s.Username,
			PasswordHash: string(hash),
			FirstName:    s.FirstName,
			LastName:     s.LastName,
			Avatar:       s.Avatar,
			AboutMe:      s.AboutMe,
		})
		if err != nil {
			log.Fatalf("Failed to seed user %s: %v", s.Username, err)
		}
		log.Printf("Seeded user: %s", s.Username)
	}
}

func main() {
	log.Println("Initializing application...")

	configPath := flag.String("config", "config.yml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Using database at: %s", cfg.Server.DBPath)

	db, err := sqlite.ConnectAndMigrate(cfg.Server.DBPath)
	if err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}
	store := database.New(db)
	defer store.Close()

	seedUsers(store, cfg.Seed)

	hub := api.NewHub(store)
	authHandler := api.NewAuthHandler(store, cfg.Server.LoginRPS, cfg.Server.LoginBurst)
	profileHandler := api.NewProfileHandler(store)
	messageHandler := api.NewMessageHandler(store, hub)
	userHandler := api.NewUserHandler(store)
	uploadHandler := api.NewUploadHandler(cfg.Server.UploadsDir)

	mux := http.NewServeMux()

	// WebSocket endpoint. The hub validates the session token itself so
	// it can come from the query string.
	mux.HandleFunc("/ws", hub.HandleWebSocket)

	// Auth handlers
	mux.HandleFunc("POST /login", authHandler.Login)
	mux.HandleFunc("POST /logout", authHandler.Logout)
	mux.Handle("GET /whoami", middleware.AuthMiddleware(http.HandlerFunc(userHandler.WhoAmI)))

	// Profile handlers
	mux.Handle("GET /profiles/{username}", middleware.AuthMiddleware(http.HandlerFunc(profileHandler.GetProfile)))
	mux.Handle("GET /users", middleware.AuthMiddleware(http.HandlerFunc(userHandler.ListUsers)))

	// Conversation routes
	mux.Handle("GET /conversations/{conversationID}/messages", middleware.AuthMiddleware(http.HandlerFunc(messageHandler.GetMessages)))
	mux.Handle("POST /conversations/{conversationID}/messages", middleware.AuthMiddleware(http.HandlerFunc(messageHandler.SendMessage)))
	mux.Handle("GET /conversations/{conversationID}/unread", middleware.AuthMiddleware(http.HandlerFunc(messageHandler.GetUnreadCount)))

	// Image attachments
	mux.Handle("POST /uploads", middleware.AuthMiddleware(http.HandlerFunc(uploadHandler.UploadImage)))
	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.Server.UploadsDir))))

	// Prometheus metrics
	mux.Handle("GET /metrics", telemetry.Handler())

	// --- CORS Middleware ---
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true, // Required for cookies!
	})

	handler := c.Handler(mux)

	fmt.Printf("Server running on localhost:%d\n", cfg.Server.Port)
	log.Fatal(http.ListenAndServe(cfg.Addr(), handler))
}
