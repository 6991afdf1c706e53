package main

import (
	"fmt"
	"log"

	"github.com/CrowderSoup/begtask/assistant"
	"github.com/CrowderSoup/begtask/config"
	"github.com/CrowderSoup/begtask/database"
	"github.com/CrowderSoup/begtask/kanban"
	"github.com/CrowderSoup/begtask/search"
	"github.com/CrowderSoup/begtask/services"
)

// app holds the services every command builds on.
type app struct {
	cfg       *config.Config
	data      *database.DataService
	auth      *services.AuthService
	notifier  *services.Notifier
	hub       *services.Hub
	boards    *kanban.Registry
	generator assistant.TextGenerator
	assistant *assistant.Assistant
	index     *search.Service
	storage   *services.FileStorage

	// mailConfigured is false when links can't be emailed.
	mailConfigured bool
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*database.DataService, error) {
	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return database.NewDataService(db, cfg.Database.Driver), nil
}

// newApp wires the services. Optional integrations stay unset when their
// settings are missing.
func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.UsesDefaultSecret() {
		log.Printf("Warning: using the default JWT secret; set BEGTASK_AUTH_JWT_SECRET")
	}

	data, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, data: data}

	var mailer services.Mailer
	if m := services.NewSMTPMailer(cfg.SMTP); m.Configured() {
		mailer = m
		a.mailConfigured = true
	} else {
		log.Printf("Warning: SMTP not configured; login and reset links will not be emailed")
	}

	var whatsapp *services.WhatsAppSender
	if w := services.NewWhatsAppSender(cfg.WhatsApp); w.Configured() {
		whatsapp = w
	}

	if c := assistant.NewChatClient(cfg.AI); c != nil {
		a.generator = c
	}
	var embedder search.Embedder
	if e := search.NewOpenAIEmbedder(cfg.AI); e != nil {
		embedder = e
	}

	a.auth = services.NewAuthService(cfg.Auth, mailer)
	a.notifier = services.NewNotifier(data, whatsapp, mailer)
	// Publish blocks once the broadcast buffer is full, so the hub runs for
	// every command.
	a.hub = services.NewHub()
	go a.hub.Run()
	a.boards = kanban.NewRegistry(data, a.notifier, a.hub.Publish)
	a.assistant = assistant.New(assistant.DefaultRules(), a.generator)
	a.index = search.NewService(data, embedder)

	a.storage, err = services.NewFileStorage(cfg.Storage)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return a, nil
}

// close waits for background notifications, stops the hub and closes the
// database.
func (a *app) close() {
	if a.boards != nil {
		a.boards.Wait()
	}
	if a.notifier != nil {
		a.notifier.Wait()
	}
	if a.hub != nil {
		a.hub.Stop()
	}
	if err := a.data.DB().Close(); err != nil {
		log.Printf("Warning: failed to close database: %v", err)
	}
}
