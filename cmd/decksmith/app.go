package main

import (
	"fmt"
	"os"

	"github.com/kokistudios/decksmith/internal/cardcache"
	"github.com/kokistudios/decksmith/internal/provider"
	"github.com/kokistudios/decksmith/internal/reasoning"
	"github.com/kokistudios/decksmith/internal/scryfall"
	"github.com/kokistudios/decksmith/internal/session"
	"github.com/kokistudios/decksmith/internal/store"
	"github.com/kokistudios/decksmith/internal/suggest"
	"github.com/kokistudios/decksmith/internal/ui"
	"github.com/kokistudios/decksmith/internal/workflow"
)

// app holds the collaborators a command needs, built from config.
type app struct {
	store    *store.Store
	sessions *session.FileStore
	scryfall *scryfall.Client
	cache    *cardcache.Cache
	cards    *cardcache.Resolver
}

func loadStore() (*store.Store, error) {
	s, err := store.Load(store.Home())
	if err != nil {
		return nil, fmt.Errorf("decksmith not initialized (run 'decksmith init' first): %w", err)
	}
	return s, nil
}

// openApp loads the store and opens the card cache.
func openApp() (*app, error) {
	s, err := loadStore()
	if err != nil {
		return nil, err
	}
	cache, err := cardcache.Open(s.Resolve(s.Config.Cards.CachePath))
	if err != nil {
		return nil, err
	}
	client := scryfall.NewClient(s.Config.Cards.ScryfallBaseURL)
	return &app{
		store:    s,
		sessions: session.NewFileStore(s),
		scryfall: client,
		cache:    cache,
		cards:    cardcache.NewResolver(cache, client, ui.Logger),
	}, nil
}

func (a *app) Close() {
	if err := a.cache.Close(); err != nil {
		ui.Logger.Warn("closing card cache", "err", err)
	}
}

func (a *app) provider() (provider.Provider, error) {
	return provider.New(a.store.Config.Provider, a.store.Home)
}

// engine wires the workflow engine to the configured provider and model.
func (a *app) engine() (*workflow.Engine, error) {
	p, err := a.provider()
	if err != nil {
		return nil, err
	}
	cfg := a.store.Config
	if os.Getenv(cfg.Model.APIKeyEnv) == "" {
		ui.Warning(fmt.Sprintf("%s is not set; the reasoning model will likely reject requests", cfg.Model.APIKeyEnv))
	}
	model := reasoning.NewOpenAI(cfg.Model)
	ui.Logger.Debug("reasoning model", "model", model.String())

	h := workflow.NewHandlers(p,
		reasoning.NewAgent(model, cfg.Model.MaxToolRounds),
		suggest.NewValidator(a.cards),
		cfg.Session.HistoryWindow)
	return workflow.NewEngine(a.sessions, h,
		workflow.WithLogger(ui.Logger),
		workflow.WithStepBudget(cfg.Session.StepBudget)), nil
}
