package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"docuchat/internal/backend"
	"docuchat/internal/config"
	"docuchat/internal/embedding"
	"docuchat/internal/processor"
	"docuchat/internal/relevance"
	"docuchat/internal/server"
	"docuchat/internal/session"
	"docuchat/internal/stream"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found")
	}

	configPath := flag.String("config", configFilePath, "Path to the config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}

	log.Debug().Interface("config", cfg).Msg("Loaded config")

	be := backend.NewClient(cfg.Backend)
	if be != nil && be.Probe(context.Background()) {
		log.Info().Str("url", cfg.Backend.URL).Msg("Document backend available")
	} else {
		log.Info().Msg("Document backend unavailable, using local processing")
	}

	// When the backend is up it serves as the embedding provider; the
	// configured local embedder covers everything else.
	var vectorizer *embedding.Vectorizer
	if be.Available() {
		vectorizer = embedding.NewVectorizerWithProvider(be)
	} else {
		vectorizer = embedding.NewVectorizer(&cfg.EmbedLLM)
	}

	var remote relevance.RemoteFinder
	if be.Available() {
		remote = be
	}

	sess := session.New()
	proc := processor.New(vectorizer, cfg.RAG.ChunkSize, cfg.RAG.MaxChunks)
	engine := relevance.NewEngine(vectorizer, remote)
	chat := stream.NewClient(cfg.Chat)

	srv := server.New(cfg, sess, proc, engine, chat, be)

	log.Info().Str("addr", cfg.Server.Addr).Msg("Starting docuchat server")
	if err := http.ListenAndServe(cfg.Server.Addr, srv.Router()); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}
