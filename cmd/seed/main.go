// Command seed imports and exports stations, payload mappings and
// connections as a single JSON document. Useful for moving a configuration
// between installs and for bootstrapping a test database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/np-engine/internal/config"
	"github.com/snarg/np-engine/internal/database"
	"github.com/snarg/np-engine/internal/httpheaders"
)

type seedFile struct {
	Stations    []database.Station        `json:"stations"`
	Mappings    []database.PayloadMapping `json:"payload_mappings"`
	Connections []database.Connection     `json:"connections"`
}

func main() {
	var (
		envFile    = flag.String("env-file", "", "path to .env file (default .env)")
		exportPath = flag.String("export", "", "write current config to this file")
		importPath = flag.String("import", "", "load config from this file")
	)
	flag.Parse()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if (*exportPath == "") == (*importPath == "") {
		log.Fatal().Msg("exactly one of -export or -import is required")
	}

	cfg, err := config.Load(config.Overrides{EnvFile: *envFile})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()
	// A seed run is a single short session, no need for the engine's pool bounds.
	db, err := database.Connect(ctx, cfg.DatabaseURL, 2, 1, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if *exportPath != "" {
		if err := runExport(ctx, db, *exportPath); err != nil {
			log.Fatal().Err(err).Msg("export failed")
		}
		log.Info().Str("path", *exportPath).Msg("export complete")
		return
	}

	if err := runImport(ctx, db, *importPath, log); err != nil {
		log.Fatal().Err(err).Msg("import failed")
	}
	log.Info().Str("path", *importPath).Msg("import complete")
}

func runExport(ctx context.Context, db *database.DB, path string) error {
	var doc seedFile
	var err error

	if doc.Stations, err = db.ListStations(ctx); err != nil {
		return err
	}
	if doc.Mappings, err = db.ListMappings(ctx); err != nil {
		return err
	}
	if doc.Connections, err = db.ListConnections(ctx, nil); err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// runImport inserts every record from the seed file. Records keep their ids
// when present so connections can reference stations and mappings; missing
// ids are generated.
func runImport(ctx context.Context, db *database.DB, path string, log zerolog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc seedFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	now := time.Now().UTC()

	for i := range doc.Stations {
		s := doc.Stations[i]
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		s.CreatedAt = now
		if err := db.InsertStation(ctx, &s); err != nil {
			return err
		}
		log.Info().Str("name", s.Name).Msg("station imported")
	}

	for i := range doc.Mappings {
		m := doc.Mappings[i]
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		m.CreatedAt = now
		if err := db.InsertMapping(ctx, &m); err != nil {
			return err
		}
		log.Info().Str("name", m.Name).Msg("mapping imported")
	}

	for i := range doc.Connections {
		c := doc.Connections[i]
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.HeadersJSON = httpheaders.NormalizeForStorage(c.ConnectionType, c.HeadersJSON)
		c.CreatedAt = now
		if err := db.InsertConnection(ctx, &c); err != nil {
			return err
		}
		log.Info().Str("name", c.Name).Msg("connection imported")
	}

	return nil
}
