package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/bigquery-emulator/server"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/navikt/bqinspect/pkg/bq/emulator"
)

var (
	projectID = flag.String("project", "test-project", "project id")
	dataYAML  = flag.String("data", "", "data yaml file")
	port      = flag.String("port", "8080", "port")
)

// seedFile mirrors just enough of the emulator's data format to
// summarize and sanity check a seed before loading it.
type seedFile struct {
	Projects []struct {
		ID       string `yaml:"id"`
		Datasets []struct {
			ID     string `yaml:"id"`
			Tables []struct {
				ID string `yaml:"id"`
			} `yaml:"tables"`
		} `yaml:"datasets"`
	} `yaml:"projects"`
}

type seedSummary struct {
	projects int
	datasets int
	tables   int
}

func inspectSeed(path string) (seedSummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return seedSummary{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var seed seedFile

	err = yaml.Unmarshal(data, &seed)
	if err != nil {
		return seedSummary{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	summary := seedSummary{projects: len(seed.Projects)}
	for _, p := range seed.Projects {
		summary.datasets += len(p.Datasets)

		for _, d := range p.Datasets {
			summary.tables += len(d.Tables)
		}
	}

	return summary, nil
}

func main() {
	flag.Parse()

	log := zerolog.New(os.Stdout)

	log.Info().Msg("Starting big query emulator")

	e := emulator.New(log)
	defer e.Cleanup()

	if *dataYAML != "" {
		summary, err := inspectSeed(*dataYAML)
		if err != nil {
			log.Fatal().Err(err).Msg("inspecting seed file")
		}

		log.Info().
			Int("projects", summary.projects).
			Int("datasets", summary.datasets).
			Int("tables", summary.tables).
			Msg("seed file loaded")

		e.WithSource(*projectID, server.YAMLSource(*dataYAML))
	} else {
		e.WithProject(*projectID)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info().Msgf("Big query emulator listening on %s", *port)

	if err := e.Serve(ctx, *port); err != nil {
		log.Fatal().Err(err).Msg("serving big query emulator")
	}

	log.Info().Msg("Big query emulator shut down")
}
