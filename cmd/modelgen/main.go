// Command modelgen writes the demonstration model bank so the service can run
// end to end without a training pipeline. The parameters are fixed by hand.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"sifra/internal/cfg"
	"sifra/internal/common"
	"sifra/internal/logging"
	"sifra/internal/ml"
)

func main() {
	var (
		outDir   = flag.String("out", common.DefaultModelDir, "Directory to write the model bank to")
		logLevel = flag.String("log-level", common.DefaultLogLevel, "Log level: debug, info, warn, error")
		verify   = flag.Bool("verify", true, "Reload the written bank and check it")
	)
	flag.Parse()

	if _, err := logging.Setup(cfg.LogSettings{Level: *logLevel, Format: common.LogFormatConsole}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	bank, err := ml.NewDemoBank()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build demo bank")
	}
	if err := ml.WriteBank(*outDir, bank); err != nil {
		log.Fatal().Err(err).Str("dir", *outDir).Msg("Failed to write model bank")
	}

	if *verify {
		loaded, err := ml.LoadBank(*outDir)
		if err != nil {
			log.Fatal().Err(err).Str("dir", *outDir).Msg("Written bank does not load")
		}
		if loaded.Version() != bank.Version() {
			log.Fatal().Str("want", bank.Version()).Str("got", loaded.Version()).Msg("Version mismatch after reload")
		}
	}

	info := bank.Info()
	log.Info().
		Str("dir", *outDir).
		Str("version", info.Version).
		Int("features", info.NumFeatures).
		Int("classifiers", len(info.Classifiers)).
		Msg("Model bank written")
}
