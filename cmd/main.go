package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/smhanov/advsearch"
	"github.com/smhanov/advsearch/dav"
	"github.com/smhanov/advsearch/kql"
	"github.com/spf13/pflag"
)

func init() {
	pflag.Bool("serve", false, "Start the server")
	pflag.String("serialize", "", "Print the query for a filter state JSON file, or - for stdin")
	pflag.String("parse", "", "Print the filter state and warnings for a query")
	pflag.String("search", "", "Run a query against the backend and print the results")
	pflag.String("dump", "", "Dump the saved query file at the specified path")
	pflag.String("token", "", "Print an API token for the given subject")
	pflag.String("export", "", "Export saved queries to the specified JSON file, or - for stdout")
	pflag.String("import", "", "Import saved queries from the specified JSON file")
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) { w.Out = os.Stderr })).
		With().Timestamp().Caller().Logger()
}

func main() {
	log := newLogger()

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading configuration")
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Failed")
	}
}

func flagValue(name string) string {
	return pflag.Lookup(name).Value.String()
}

func run(cfg advsearch.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case flagValue("dump") != "":
		return advsearch.DumpQueryFile(flagValue("dump"), os.Stdout)

	case flagValue("token") != "":
		token, err := advsearch.GenerateToken(flagValue("token"), []byte(cfg.JWTSecret), cfg.TokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil

	case flagValue("serialize") != "":
		var filters kql.FilterState
		if err := readJSON(flagValue("serialize"), &filters); err != nil {
			return err
		}
		fmt.Println(kql.Serialize(filters))
		return nil

	case flagValue("parse") != "":
		filters, warnings := kql.NewParser(log).Parse(flagValue("parse"))
		return printJSON(map[string]interface{}{"filters": filters, "warnings": warnings})

	case flagValue("search") != "":
		if cfg.DavURL == "" {
			return fmt.Errorf("--dav-url is required for --search")
		}
		client := dav.NewClient(dav.Options{
			URL:      cfg.DavURL,
			User:     cfg.DavUser,
			Password: cfg.DavPassword,
			Token:    cfg.DavToken,
			RetryMax: cfg.SearchRetries,
		}, log)
		result, err := client.Search(ctx, dav.Request{Query: flagValue("search"), Limit: cfg.SearchLimit})
		if err != nil {
			return err
		}
		return printJSON(result)

	case flagValue("export") != "":
		return withStore(cfg, log, func(store advsearch.QueryStore) error {
			out := flagValue("export")
			if out == "-" {
				return advsearch.ExportQueries(ctx, store, os.Stdout)
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			return advsearch.ExportQueries(ctx, store, f)
		})

	case flagValue("import") != "":
		return withStore(cfg, log, func(store advsearch.QueryStore) error {
			f, err := os.Open(flagValue("import"))
			if err != nil {
				return err
			}
			defer f.Close()
			n, err := advsearch.ImportQueries(ctx, store, f)
			log.Info().Int("count", n).Msg("Imported saved queries")
			return err
		})

	case flagValue("serve") == "true":
		return advsearch.RunServer(ctx, cfg, log)
	}

	fmt.Println("Usage:")
	pflag.PrintDefaults()
	return nil
}

func withStore(cfg advsearch.Config, log zerolog.Logger, fn func(advsearch.QueryStore) error) error {
	store, err := advsearch.OpenQueryStore(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func readJSON(path string, v interface{}) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
