package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/haatos/forgeci/internal"
	"github.com/haatos/forgeci/internal/service"
	"github.com/haatos/forgeci/internal/settings"
	"github.com/haatos/forgeci/internal/store"

	_ "modernc.org/sqlite"
)

// Admin tool for operations that must work without a valid api key,
// most importantly minting the first key of a fresh deployment.
func main() {
	settings.ReadDotenv(internal.DotEnvPath)
	settings.Settings = settings.NewSettings()

	if len(os.Args) < 2 {
		usage()
	}

	switch os.Args[1] {
	case "api-key":
		apiKeyCommand(os.Args[2:])
	case "migrate":
		rwdb := store.InitDatabase(false)
		defer rwdb.Close()
		store.RunMigrations(rwdb)
		fmt.Println("migrations applied")
	default:
		usage()
	}
}

func apiKeyCommand(args []string) {
	if len(args) < 1 {
		usage()
	}

	rdb := store.InitDatabase(true)
	defer rdb.Close()
	rwdb := store.InitDatabase(false)
	defer rwdb.Close()
	store.RunMigrations(rwdb)

	apiKeySvc := service.NewAPIKeyService(store.NewAPIKeySQLiteStore(rdb, rwdb))
	ctx := context.Background()

	switch args[0] {
	case "create":
		fs := flag.NewFlagSet("api-key create", flag.ExitOnError)
		name := fs.String("name", "", "unique name of the key")
		if err := fs.Parse(args[1:]); err != nil {
			log.Fatal(err)
		}
		value, _, err := apiKeySvc.CreateAPIKey(ctx, *name)
		if err != nil {
			log.Fatal(err)
		}
		// Printed once, only the hash is stored.
		fmt.Println(value)
	case "list":
		keys, err := apiKeySvc.ListAPIKeys(ctx)
		if err != nil {
			log.Fatal(err)
		}
		for _, key := range keys {
			fmt.Printf("%d\t%s\t%s\n", key.APIKeyID, key.Name, key.CreatedOn.Format("2006-01-02"))
		}
	case "delete":
		fs := flag.NewFlagSet("api-key delete", flag.ExitOnError)
		id := fs.Int64("id", 0, "id of the key to delete")
		if err := fs.Parse(args[1:]); err != nil {
			log.Fatal(err)
		}
		if err := apiKeySvc.DeleteAPIKey(ctx, *id); err != nil {
			log.Fatal(err)
		}
		fmt.Println("api key deleted")
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  forgeci migrate
  forgeci api-key create -name <name>
  forgeci api-key list
  forgeci api-key delete -id <id>`)
	os.Exit(2)
}
