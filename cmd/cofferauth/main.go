// Package main provides the cofferauth operational CLI for managing
// accounts and grants in a Coffer user store.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/cofferdb/coffer/pkg/auth"
	"github.com/cofferdb/coffer/pkg/cluster"
	"github.com/cofferdb/coffer/pkg/config"
	"github.com/cofferdb/coffer/pkg/logger"
)

// Version information (set by build process)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

var (
	configFile  = flag.String("config", "", "Path to configuration file")
	logLevel    = flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	showVersion = flag.Bool("version", false, "Show version information")
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: cofferauth [flags] <command> [args]

Commands:
  create-root <password>                      create the root account
  store <user> <password> [replace] [inactive] create or replace an account
  passwd <user> <password>                    update an account password
  grant-db <user> <db> <none|ro|rw>           grant a database level
  grant-coll <user> <db> <coll> <none|ro|rw>  grant a collection level
  remove <user>                               delete an account
  list                                        list all accounts
  check <user> <db> [coll]                    resolve the effective level

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("cofferauth %s (%s)\n", Version, GitCommit)
		return
	}
	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	log := logger.NewTextLogger(cfg.LogLevel)

	repo, err := auth.NewRepository(cfg.DatabasePath)
	if err != nil {
		log.Fatal("failed to open user store", err)
	}
	defer repo.Close()

	opts := auth.ManagerOptions{
		Store:               repo,
		Hasher:              auth.DefaultHasher{Cost: cfg.BcryptCost},
		RoleResolutionDepth: cfg.RoleResolutionDepth,
		Logger:              log,
	}
	if cfg.Directory.Enabled {
		opts.Handler = auth.NewDirectoryHandler(
			cfg.Directory.Endpoint, cfg.Directory.APIKey, cfg.Directory.Timeout)
	}

	manager, err := auth.NewUserManager(opts)
	if err != nil {
		log.Fatal("failed to create user manager", err)
	}

	var invalidator *cluster.Invalidator
	if cfg.Cluster.Enabled {
		invalidator, err = cluster.NewInvalidator(cfg.Cluster, manager, log)
		if err != nil {
			log.Fatal("failed to join cluster invalidation bus", err)
		}
		defer invalidator.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mutated, err := runCommand(ctx, manager, cfg, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if mutated && invalidator != nil {
		if err := invalidator.PublishInvalidation(); err != nil {
			log.Warn("failed to signal cluster", map[string]interface{}{"error": err.Error()})
		}
	}
}

func runCommand(ctx context.Context, manager *auth.UserManager, cfg *config.Config, args []string) (bool, error) {
	switch args[0] {
	case "create-root":
		if len(args) != 2 {
			return false, fmt.Errorf("usage: create-root <password>")
		}
		return true, manager.CreateRootUser(ctx, cfg.RootUsername, args[1])

	case "store":
		if len(args) < 3 {
			return false, fmt.Errorf("usage: store <user> <password> [replace] [inactive]")
		}
		replace, active := false, true
		for _, opt := range args[3:] {
			switch opt {
			case "replace":
				replace = true
			case "inactive":
				active = false
			default:
				return false, fmt.Errorf("unknown option %q", opt)
			}
		}
		return true, manager.StoreUser(ctx, replace, args[1], args[2], active)

	case "passwd":
		if len(args) != 3 {
			return false, fmt.Errorf("usage: passwd <user> <password>")
		}
		hasher := auth.DefaultHasher{Cost: cfg.BcryptCost}
		return true, manager.UpdateUser(ctx, args[1], func(u *auth.User) error {
			return u.UpdatePassword(hasher, args[2])
		})

	case "grant-db":
		if len(args) != 4 {
			return false, fmt.Errorf("usage: grant-db <user> <db> <none|ro|rw>")
		}
		return true, manager.UpdateUser(ctx, args[1], func(u *auth.User) error {
			u.GrantDatabase(args[2], auth.ParseAccessLevel(args[3]))
			return nil
		})

	case "grant-coll":
		if len(args) != 5 {
			return false, fmt.Errorf("usage: grant-coll <user> <db> <coll> <none|ro|rw>")
		}
		return true, manager.UpdateUser(ctx, args[1], func(u *auth.User) error {
			u.GrantCollection(args[2], args[3], auth.ParseAccessLevel(args[4]))
			return nil
		})

	case "remove":
		if len(args) != 2 {
			return false, fmt.Errorf("usage: remove <user>")
		}
		return true, manager.RemoveUser(ctx, args[1])

	case "list":
		docs, err := manager.AllUsers(ctx)
		if err != nil {
			return false, err
		}
		for _, doc := range docs {
			fmt.Printf("%s\tactive=%v\n", doc["user"], doc["active"])
		}
		return false, nil

	case "check":
		switch len(args) {
		case 3:
			fmt.Println(manager.CanUseDatabase(ctx, args[1], args[2]))
			return false, nil
		case 4:
			fmt.Println(manager.CanUseCollection(ctx, args[1], args[2], args[3]))
			return false, nil
		default:
			return false, fmt.Errorf("usage: check <user> <db> [coll]")
		}

	default:
		return false, fmt.Errorf("unknown command %q", args[0])
	}
}
