package cmd

import (
	"context"
	"fmt"
	golog "log"
	"os"
	"runtime"

	"github.com/osmwatch/osmwatch"
	"github.com/osmwatch/osmwatch/config"
	"github.com/osmwatch/osmwatch/log"
	"github.com/osmwatch/osmwatch/server"
)

var logger = log.NewLogger("")

func PrintCmds() {
	fmt.Fprintf(os.Stderr, "Usage: %s COMMAND [args]\n\n", os.Args[0])
	fmt.Println("Available commands:")
	fmt.Println("\tserve")
	fmt.Println("\tfetch")
	fmt.Println("\tcompare")
	fmt.Println("\tversion")
}

func Main(usage func()) {
	golog.SetFlags(golog.LstdFlags | golog.Lshortfile)
	if os.Getenv("GOMAXPROCS") == "" {
		runtime.GOMAXPROCS(runtime.NumCPU())
	}

	if len(os.Args) <= 1 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		config.Parse(config.ServeFlags, os.Args[2:])
		log.SetQuiet(config.BaseOptions.Quiet)
		if config.BaseOptions.Httpprofile != "" {
			server.StartHTTPPProf(config.BaseOptions.Httpprofile)
		}
		Serve(context.Background(), &config.BaseOptions.Config)
	case "fetch":
		config.Parse(config.FetchFlags, os.Args[2:])
		log.SetQuiet(config.BaseOptions.Quiet)
		Fetch(context.Background(), &config.BaseOptions.Config, config.FetchFlags.Args())
	case "compare":
		config.Parse(config.CompareFlags, os.Args[2:])
		log.SetQuiet(config.BaseOptions.Quiet)
		Compare(context.Background(), &config.BaseOptions.Config, config.CompareFlags.Args())
	case "version":
		fmt.Printf("%s %s(%s-%s-%s) numcpu=%d\n", osmwatch.Version,
			runtime.Version(), runtime.GOARCH, runtime.GOOS, runtime.Compiler, runtime.NumCPU())
		os.Exit(0)
	default:
		usage()
		logger.Fatalf("invalid command: '%s'", os.Args[1])
	}
	os.Exit(0)
}
