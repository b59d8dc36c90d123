package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "transitd",
		Usage: "resolve delay-adjusted transit schedules from static GTFS and GTFS-realtime",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "dotenv file loaded before reading TRANSIT_* variables",
				Value: ".env",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			importCommand(),
			loadRealtimeCommand(),
			nextArrivalCommand(),
			scheduleCommand(),
			serviceDatesCommand(),
			delaysCommand(),
			cleanupCommand(),
			schemaCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
