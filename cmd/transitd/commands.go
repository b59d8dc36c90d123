package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/nshi/gtfs-rt/internal/db"
	"github.com/nshi/gtfs-rt/internal/realtime"
	"github.com/nshi/gtfs-rt/internal/static"
)

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import-gtfs",
		Usage:     "import a static GTFS feed (zip or directory)",
		ArgsUsage: "path",
		Action: func(c *cli.Context) error {
			if c.Args().Len() == 0 {
				return fmt.Errorf("a path to the GTFS feed was not provided")
			}
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.close()

			start := time.Now()
			stats, err := static.NewImporter(e.db, e.clock, e.logger.Named("static")).Import(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			printImportStats(c.App.Writer, stats, time.Since(start))
			return nil
		},
	}
}

func loadRealtimeCommand() *cli.Command {
	return &cli.Command{
		Name:      "load-rt",
		Usage:     "apply GTFS-realtime trip updates from a .pb file, a directory of .pb files or a URL",
		ArgsUsage: "path-or-url",
		Action: func(c *cli.Context) error {
			if c.Args().Len() == 0 {
				return fmt.Errorf("a path or URL to the GTFS realtime feed was not provided")
			}
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.close()

			ingestor := realtime.NewIngestor(e.db, e.clock, e.logger.Named("ingest"), realtime.WithHistory(e.cfg.Retention))
			target := c.Args().First()

			var result realtime.FeedResult
			if isURL(target) {
				result, err = realtime.NewPoller(ingestor, target, e.logger.Named("poller")).Poll(c.Context)
			} else {
				result, err = ingestor.LoadPath(c.Context, target)
			}
			if err != nil {
				return err
			}
			printFeedResult(c.App.Writer, result)
			return nil
		},
	}
}

func nextArrivalCommand() *cli.Command {
	return &cli.Command{
		Name:      "next-arrival",
		Usage:     "find the next arrival of a trip at a stop",
		ArgsUsage: "trip-id stop-sequence",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "earliest",
				Usage: "start of the window, RFC3339 (default now)",
			},
			&cli.DurationFlag{
				Name:  "window",
				Usage: "length of the window",
				Value: 2 * time.Hour,
			},
		},
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 2 {
				return fmt.Errorf("a trip id and a stop sequence are required")
			}
			tripID := c.Args().Get(0)
			seq, err := strconv.Atoi(c.Args().Get(1))
			if err != nil {
				return fmt.Errorf("invalid stop sequence %q", c.Args().Get(1))
			}
			earliest := time.Now()
			if v := c.String("earliest"); v != "" {
				if earliest, err = time.Parse(time.RFC3339, v); err != nil {
					return fmt.Errorf("invalid earliest %q: %w", v, err)
				}
			}
			latest := earliest.Add(c.Duration("window"))

			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.close()

			arrival, err := e.service(nil).FindNextArrival(c.Context, tripID, seq, earliest.UnixMicro(), latest.UnixMicro())
			if err != nil {
				return err
			}
			if arrival == nil {
				color.New(color.FgYellow).Fprintf(c.App.Writer, "No arrival of trip %s at stop %d between %s and %s\n",
					tripID, seq, formatInstant(e.clock, earliest.UnixMicro()), formatInstant(e.clock, latest.UnixMicro()))
				return nil
			}
			fmt.Fprintln(c.App.Writer, formatArrival(e.clock, arrival))
			return nil
		},
	}
}

func scheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "schedule",
		Usage:     "print the effective schedule of a trip instance",
		ArgsUsage: "trip-id start-date",
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 2 {
				return fmt.Errorf("a trip id and a start date (yyyyMMdd) are required")
			}
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.close()

			tripID, startDate := c.Args().Get(0), c.Args().Get(1)
			stops, err := e.service(nil).Schedule(c.Context, tripID, startDate)
			if err != nil {
				return err
			}
			if len(stops) == 0 {
				return fmt.Errorf("trip %s has no stop times", tripID)
			}
			printSchedule(c.App.Writer, e.clock, tripID, startDate, stops)
			return nil
		},
	}
}

func serviceDatesCommand() *cli.Command {
	return &cli.Command{
		Name:      "service-dates",
		Usage:     "list the dates a trip runs between two dates (inclusive)",
		ArgsUsage: "trip-id from to",
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 3 {
				return fmt.Errorf("a trip id and two dates (yyyyMMdd) are required")
			}
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.close()

			dates, err := e.service(nil).ServiceDates(c.Context, c.Args().Get(0), c.Args().Get(1), c.Args().Get(2))
			if err != nil {
				return err
			}
			printServiceDates(c.App.Writer, e.clock, c.Args().Get(0), dates)
			return nil
		},
	}
}

func delaysCommand() *cli.Command {
	return &cli.Command{
		Name:      "delays",
		Usage:     "print the observed delay statistics of a trip",
		ArgsUsage: "trip-id",
		Action: func(c *cli.Context) error {
			if c.Args().Len() == 0 {
				return fmt.Errorf("a trip id is required")
			}
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.close()

			stats, err := e.db.AverageStopDelays(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			printDelays(c.App.Writer, c.Args().First(), stats)
			return nil
		},
	}
}

func cleanupCommand() *cli.Command {
	return &cli.Command{
		Name:  "cleanup",
		Usage: "delete real-time data older than the retention window",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "retention",
				Usage: "override the configured retention",
			},
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.close()

			retention := e.cfg.Retention
			if c.IsSet("retention") {
				retention = c.Duration("retention")
			}
			deleted, err := e.db.Cleanup(c.Context, time.Now(), retention)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Deleted %d rows older than %s\n", deleted, retention)
			return nil
		},
	}
}

func schemaCommand() *cli.Command {
	return &cli.Command{
		Name:  "schema",
		Usage: "print the database schema, e.g. for a Postgres init script",
		Action: func(c *cli.Context) error {
			_, err := fmt.Fprint(c.App.Writer, db.Schema())
			return err
		},
	}
}
