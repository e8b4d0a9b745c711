package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"aerialplan/internal/config"
	"aerialplan/internal/fsutil"
	"aerialplan/internal/geo"
	"aerialplan/internal/optics"
	"aerialplan/internal/pipeline"
	"aerialplan/internal/planner"
	"aerialplan/internal/storage"
)

// NewRootCmd creates the root Cobra command
func NewRootCmd(cfg *config.Config, log *slog.Logger, store *storage.Store, svc *planner.Service, pipe *pipeline.Pipeline) *cobra.Command {
	return newRootCmd(NewRoot(pipe, svc, cfg, log, store))
}

func newRootCmd(root *Root) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "aerialplan",
		Short: "aerialplan plans drone photogrammetry missions",
		Long: `aerialplan computes camera optics and waypoint missions for orbit, spiral,
facade and area survey captures, relative to a takeoff origin.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newOpticsCmd(root))
	rootCmd.AddCommand(newPlanCmd(root))
	rootCmd.AddCommand(newSubmitCmd(root))
	rootCmd.AddCommand(newServeCmd(root))
	rootCmd.AddCommand(newWatchCmd(root))
	rootCmd.AddCommand(newOriginCmd(root))
	rootCmd.AddCommand(newHistoryCmd(root))
	rootCmd.AddCommand(newConfigCmd(root))
	rootCmd.AddCommand(newVersionCmd(root))

	return rootCmd
}

func newOpticsCmd(root *Root) *cobra.Command {
	var (
		req        planner.OpticsRequest
		cameraFile string
		listOnly   bool
	)

	cmd := &cobra.Command{
		Use:   "optics",
		Short: "Compute GSD, footprint, field of view and depth of field",
		Long: `Evaluate a camera at a working distance. The camera is a named preset or a
JSON camera spec file; the distance is --altitude or derived from --target-gsd.

Examples:
  aerialplan optics --preset phantom4pro --altitude 80
  aerialplan optics --camera camera.json --target-gsd 1.5
  aerialplan optics --list`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if listOnly {
				for _, name := range optics.PresetNames() {
					cam, _ := optics.Preset(name)
					fmt.Fprintf(out, "%-16s %s\n", name, cam.Name)
				}
				return nil
			}
			if cameraFile != "" {
				data, err := os.ReadFile(cameraFile)
				if err != nil {
					return err
				}
				var cam optics.CameraSpec
				if err := json.Unmarshal(data, &cam); err != nil {
					return fmt.Errorf("decode %s: %w", cameraFile, err)
				}
				req.Camera = &cam
			}
			res, err := planner.ComputeOptics(req, root.settings())
			if err != nil {
				return err
			}
			return writeJSON(out, res)
		},
	}

	cmd.Flags().StringVar(&req.Preset, "preset", "", "camera preset name (see --list), config default if empty")
	cmd.Flags().StringVar(&cameraFile, "camera", "", "JSON camera spec file")
	cmd.Flags().Float64Var(&req.Altitude, "altitude", 0, "working distance in metres")
	cmd.Flags().Float64Var(&req.TargetGSD, "target-gsd", 0, "target ground sampling distance in cm/px")
	cmd.Flags().Float64Var(&req.FocusDistance, "focus", 0, "focus distance in metres, defaults to the working distance")
	cmd.Flags().BoolVar(&listOnly, "list", false, "list camera presets")

	return cmd
}

// geodeticPlan adds WGS-84 positions to a plan for export.
type geodeticPlan struct {
	planner.Result
	Geodetic []geo.Geodetic `json:"geodetic"`
}

func newPlanCmd(root *Root) *cobra.Command {
	var (
		output   string
		geodetic bool
	)

	cmd := &cobra.Command{
		Use:   "plan <request.plan.json|->",
		Short: "Plan a mission and print or save it",
		Long: `Run one planning request through the job pipeline and wait for the result.
The plan is recorded in history like any other job.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readRequest(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			res, err := root.enqueueAndWait(cmd.Context(), pipeline.Job{Source: "cli", Request: req})
			if err != nil {
				return err
			}

			var doc any = res.Plan
			if geodetic {
				ref, err := root.pipeline.Origin()
				if err != nil {
					return err
				}
				gp := geodeticPlan{Result: res.Plan, Geodetic: make([]geo.Geodetic, len(res.Plan.Waypoints))}
				for i, wp := range res.Plan.Waypoints {
					if gp.Geodetic[i], err = ref.ToGeodetic(wp.Position); err != nil {
						return err
					}
				}
				doc = gp
			}

			if output == "" {
				return writeJSON(cmd.OutOrStdout(), doc)
			}
			data, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return err
			}
			if err := fsutil.WriteFileAtomic(output, append(data, '\n'), 0644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d waypoints, %.0f m, %.0f s -> %s\n",
				res.Job.ID, len(res.Plan.Waypoints), res.Plan.Stats.TotalDistance, res.Plan.Stats.EstimatedTime, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the plan to this file instead of stdout")
	cmd.Flags().BoolVar(&geodetic, "geodetic", false, "include WGS-84 positions for every waypoint")

	return cmd
}

func newSubmitCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <request.plan.json>...",
		Short: "Queue planning requests without waiting",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				req, err := readRequest(path, cmd.InOrStdin())
				if err != nil {
					return err
				}
				job, err := root.enqueue(cmd.Context(), pipeline.Job{Source: "cli", Request: req})
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", job.ID, job.Pattern(), path)
			}
			return nil
		},
	}
}

func newServeCmd(root *Root) *cobra.Command {
	var (
		addr     string
		watchDir string
		noWatch  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start an HTTP server for planning, job history, origin management and live
job events. The request directory is watched alongside unless --no-watch is given.

Examples:
  # API only
  aerialplan serve --addr :8080 --no-watch

  # API plus re-planning of ./missions/*.plan.json
  aerialplan serve --watch ./missions`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if noWatch {
				watchDir = ""
			}
			root.log.Info("starting server", "addr", addr, "watch_dir", watchDir)
			return root.serveFn(ctx, addr, watchDir)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", root.cfg.Server.Addr, "listen address")
	cmd.Flags().StringVar(&watchDir, "watch", root.cfg.Paths.WatchDir, "directory of *.plan.json requests")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not watch for request files")

	return cmd
}

func newWatchCmd(root *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [dir]",
		Short: "Re-plan request files whenever they change",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := root.cfg.Paths.WatchDir
			if len(args) == 1 {
				dir = args[0]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			results, unsubscribe := root.pipeline.Subscribe()
			defer unsubscribe()
			go func() {
				for res := range results {
					if res.Error != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: %v\n", res.Job.ID, res.Job.Request.Name, res.Error)
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d waypoints\n", res.Job.ID, res.Job.Request.Name, len(res.Plan.Waypoints))
				}
			}()
			return root.watchFn(ctx, dir)
		},
	}
}

func newOriginCmd(root *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "origin",
		Short: "Show or set the mission takeoff origin",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current origin and generation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := root.pipeline.Origin()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), ref)
		},
	}

	var o geo.Origin
	addOriginFlags := func(c *cobra.Command) {
		c.Flags().Float64Var(&o.Latitude, "lat", 0, "latitude in degrees")
		c.Flags().Float64Var(&o.Longitude, "lon", 0, "longitude in degrees")
		c.Flags().Float64Var(&o.AltitudeMSL, "alt", 0, "altitude above mean sea level in metres")
		c.MarkFlagRequired("lat")
		c.MarkFlagRequired("lon")
	}

	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Set the takeoff origin (fails if one exists)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := root.pipeline.SetOrigin(o)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), ref)
		},
	}
	addOriginFlags(setCmd)

	reoriginCmd := &cobra.Command{
		Use:   "reorigin",
		Short: "Move the takeoff origin; earlier plans become stale",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := root.pipeline.Reorigin(o)
			if err != nil {
				return err
			}
			root.log.Warn("origin moved", "generation", ref.Generation)
			return writeJSON(cmd.OutOrStdout(), ref)
		},
	}
	addOriginFlags(reoriginCmd)

	cmd.AddCommand(showCmd, setCmd, reoriginCmd)
	return cmd
}

func newHistoryCmd(root *Root) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent planning jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := root.store.RecentJobs(limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPATTERN\tSTATUS\tGEN\tSTALE\tCREATED")
			for _, rec := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%t\t%s\n",
					rec.ID, rec.Name, rec.Pattern, rec.Status, rec.Generation, rec.Stale, rec.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of jobs to list")

	showCmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Print a stored job and its waypoints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := root.store.Job(args[0])
			if err != nil {
				return err
			}
			doc := struct {
				Job    storage.JobRecord     `json:"job"`
				Result *storage.ResultRecord `json:"result,omitempty"`
			}{Job: rec}
			if rec.Status == "completed" {
				res, err := root.store.JobResult(rec.ID)
				if err != nil {
					return err
				}
				doc.Result = &res
			}
			return writeJSON(cmd.OutOrStdout(), doc)
		},
	}
	cmd.AddCommand(showCmd)

	return cmd
}
