package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/smartcity/racc-dashboard/internal/config"
	"github.com/smartcity/racc-dashboard/internal/domain"
	"github.com/smartcity/racc-dashboard/internal/incident"
	"github.com/smartcity/racc-dashboard/internal/repository/sqlite"
	"github.com/smartcity/racc-dashboard/internal/service"
	"github.com/smartcity/racc-dashboard/internal/session"
)

// cli holds what every command needs once the root pre-run has wired it
type cli struct {
	apiURL    string
	statePath string
	output    string
	verbose   bool

	store    *sqlite.Store
	sessions *session.Manager
	client   *service.APIClient
}

func newRootCmd() *cobra.Command {
	app := &cli{}
	cfg := config.Load()

	root := &cobra.Command{
		Use:           "dashctl",
		Short:         "Command line client for the RACC traffic dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.open(cmd.Context(), cfg)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&app.apiURL, "api-url", cfg.APIURL, "remote API base URL")
	flags.StringVar(&app.statePath, "state", cfg.StatePath, "path of the local state database")
	flags.StringVarP(&app.output, "output", "o", formatJSON, "output format: json or yaml")
	flags.BoolVarP(&app.verbose, "verbose", "v", false, "log requests to stderr")

	root.AddCommand(
		app.loginCmd(),
		app.logoutCmd(),
		app.whoamiCmd(),
		app.incidentsCmd(),
		app.datasetsCmd(),
		app.askCmd(),
	)
	return root
}

func (a *cli) open(ctx context.Context, cfg *config.Config) error {
	if a.output != formatJSON && a.output != formatYAML {
		return fmt.Errorf("unknown output format %q (want json or yaml)", a.output)
	}

	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	store, err := sqlite.Open(ctx, a.statePath)
	if err != nil {
		return err
	}
	a.store = store
	a.sessions = session.NewManager(session.Options{
		BaseURL:    a.apiURL,
		HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout},
		Store:      store,
		Logger:     logger,
		CookieMode: cfg.AuthMode == config.AuthModeCookie,
	})
	a.client = service.NewAPIClient(a.sessions)
	return nil
}

func (a *cli) close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

func (a *cli) print(cmd *cobra.Command, data any) error {
	return render(cmd.OutOrStdout(), a.output, data)
}

func (a *cli) loginCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("RACC_PASSWORD")
			}
			if username == "" || password == "" {
				return errors.New("username and password are required (--password or RACC_PASSWORD)")
			}
			if !a.sessions.Login(cmd.Context(), username, password) {
				return errors.New("login failed: invalid credentials or API unreachable")
			}
			return a.print(cmd, a.sessions.Info())
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (defaults to $RACC_PASSWORD)")
	return cmd
}

func (a *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.sessions.Restore(cmd.Context())
			a.sessions.Logout(cmd.Context())
			return a.print(cmd, a.sessions.Info())
		},
	}
}

func (a *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.sessions.Restore(cmd.Context())
			return a.print(cmd, a.sessions.Info())
		},
	}
}

func (a *cli) incidentsCmd() *cobra.Command {
	var (
		params  incident.CriteriaParams
		top     int
		summary bool
	)
	cmd := &cobra.Command{
		Use:   "incidents",
		Short: "Fetch incidents and show the filtered view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			criteria, err := incident.ParseCriteria(params)
			if err != nil {
				return err
			}
			a.sessions.Restore(cmd.Context())

			incidents, err := a.client.FetchIncidents(cmd.Context())
			if err != nil {
				return err
			}
			view := incident.View(incidents, criteria, top, time.Now())
			if summary {
				return a.print(cmd, view.Aggregate)
			}
			return a.print(cmd, view)
		},
	}
	f := cmd.Flags()
	f.StringVar(&params.Area, "area", "all", "all, region or metro-area")
	f.StringVar(&params.From, "from", "", "first day or instant (YYYY-MM-DD or RFC 3339)")
	f.StringVar(&params.To, "to", "", "last day or instant, inclusive")
	f.StringVar(&params.RoadClass, "road-class", "", "motorway, national, secondary or local")
	f.StringVar(&params.Kind, "kind", "", "congestion, roadworks, weather or accident")
	f.StringVar(&params.Road, "road", "", "only this road")
	f.IntVar(&top, "top", incident.DefaultRankingSize, "ranking size, 0 for every road")
	f.BoolVar(&summary, "summary", false, "print only the aggregate")
	return cmd
}

func (a *cli) datasetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "datasets",
		Aliases: []string{"ds"},
		Short:   "Manage dataset metadata",
	}

	var query string
	list := &cobra.Command{
		Use:   "list",
		Short: "List datasets, optionally filtered by a search term",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			datasets, err := service.NewDatasetService(a.client).Search(cmd.Context(), query)
			if err != nil {
				return err
			}
			return a.print(cmd, datasets)
		},
	}
	list.Flags().StringVarP(&query, "query", "q", "", "search title, description and category")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			d, err := service.NewDatasetService(a.client).Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.print(cmd, d)
		},
	}

	var fields domain.Dataset
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a dataset (requires login)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.sessions.Restore(cmd.Context())
			d, err := service.NewDatasetService(a.client).Create(cmd.Context(), fields)
			if err != nil {
				return err
			}
			return a.print(cmd, d)
		},
	}
	datasetFlags(create, &fields)

	var updates domain.Dataset
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a dataset; unset flags keep their current value (requires login)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a.sessions.Restore(cmd.Context())
			svc := service.NewDatasetService(a.client)
			current, err := svc.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			merged := mergeDataset(current, updates, cmd)
			d, err := svc.Update(cmd.Context(), id, merged)
			if err != nil {
				return err
			}
			return a.print(cmd, d)
		},
	}
	datasetFlags(update, &updates)

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a dataset (requires login)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a.sessions.Restore(cmd.Context())
			if err := service.NewDatasetService(a.client).Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Deleted dataset %d\n", id)
			return nil
		},
	}

	cmd.AddCommand(list, get, create, update, del)
	return cmd
}

func datasetFlags(cmd *cobra.Command, d *domain.Dataset) {
	f := cmd.Flags()
	f.StringVar(&d.Title, "title", "", "title")
	f.StringVar(&d.Description, "description", "", "description")
	f.StringVar(&d.Format, "format", "", "format, e.g. CSV or XML")
	f.StringVar(&d.LastUpdate, "last-update", "", "last update date")
	f.StringVar(&d.Category, "category", "", "category")
	f.StringVar(&d.Coverage, "coverage", "", "geographic coverage")
	f.StringVar(&d.Link, "link", "", "source URL")
}

// mergeDataset applies the flags the user set on top of current
func mergeDataset(current, updates domain.Dataset, cmd *cobra.Command) domain.Dataset {
	set := func(name string, dst *string, v string) {
		if cmd.Flags().Changed(name) {
			*dst = v
		}
	}
	set("title", &current.Title, updates.Title)
	set("description", &current.Description, updates.Description)
	set("format", &current.Format, updates.Format)
	set("last-update", &current.LastUpdate, updates.LastUpdate)
	set("category", &current.Category, updates.Category)
	set("coverage", &current.Coverage, updates.Coverage)
	set("link", &current.Link, updates.Link)
	return current
}

func (a *cli) askCmd() *cobra.Command {
	var fileType string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the document assistant",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := args[0]
			for _, w := range args[1:] {
				question += " " + w
			}
			assistant := service.NewAssistant(a.client, slog.New(slog.NewTextHandler(io.Discard, nil)))
			resp, err := assistant.Ask(cmd.Context(), domain.AskRequest{Question: question, FileType: fileType})
			if err != nil {
				return err
			}
			return a.print(cmd, resp)
		},
	}
	cmd.Flags().StringVar(&fileType, "file-type", "all", "restrict to all, csv, pdf, json or xml")
	return cmd
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid dataset id %q", s)
	}
	return id, nil
}
