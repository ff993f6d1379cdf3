package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"server-browser/internal/browser"
	"server-browser/internal/config"
	"server-browser/internal/database"
	"server-browser/internal/domain"
	"server-browser/internal/logger"
	"server-browser/internal/masterlist"
	"server-browser/internal/query"
	"server-browser/internal/repository"
	"server-browser/internal/servers"
)

var verbose bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type ctlApp struct {
	cfg    *config.Config
	db     *sql.DB
	engine *browser.Browser
	logger zerolog.Logger
}

// newApp wires the directory engine the same way the daemon does. The
// caller must defer app.Close().
func newApp() (*ctlApp, error) {
	level := "warn"
	if verbose {
		level = "debug"
	}
	log := logger.SetLevel(level)

	cfg, err := config.Load(log)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	db, err := database.New(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	engine, err := browser.New(
		masterlist.NewFetcher(cfg, log),
		query.NewClient(cfg, log),
		repository.NewFavoritesRepository(db, log),
		repository.NewSessionRepository(db, log),
		log,
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing engine: %w", err)
	}

	return &ctlApp{cfg: cfg, db: db, engine: engine, logger: log}, nil
}

func (a *ctlApp) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("error closing database")
	}
}

func newTable(header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetHeaderLine(false)
	table.SetHeader(header)
	return table
}

var rootCmd = &cobra.Command{
	Use:   "browserctl",
	Short: "Query and manage the server directory",
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Refresh the directory and list servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		criteria, sortBy, err := criteriaFromFlags(cmd, a.cfg.Browse)
		if err != nil {
			return err
		}

		_, stats, err := a.engine.Refresh(cmd.Context())
		if err != nil {
			return fmt.Errorf("refreshing: %w", err)
		}

		view, err := a.engine.View(criteria, sortBy)
		if err != nil {
			return err
		}

		if view.Len() == 0 {
			fmt.Println("No servers matched.")
		} else {
			data := [][]string{}
			for i := 0; i < view.Len(); i++ {
				rec := view.At(i)
				ping := "-"
				if rec.Queried() {
					ping = rec.Ping.Truncate(time.Millisecond).String()
				}
				data = append(data, []string{
					rec.Name,
					rec.Map,
					rec.Mode().String(),
					rec.Region.String(),
					fmt.Sprintf("%d/%d", rec.Players, rec.MaxPlayers),
					ping,
					strconv.FormatUint(uint64(rec.BuildID), 10),
					flagSummary(rec),
					rec.Validity.String(),
					rec.Addr(),
				})
			}

			table := newTable("NAME", "MAP", "MODE", "REGION", "PLAYERS", "PING", "BUILD", "FLAGS", "STATUS", "ADDRESS")
			table.AppendBulk(data)
			table.Render()
		}

		fmt.Printf("\n%d of %d servers responded (%d shown) in %s\n",
			stats.Fresh, stats.Total, view.Len(), stats.Duration.Truncate(time.Millisecond))
		return nil
	},
}

func flagSummary(rec *domain.Server) string {
	parts := []string{}
	if rec.PasswordProtected {
		parts = append(parts, "pw")
	}
	if rec.BattlEye {
		parts = append(parts, "be")
	}
	if rec.Modded() {
		parts = append(parts, "mod")
	}
	return strings.Join(parts, ",")
}

// criteriaFromFlags starts from the configured browse defaults and
// overrides whatever was set on the command line.
func criteriaFromFlags(cmd *cobra.Command, defaults config.BrowseDefaults) (servers.FilterCriteria, servers.SortCriteria, error) {
	criteria := defaults.FilterCriteria()
	sortBy := defaults.SortBy
	flags := cmd.Flags()

	criteria.Name, _ = flags.GetString("name")
	criteria.Map, _ = flags.GetString("map")

	if v, _ := flags.GetString("type"); v != "" {
		t, err := domain.ParseTypeFilter(v)
		if err != nil {
			return criteria, sortBy, fmt.Errorf("--type: %w", err)
		}
		criteria.Type = t
	}
	if v, _ := flags.GetString("mode"); v != "" {
		mode, err := domain.ParseMode(v)
		if err != nil {
			return criteria, sortBy, fmt.Errorf("--mode: %w", err)
		}
		criteria.Mode = &mode
	}
	if v, _ := flags.GetString("region"); v != "" {
		region, err := domain.ParseRegion(v)
		if err != nil {
			return criteria, sortBy, fmt.Errorf("--region: %w", err)
		}
		criteria.Region = &region
	}
	if flags.Changed("build") {
		build, _ := flags.GetUint32("build")
		criteria.BuildID = &build
	}
	if v, _ := flags.GetString("battleye"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return criteria, sortBy, fmt.Errorf("--battleye: %w", err)
		}
		criteria.BattlEye = &on
	}
	if flags.Changed("include-invalid") {
		criteria.IncludeInvalid, _ = flags.GetBool("include-invalid")
	}
	if flags.Changed("include-password") {
		criteria.IncludePasswordProtected, _ = flags.GetBool("include-password")
	}
	if flags.Changed("include-modded") {
		criteria.IncludeModded, _ = flags.GetBool("include-modded")
	}
	if v, _ := flags.GetString("sort"); v != "" {
		var err error
		if sortBy, err = servers.ParseSortCriteria(v); err != nil {
			return criteria, sortBy, fmt.Errorf("--sort: %w", err)
		}
	}

	return criteria, sortBy, nil
}

// ping command
var pingCmd = &cobra.Command{
	Use:   "ping HOST:PORT",
	Short: "Query a single server directly",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.engine.Ping(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("no reply from %s: %w", args[0], err)
		}

		fmt.Printf("Name:     %s\n", rec.Name)
		fmt.Printf("Map:      %s\n", rec.Map)
		fmt.Printf("Players:  %d/%d\n", rec.Players, rec.MaxPlayers)
		fmt.Printf("Build:    %d (%s)\n", rec.BuildID, rec.Validity)
		fmt.Printf("Ping:     %s\n", rec.Ping.Truncate(time.Millisecond))
		if rec.PasswordProtected {
			fmt.Println("Password: required")
		}
		if rec.BattlEye {
			fmt.Println("BattlEye: required")
		}
		if rec.Modded() {
			fmt.Printf("Mods:     %s\n", strings.Join(rec.Mods, ", "))
		}
		return nil
	},
}

// favorites commands
var favoritesCmd = &cobra.Command{
	Use:   "favorites",
	Short: "Manage favorite servers",
}

var favoritesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List favorites",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		favs, err := a.engine.Favorites(cmd.Context())
		if err != nil {
			return err
		}
		if len(favs) == 0 {
			fmt.Println("No favorites stored.")
			return nil
		}

		data := [][]string{}
		for _, fav := range favs {
			data = append(data, []string{fav.Address, fav.Name})
		}
		table := newTable("ADDRESS", "NAME")
		table.AppendBulk(data)
		table.Render()
		return nil
	},
}

var favoritesAddCmd = &cobra.Command{
	Use:   "add HOST:PORT [NAME]",
	Short: "Add or rename a favorite",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		fav := domain.FavoriteServer{Address: args[0]}
		if len(args) > 1 {
			fav.Name = args[1]
		}
		if err := a.engine.AddFavorite(cmd.Context(), fav); err != nil {
			return err
		}

		fmt.Printf("Favorite saved: %s\n", fav.Address)
		return nil
	},
}

var favoritesRemoveCmd = &cobra.Command{
	Use:   "remove HOST:PORT",
	Short: "Remove a favorite",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.engine.RemoveFavorite(cmd.Context(), args[0]); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("no favorite stored for %s", args[0])
			}
			return err
		}

		fmt.Printf("Favorite removed: %s\n", args[0])
		return nil
	},
}

// sessions command
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Show recent joins",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		sessions, err := a.engine.RecentSessions(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No joins recorded.")
			return nil
		}

		data := [][]string{}
		for _, sess := range sessions {
			name := sess.ServerName
			if name == "" {
				name = "-"
			}
			data = append(data, []string{
				sess.ConnectedAt.Local().Format("2006-01-02 15:04:05"),
				sess.Address,
				name,
			})
		}
		table := newTable("CONNECTED", "ADDRESS", "NAME")
		table.AppendBulk(data)
		table.Render()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	listCmd.Flags().String("name", "", "Only servers whose name contains this text")
	listCmd.Flags().String("map", "", "Only servers whose map contains this text")
	listCmd.Flags().String("type", "", "Server type: all, official, private or favorites")
	listCmd.Flags().String("mode", "", "Exact mode: official, hosted or community")
	listCmd.Flags().String("region", "", "Exact region, e.g. eu or na-east")
	listCmd.Flags().Uint32("build", 0, "Exact build id")
	listCmd.Flags().String("battleye", "", "Require BattlEye: true or false")
	listCmd.Flags().Bool("include-invalid", false, "Show unreachable and outdated servers")
	listCmd.Flags().Bool("include-password", false, "Show password-protected servers")
	listCmd.Flags().Bool("include-modded", false, "Show modded servers")
	listCmd.Flags().String("sort", "", "Sort key: Name, Map, Mode or Region; prefix with - for descending")

	favoritesCmd.AddCommand(favoritesListCmd)
	favoritesCmd.AddCommand(favoritesAddCmd)
	favoritesCmd.AddCommand(favoritesRemoveCmd)

	sessionsCmd.Flags().IntP("limit", "n", 20, "Maximum number of joins to show")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(favoritesCmd)
	rootCmd.AddCommand(sessionsCmd)
}
