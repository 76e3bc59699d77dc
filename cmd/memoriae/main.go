package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"memoriae/internal/app"
	"memoriae/internal/config"
	"memoriae/internal/database"
	"memoriae/internal/memoriae"
	"memoriae/internal/server"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "capture", "serve").
func newApp(operation string) (*app.App, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.New(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// readPassphrase prompts on stderr and reads a passphrase without echo.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(pass), nil
}

func printSeed(state *memoriae.SeedState) {
	fmt.Printf("Seed:     %s\n", state.SeedID)
	fmt.Printf("Content:  %s\n", state.Content)
	if len(state.Tags) > 0 {
		names := make([]string, 0, len(state.Tags))
		for _, t := range state.Tags {
			names = append(names, t.Name)
		}
		fmt.Printf("Tags:     %s\n", strings.Join(names, ", "))
	}
	if state.Category != nil {
		fmt.Printf("Category: %s\n", state.Category.Path)
	}
	fmt.Printf("Modified: %s\n", state.LastModified.Format("2006-01-02 15:04:05"))
}

func printSprout(state *memoriae.SproutState) {
	fmt.Printf("Sprout:   %s\n", state.SproutID)
	fmt.Printf("Seed:     %s\n", state.SeedID)
	fmt.Printf("Kind:     %s\n", state.Kind)
	if state.Title != "" {
		fmt.Printf("Title:    %s\n", state.Title)
	}
	if state.Content != "" {
		fmt.Printf("Content:  %s\n", state.Content)
	}
	if state.Dismissed {
		fmt.Println("Status:   dismissed")
	} else if state.SnoozedUntil != nil {
		fmt.Printf("Status:   snoozed until %s\n", state.SnoozedUntil.Format("2006-01-02 15:04:05"))
	}
}

var rootCmd = &cobra.Command{
	Use:   "memoriae",
	Short: "Personal knowledge capture with event-sourced history",
}

// config command

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Listen Addr: %s\n", cfg.Server.ListenAddr)
		fmt.Printf("Database:    %s\n", cfg.Database.Type)
		fmt.Printf("Archive:     %s\n", cfg.Archive.Type)
		return nil
	},
}

// migrate command

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Bring the database schema up to date",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		if err := database.MigrateFromConfig(cfg.Database); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}

		fmt.Println("Database schema is up to date.")
		return nil
	},
}

// keys command

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage archive encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the archive encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("keys-init")
		if err != nil {
			return err
		}
		defer a.Close()

		if a.Encryptor().IsConfigured() {
			return fmt.Errorf("encryption keys already exist")
		}

		pass, err := readPassphrase("Passphrase for private key: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if pass != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := a.Encryptor().Setup(pass); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}

		fmt.Println("Encryption keys generated.")
		return nil
	},
}

// serve command

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("serve")
		if err != nil {
			return err
		}
		defer a.Close()

		addr := a.Config().Server.ListenAddr
		srv := server.New(a.Service(), nil)

		fmt.Printf("Listening on %s\n", addr)
		return http.ListenAndServe(addr, srv.Handler())
	},
}

// capture command

var captureCmd = &cobra.Command{
	Use:   "capture CONTENT",
	Short: "Capture a new seed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		automation, _ := cmd.Flags().GetString("automation")

		a, err := newApp("capture")
		if err != nil {
			return err
		}
		defer a.Close()

		state, err := a.Service().CaptureSeed(context.Background(), args[0], automation)
		if err != nil {
			return fmt.Errorf("capturing seed: %w", err)
		}

		fmt.Printf("Captured seed %s\n", state.SeedID)
		return nil
	},
}

// seed command

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Inspect and edit seeds",
}

var seedListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all seeds",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("seed-list")
		if err != nil {
			return err
		}
		defer a.Close()

		states, err := a.Service().ListSeeds(context.Background())
		if err != nil {
			return err
		}

		if len(states) == 0 {
			fmt.Println("No seeds captured.")
			return nil
		}

		for _, s := range states {
			content := s.Content
			if len(content) > 60 {
				content = content[:57] + "..."
			}
			fmt.Printf("%s  %s  %s\n", s.SeedID, s.LastModified.Format("2006-01-02 15:04"), content)
		}
		return nil
	},
}

var seedShowCmd = &cobra.Command{
	Use:   "show SEED",
	Short: "Show a seed's current state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		at, _ := cmd.Flags().GetString("at")

		a, err := newApp("seed-show")
		if err != nil {
			return err
		}
		defer a.Close()

		var state *memoriae.SeedState
		if at != "" {
			cutoff, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return fmt.Errorf("invalid --at value (want RFC3339): %w", err)
			}
			state, err = a.Service().SeedStateAt(context.Background(), args[0], cutoff)
			if err != nil {
				return err
			}
		} else {
			state, err = a.Service().SeedState(context.Background(), args[0])
			if err != nil {
				return err
			}
		}

		printSeed(state)
		return nil
	},
}

var seedEditCmd = &cobra.Command{
	Use:   "edit SEED CONTENT",
	Short: "Replace a seed's content",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		automation, _ := cmd.Flags().GetString("automation")

		a, err := newApp("seed-edit")
		if err != nil {
			return err
		}
		defer a.Close()

		state, err := a.Service().EditSeedContent(context.Background(), args[0], args[1], automation)
		if err != nil {
			return err
		}

		printSeed(state)
		return nil
	},
}

var seedTimelineCmd = &cobra.Command{
	Use:   "timeline SEED",
	Short: "Show a seed's grouped history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("seed-timeline")
		if err != nil {
			return err
		}
		defer a.Close()

		groups, err := a.Service().SeedTimeline(context.Background(), args[0])
		if err != nil {
			return err
		}

		for _, g := range groups {
			count := ""
			if g.Count > 1 {
				count = fmt.Sprintf(" (%d)", g.Count)
			}
			fmt.Printf("%s  %-24s%s  %s\n", g.Timestamp.Format("2006-01-02 15:04"), g.Title, count, g.Content)
		}
		return nil
	},
}

// tag command

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage tags",
}

var tagNewCmd = &cobra.Command{
	Use:   "new NAME",
	Short: "Create a tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		colorFlag, _ := cmd.Flags().GetString("color")

		a, err := newApp("tag-new")
		if err != nil {
			return err
		}
		defer a.Close()

		var color *string
		if colorFlag != "" {
			color = &colorFlag
		}

		state, err := a.Service().CreateTag(context.Background(), args[0], color)
		if err != nil {
			return err
		}

		fmt.Printf("Created tag %s (%s)\n", state.Name, state.TagID)
		return nil
	},
}

var tagListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tags",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("tag-list")
		if err != nil {
			return err
		}
		defer a.Close()

		states, err := a.Service().ListTags(context.Background())
		if err != nil {
			return err
		}

		if len(states) == 0 {
			fmt.Println("No tags.")
			return nil
		}

		for _, t := range states {
			color := ""
			if t.Color != nil {
				color = "  [" + *t.Color + "]"
			}
			fmt.Printf("%s  %s%s\n", t.TagID, t.Name, color)
		}
		return nil
	},
}

var tagRenameCmd = &cobra.Command{
	Use:   "rename TAG NAME",
	Short: "Rename a tag",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("tag-rename")
		if err != nil {
			return err
		}
		defer a.Close()

		state, err := a.Service().RenameTag(context.Background(), args[0], args[1])
		if err != nil {
			return err
		}

		fmt.Printf("Tag %s renamed to %s\n", state.TagID, state.Name)
		return nil
	},
}

var tagColorCmd = &cobra.Command{
	Use:   "color TAG [COLOR]",
	Short: "Set or clear a tag's color",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("tag-color")
		if err != nil {
			return err
		}
		defer a.Close()

		var color *string
		if len(args) == 2 {
			color = &args[1]
		}

		state, err := a.Service().SetTagColor(context.Background(), args[0], color)
		if err != nil {
			return err
		}

		if state.Color != nil {
			fmt.Printf("Tag %s color set to %s\n", state.TagID, *state.Color)
		} else {
			fmt.Printf("Tag %s color cleared\n", state.TagID)
		}
		return nil
	},
}

var tagAddCmd = &cobra.Command{
	Use:   "add SEED TAG",
	Short: "Attach a tag to a seed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		automation, _ := cmd.Flags().GetString("automation")

		a, err := newApp("tag-add")
		if err != nil {
			return err
		}
		defer a.Close()

		state, err := a.Service().AddSeedTag(context.Background(), args[0], args[1], automation)
		if err != nil {
			return err
		}

		printSeed(state)
		return nil
	},
}

var tagRmCmd = &cobra.Command{
	Use:   "rm SEED TAG",
	Short: "Detach a tag from a seed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		automation, _ := cmd.Flags().GetString("automation")

		a, err := newApp("tag-rm")
		if err != nil {
			return err
		}
		defer a.Close()

		state, err := a.Service().RemoveSeedTag(context.Background(), args[0], args[1], automation)
		if err != nil {
			return err
		}

		printSeed(state)
		return nil
	},
}

// category command

var categoryCmd = &cobra.Command{
	Use:   "category",
	Short: "Manage seed categories",
}

var categorySetCmd = &cobra.Command{
	Use:   "set SEED CATEGORY_ID NAME PATH",
	Short: "Set a seed's category",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		automation, _ := cmd.Flags().GetString("automation")

		a, err := newApp("category-set")
		if err != nil {
			return err
		}
		defer a.Close()

		category := memoriae.CategoryRef{ID: args[1], Name: args[2], Path: args[3]}
		state, err := a.Service().SetSeedCategory(context.Background(), args[0], category, automation)
		if err != nil {
			return err
		}

		printSeed(state)
		return nil
	},
}

var categoryRmCmd = &cobra.Command{
	Use:   "rm SEED CATEGORY_ID",
	Short: "Clear a seed's category",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		automation, _ := cmd.Flags().GetString("automation")

		a, err := newApp("category-rm")
		if err != nil {
			return err
		}
		defer a.Close()

		state, err := a.Service().RemoveSeedCategory(context.Background(), args[0], args[1], automation)
		if err != nil {
			return err
		}

		printSeed(state)
		return nil
	},
}

// sprout command

var sproutCmd = &cobra.Command{
	Use:   "sprout",
	Short: "Manage sprouts attached to seeds",
}

var sproutAddCmd = &cobra.Command{
	Use:   "add SEED KIND",
	Short: "Attach a sprout to a seed",
	Long:  "KIND is one of: followup, musing, wikipedia_reference, extra_context, fact_check.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		content, _ := cmd.Flags().GetString("content")
		automation, _ := cmd.Flags().GetString("automation")

		a, err := newApp("sprout-add")
		if err != nil {
			return err
		}
		defer a.Close()

		state, err := a.Service().AttachSprout(context.Background(), args[0], memoriae.SproutKind(args[1]), title, content, automation)
		if err != nil {
			return err
		}

		printSprout(state)
		return nil
	},
}

var sproutListCmd = &cobra.Command{
	Use:   "list SEED",
	Short: "List a seed's sprouts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("sprout-list")
		if err != nil {
			return err
		}
		defer a.Close()

		states, err := a.Service().SeedSprouts(context.Background(), args[0])
		if err != nil {
			return err
		}

		if len(states) == 0 {
			fmt.Println("No sprouts.")
			return nil
		}

		for _, s := range states {
			status := ""
			if s.Dismissed {
				status = "  [dismissed]"
			} else if s.SnoozedUntil != nil {
				status = "  [snoozed]"
			}
			fmt.Printf("%s  %-20s  %s%s\n", s.SproutID, s.Kind, s.Title, status)
		}
		return nil
	},
}

var sproutShowCmd = &cobra.Command{
	Use:   "show SPROUT",
	Short: "Show a sprout's current state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("sprout-show")
		if err != nil {
			return err
		}
		defer a.Close()

		state, err := a.Service().SproutState(context.Background(), args[0])
		if err != nil {
			return err
		}

		printSprout(state)
		return nil
	},
}

var sproutEditCmd = &cobra.Command{
	Use:   "edit SPROUT",
	Short: "Edit a sprout's title or content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		automation, _ := cmd.Flags().GetString("automation")

		var title, content *string
		if cmd.Flags().Changed("title") {
			v, _ := cmd.Flags().GetString("title")
			title = &v
		}
		if cmd.Flags().Changed("content") {
			v, _ := cmd.Flags().GetString("content")
			content = &v
		}

		a, err := newApp("sprout-edit")
		if err != nil {
			return err
		}
		defer a.Close()

		state, err := a.Service().EditSprout(context.Background(), args[0], title, content, automation)
		if err != nil {
			return err
		}

		printSprout(state)
		return nil
	},
}

var sproutDismissCmd = &cobra.Command{
	Use:   "dismiss SPROUT",
	Short: "Dismiss a sprout permanently",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		automation, _ := cmd.Flags().GetString("automation")

		a, err := newApp("sprout-dismiss")
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.Service().DismissSprout(context.Background(), args[0], automation); err != nil {
			return err
		}

		fmt.Printf("Sprout %s dismissed\n", args[0])
		return nil
	},
}

var sproutSnoozeCmd = &cobra.Command{
	Use:   "snooze SPROUT UNTIL",
	Short: "Snooze a sprout until a time (RFC3339)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		automation, _ := cmd.Flags().GetString("automation")

		until, err := time.Parse(time.RFC3339, args[1])
		if err != nil {
			return fmt.Errorf("invalid UNTIL value (want RFC3339): %w", err)
		}

		a, err := newApp("sprout-snooze")
		if err != nil {
			return err
		}
		defer a.Close()

		state, err := a.Service().SnoozeSprout(context.Background(), args[0], until, automation)
		if err != nil {
			return err
		}

		fmt.Printf("Sprout %s snoozed until %s\n", state.SproutID, state.SnoozedUntil.Format("2006-01-02 15:04:05"))
		return nil
	},
}

// export / restore commands

var exportCmd = &cobra.Command{
	Use:   "export SEED",
	Short: "Archive a seed's complete history to the vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("export")
		if err != nil {
			return err
		}
		defer a.Close()

		version, err := a.Service().ExportSeed(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("exporting seed: %w", err)
		}

		fmt.Printf("Seed %s archived at version %d\n", args[0], version)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore SEED",
	Short: "Restore an archived seed into the local store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("restore")
		if err != nil {
			return err
		}
		defer a.Close()

		var dec memoriae.DecryptionContext
		if a.Encryptor().IsConfigured() {
			pass, err := readPassphrase("Passphrase for private key: ")
			if err != nil {
				return err
			}
			dec, err = a.Encryptor().Unlock(pass)
			if err != nil {
				return fmt.Errorf("unlocking private key: %w", err)
			}
		}

		state, err := a.Service().RestoreSeed(context.Background(), args[0], dec)
		if err != nil {
			return fmt.Errorf("restoring seed: %w", err)
		}

		printSeed(state)
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// keys subcommands
	keysCmd.AddCommand(keysInitCmd)

	// seed subcommands
	seedCmd.AddCommand(seedListCmd)
	seedCmd.AddCommand(seedShowCmd)
	seedShowCmd.Flags().String("at", "", "Show state as of this RFC3339 time")
	seedCmd.AddCommand(seedEditCmd)
	seedEditCmd.Flags().String("automation", "", "Automation process id")
	seedCmd.AddCommand(seedTimelineCmd)

	// tag subcommands
	tagCmd.AddCommand(tagNewCmd)
	tagNewCmd.Flags().String("color", "", "Display color")
	tagCmd.AddCommand(tagListCmd)
	tagCmd.AddCommand(tagRenameCmd)
	tagCmd.AddCommand(tagColorCmd)
	tagCmd.AddCommand(tagAddCmd)
	tagAddCmd.Flags().String("automation", "", "Automation process id")
	tagCmd.AddCommand(tagRmCmd)
	tagRmCmd.Flags().String("automation", "", "Automation process id")

	// category subcommands
	categoryCmd.AddCommand(categorySetCmd)
	categorySetCmd.Flags().String("automation", "", "Automation process id")
	categoryCmd.AddCommand(categoryRmCmd)
	categoryRmCmd.Flags().String("automation", "", "Automation process id")

	// sprout subcommands
	sproutCmd.AddCommand(sproutAddCmd)
	sproutAddCmd.Flags().String("title", "", "Sprout title")
	sproutAddCmd.Flags().String("content", "", "Sprout content")
	sproutAddCmd.Flags().String("automation", "", "Automation process id")
	sproutCmd.AddCommand(sproutListCmd)
	sproutCmd.AddCommand(sproutShowCmd)
	sproutCmd.AddCommand(sproutEditCmd)
	sproutEditCmd.Flags().String("title", "", "New title")
	sproutEditCmd.Flags().String("content", "", "New content")
	sproutEditCmd.Flags().String("automation", "", "Automation process id")
	sproutCmd.AddCommand(sproutDismissCmd)
	sproutDismissCmd.Flags().String("automation", "", "Automation process id")
	sproutCmd.AddCommand(sproutSnoozeCmd)
	sproutSnoozeCmd.Flags().String("automation", "", "Automation process id")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(captureCmd)
	captureCmd.Flags().String("automation", "", "Automation process id")
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(tagCmd)
	rootCmd.AddCommand(categoryCmd)
	rootCmd.AddCommand(sproutCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(restoreCmd)
}
