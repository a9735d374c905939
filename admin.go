package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"discord-github-bridge/config"
	"discord-github-bridge/services"
)

// openStore は管理用サブコマンドのためにマッピング DB だけを開く
func openStore(cmd *cobra.Command) (*services.MappingStore, *gorm.DB, error) {
	path, _ := cmd.Flags().GetString("database")
	if path == "" {
		path = config.DatabasePath()
	}
	db, err := services.OpenDatabase(path)
	if err != nil {
		return nil, nil, err
	}
	return services.NewMappingStore(db), db, nil
}

func addDatabaseFlag(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().String("database", "", "path to the mapping database (default: $DATABASE_PATH or data/bridge.db)")
	return cmd
}

func newLinkCmd() *cobra.Command {
	return addDatabaseFlag(&cobra.Command{
		Use:   "link <thread-id> <issue-number>",
		Short: "Link a forum thread to an issue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			issueNumber, err := strconv.Atoi(args[1])
			if err != nil || issueNumber <= 0 {
				return fmt.Errorf("invalid issue number: %q", args[1])
			}

			store, db, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer services.CloseDatabase(db)

			ctx := cmd.Context()
			if threadID, found, err := store.GetThreadByIssue(ctx, issueNumber); err != nil {
				return err
			} else if found && threadID != args[0] {
				return fmt.Errorf("issue #%d is already linked to thread %s", issueNumber, threadID)
			}

			if err := store.LinkThreadToIssue(ctx, args[0], issueNumber); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "linked thread %s to issue #%d\n", args[0], issueNumber)
			return nil
		},
	})
}

func newUnlinkCmd() *cobra.Command {
	return addDatabaseFlag(&cobra.Command{
		Use:   "unlink <thread-id>",
		Short: "Remove the link of a forum thread and its synced messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, db, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer services.CloseDatabase(db)

			ctx := cmd.Context()
			removed, err := store.UnlinkMessagesByThread(ctx, args[0])
			if err != nil {
				return err
			}
			if err := store.UnlinkThread(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unlinked thread %s (%d message mappings removed)\n", args[0], removed)
			return nil
		},
	})
}

func newShowCmd() *cobra.Command {
	return addDatabaseFlag(&cobra.Command{
		Use:   "show",
		Short: "List linked threads and issues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, db, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer services.CloseDatabase(db)

			mappings, err := store.ListThreadMappings(cmd.Context())
			if err != nil {
				return err
			}
			if len(mappings) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no linked threads")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "THREAD\tISSUE\tLINKED AT")
			for _, m := range mappings {
				fmt.Fprintf(w, "%s\t#%d\t%s\n", m.ThreadID, m.IssueNumber, m.CreatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	})
}

func newCleanupCmd() *cobra.Command {
	return addDatabaseFlag(&cobra.Command{
		Use:   "cleanup",
		Short: "Remove mappings of threads that no longer exist in Discord",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			store, db, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer services.CloseDatabase(db)

			// REST だけ使うので Gateway には接続しない
			session, err := discordgo.New("Bot " + cfg.Discord.Token)
			if err != nil {
				return fmt.Errorf("failed to create discord session: %w", err)
			}

			removed, err := services.CleanupDeletedThreads(cmd.Context(), store, services.NewDiscordClient(session))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d deleted threads\n", removed)
			return nil
		},
	})
}
