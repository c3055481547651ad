/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/seckatie/linkkeeper/internal/core/db"
	"github.com/spf13/cobra"
)

var subscriptionCmd = &cobra.Command{
	Use:     "subscription",
	Aliases: []string{"sub"},
	Short:   "Manage RSS subscriptions",
}

var subscriptionAddCmd = &cobra.Command{
	Use:   "add URL",
	Short: "Subscribe a collection to a feed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := cmd.Flags().GetInt64("owner")
		if err != nil {
			return fmt.Errorf("failed to read --owner: %w", err)
		}
		collection, err := cmd.Flags().GetInt64("collection")
		if err != nil {
			return fmt.Errorf("failed to read --collection: %w", err)
		}
		name, err := cmd.Flags().GetString("name")
		if err != nil {
			return fmt.Errorf("failed to read --name: %w", err)
		}
		if owner <= 0 || collection <= 0 {
			return errors.New("--owner and --collection are required")
		}

		return withDB(cmd, func(database *db.DB) error {
			id, err := database.CreateSubscription(cmd.Context(), db.Subscription{
				Name:         name,
				URL:          args[0],
				OwnerID:      owner,
				CollectionID: collection,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added subscription %d\n", id)
			return nil
		})
	},
}

var subscriptionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List subscriptions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := cmd.Flags().GetInt64("owner")
		if err != nil {
			return fmt.Errorf("failed to read --owner: %w", err)
		}

		return withDB(cmd, func(database *db.DB) error {
			var subs []db.Subscription
			if owner > 0 {
				subs, err = database.ListSubscriptionsByOwner(cmd.Context(), owner)
			} else {
				subs, err = database.ListSubscriptions(cmd.Context())
			}
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tOWNER\tCOLLECTION\tLAST BUILD\tNAME\tURL")
			for _, s := range subs {
				fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%s\t%s\n", s.ID, s.OwnerID, s.CollectionID, s.LastBuild, s.Name, s.URL)
			}
			return tw.Flush()
		})
	},
}

var subscriptionRemoveCmd = &cobra.Command{
	Use:     "remove ID",
	Aliases: []string{"rm"},
	Short:   "Delete a subscription (its links are kept)",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid subscription id %q", args[0])
		}
		return withDB(cmd, func(database *db.DB) error {
			if err := database.DeleteSubscription(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed subscription %d\n", id)
			return nil
		})
	},
}

func withDB(cmd *cobra.Command, fn func(*db.DB) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	database, err := initDB(cfg)
	if err != nil {
		return err
	}
	defer closeDB(database)
	return fn(database)
}

func init() {
	rootCmd.AddCommand(subscriptionCmd)
	subscriptionCmd.AddCommand(subscriptionAddCmd, subscriptionListCmd, subscriptionRemoveCmd)

	subscriptionAddCmd.Flags().Int64("owner", 0, "Owner user id")
	subscriptionAddCmd.Flags().Int64("collection", 0, "Collection that receives the feed's links")
	subscriptionAddCmd.Flags().String("name", "", "Display name (defaults to the URL)")
	subscriptionListCmd.Flags().Int64("owner", 0, "Only list this owner's subscriptions")
}
