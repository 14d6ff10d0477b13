package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"braintacle/duplicates"
	"braintacle/model"
	"braintacle/preferences"

	"github.com/spf13/cobra"
)

var (
	listOrder     string
	listDirection string

	mergeCustomFields bool
	mergeConfig       bool
	mergeGroups       bool
	mergePackages     bool
	mergeProductKey   bool
)

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "Find and merge duplicate clients",
}

var duplicatesCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Show the number of duplicates per criterion",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		prefs := preferences.NewStore(db)
		counts, err := duplicates.NewService(db, prefs.LockValidity, logger).Count(cmd.Context())
		if err != nil {
			return err
		}
		for _, c := range model.Criteria {
			fmt.Fprintf(cmd.OutOrStdout(), "%-12s %d\n", c, counts[c])
		}
		return nil
	},
}

var duplicatesListCmd = &cobra.Command{
	Use:   "list [criterion]",
	Short: "List duplicate clients by Name, MacAddress, Serial or AssetTag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		prefs := preferences.NewStore(db)
		clients, err := duplicates.NewService(db, prefs.LockValidity, logger).Find(args[0], listOrder, listDirection)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tMAC\tSERIAL\tASSET TAG\tLAST CONTACT")
		for _, c := range clients {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
				c.ID, c.Name, c.MacAddress, c.Serial, c.AssetTag, c.LastContactDate.Format(time.DateTime))
		}
		return tw.Flush()
	},
}

var duplicatesMergeCmd = &cobra.Command{
	Use:   "merge [id]...",
	Short: "Merge clients into the one with the most recent contact",
	Long: `Merges the given clients. The client with the most recent contact
survives; the others are deleted. Flags not given on the command line take
the defaultMerge* preferences.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]int64, 0, len(args))
		for _, arg := range args {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid client id %q", arg)
			}
			ids = append(ids, id)
		}

		db, err := openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()

		prefs := preferences.NewStore(db)
		opts, err := duplicates.DefaultOptions(prefs)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		for name, f := range map[string]struct {
			value  bool
			target *bool
		}{
			"custom-fields": {mergeCustomFields, &opts.CustomFields},
			"config":        {mergeConfig, &opts.Config},
			"groups":        {mergeGroups, &opts.Groups},
			"packages":      {mergePackages, &opts.Packages},
			"product-key":   {mergeProductKey, &opts.ProductKey},
		} {
			if flags.Changed(name) {
				*f.target = f.value
			}
		}

		result, err := duplicates.NewService(db, prefs.LockValidity, logger).Merge(ids, opts)
		if err != nil {
			return err
		}
		if result == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "At least 2 different clients have to be selected.")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Merged %v into client %d.\n", result.Deleted, result.Survivor)
		return nil
	},
}

func init() {
	duplicatesListCmd.Flags().StringVar(&listOrder, "order", "", "order column (Id, Name, MacAddress, Serial, AssetTag, LastContactDate, InventoryDate)")
	duplicatesListCmd.Flags().StringVar(&listDirection, "direction", "asc", "asc or desc")

	f := duplicatesMergeCmd.Flags()
	f.BoolVar(&mergeCustomFields, "custom-fields", true, "copy custom fields of the oldest client")
	f.BoolVar(&mergeConfig, "config", true, "merge per-client configuration")
	f.BoolVar(&mergeGroups, "groups", true, "merge static group memberships")
	f.BoolVar(&mergePackages, "packages", true, "merge package assignments")
	f.BoolVar(&mergeProductKey, "product-key", true, "keep a manually entered Windows product key")

	duplicatesCmd.AddCommand(duplicatesCountCmd, duplicatesListCmd, duplicatesMergeCmd)
	rootCmd.AddCommand(duplicatesCmd)
}
