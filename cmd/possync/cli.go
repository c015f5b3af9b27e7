package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/edgetill/possync/pkg/client"
)

var (
	adminURL   string
	outputJSON bool
	entityType string
)

func addClientFlags(cmds ...*cobra.Command) {
	for _, cmd := range cmds {
		cmd.Flags().StringVar(&adminURL, "server", "http://127.0.0.1:7335", "possync admin API URL")
		cmd.Flags().BoolVar(&outputJSON, "output-json", false, "Output as JSON")
	}
}

func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(os.Stdout, string(data))
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate queue counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := client.New(adminURL).GetStats()
		if err != nil {
			return err
		}
		if outputJSON {
			printJSON(stats)
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ENTITY TYPE\tPENDING\tSYNCED\tDEAD")
		for _, es := range stats.ByEntityType {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", es.EntityType, es.Pending, es.Synced, es.DeadLettered)
		}
		fmt.Fprintf(w, "total\t%d\t%d\t%d\n", stats.Pending, stats.Synced, stats.DeadLettered)
		return w.Flush()
	},
}

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Trigger one immediate sync cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client.New(adminURL).Trigger(); err != nil {
			return err
		}
		fmt.Println("sync cycle triggered")
		return nil
	},
}

var deadletterCmd = &cobra.Command{
	Use:   "deadletter",
	Short: "Inspect and recover dead-lettered queue items",
}

var deadletterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered items",
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := client.New(adminURL).ListDeadLettered(entityType)
		if err != nil {
			return err
		}
		if outputJSON {
			printJSON(list)
			return nil
		}
		fmt.Printf("%d dead-lettered item(s)\n", list.Count)
		for _, raw := range list.Items {
			var item struct {
				ID         string  `json:"id"`
				EntityType string  `json:"entity_type"`
				EntityID   string  `json:"entity_id"`
				Operation  string  `json:"operation"`
				Attempts   int     `json:"attempts"`
				LastError  *string `json:"last_error"`
			}
			if err := json.Unmarshal(raw, &item); err != nil {
				continue
			}
			lastErr := ""
			if item.LastError != nil {
				lastErr = *item.LastError
			}
			fmt.Printf("  %s  %s/%s %s attempts=%d error=%q\n",
				item.ID, item.EntityType, item.EntityID, item.Operation, item.Attempts, lastErr)
		}
		return nil
	},
}

var deadletterRequeueCmd = &cobra.Command{
	Use:   "requeue [item-id]",
	Short: "Requeue a dead-lettered item (or all items with --entity-type)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(adminURL)
		if len(args) == 1 {
			item, err := c.Requeue(args[0])
			if err != nil {
				return err
			}
			if outputJSON {
				printJSON(json.RawMessage(item))
			} else {
				fmt.Println("requeued as new item")
			}
			return nil
		}
		n, err := c.RequeueAll(entityType)
		if err != nil {
			return err
		}
		fmt.Printf("requeued %d item(s)\n", n)
		return nil
	},
}

func init() {
	deadletterCmd.AddCommand(deadletterListCmd)
	deadletterCmd.AddCommand(deadletterRequeueCmd)
	deadletterListCmd.Flags().StringVar(&entityType, "entity-type", "", "Filter by entity type")
	deadletterRequeueCmd.Flags().StringVar(&entityType, "entity-type", "", "Requeue all items of this entity type")
	addClientFlags(statsCmd, triggerCmd, deadletterListCmd, deadletterRequeueCmd)
}
