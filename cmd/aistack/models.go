package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/phil65/aistack/config"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available models from the provider catalog",
	RunE:  runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	key, err := apiKey()
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	client := newClient(key, cfg, newLogger())
	models, err := client.ListModels(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCONTEXT")
	for _, m := range models {
		fmt.Fprintf(w, "%s\t%s\t%d\n", m.ID, m.Name, m.ContextLength)
	}
	return w.Flush()
}
