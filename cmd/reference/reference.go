// Package reference manages published reference genome
// bundles from the command line.
package reference

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/epivar-cloud/epivar/internal/refdef"
	"github.com/epivar-cloud/epivar/pkg/db"
	"github.com/epivar-cloud/epivar/pkg/log"
	schema "github.com/epivar-cloud/epivar/pkg/refdef"
)

var (
	// Cmd is the reference command.
	Cmd = &cobra.Command{
		Use:   "reference",
		Short: "Manage reference genome bundles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Usage()
		},
	}

	applyCmd = &cobra.Command{
		Use:     "apply",
		Short:   "Publish a reference genome bundle",
		Example: "epivar reference apply -f hg38.yaml",
		RunE:    apply,
	}

	manifestPath string
)

func init() {
	applyCmd.Flags().StringVarP(&manifestPath, "filename", "f", "", "bundle manifest to apply")
	if err := applyCmd.MarkFlagRequired("filename"); err != nil {
		panic(err)
	}

	Cmd.AddCommand(applyCmd)
}

func apply(cmd *cobra.Command, args []string) error {
	buf, err := os.ReadFile(manifestPath)
	if err != nil {
		return err
	}

	def, err := schema.Parse(buf)
	if err != nil {
		return err
	}

	if err := db.Migrate(); err != nil {
		return err
	}

	genome, err := refdef.NewApplier(db.Connection()).
		Apply(context.Background(), def)
	if err != nil {
		return err
	}

	log.Info("published reference bundle",
		"name", genome.Name,
		"version", genome.Version,
		"id", genome.ID)
	return nil
}
