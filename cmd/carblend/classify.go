package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/menta2k/carblend"
	"github.com/menta2k/carblend/pkg/viewpoint"
)

func ClassifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <image path>...",
		Short: "Print the viewpoint category encoded in each filename",
		Long: "Print the viewpoint category encoded in each filename. " +
			"Example usage 'classify cars/0cdf5b5d0ce1_03.jpg' prints 'front-left'.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, path := range args {
				category := carblend.Classify(path)
				code := "-"
				if n, err := viewpoint.ParseCode(path); err == nil {
					code = fmt.Sprint(n)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", filepath.Base(path), code, category)
			}
			return w.Flush()
		},
	}
}
