package main

import (
	"fmt"

	"github.com/spf13/cobra"

	svcinit "github.com/axondata/go-svcinit"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			info := svcinit.GetVersion()
			fmt.Fprintf(cmd.OutOrStdout(), "svcinit %s (descriptors %s, namespaces %t)\n",
				info.Version, info.Descriptor, info.Namespaces)
		},
	}
}
