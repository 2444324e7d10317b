package main

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/axondata/go-svcinit/internal/unix"
)

func newSchemesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schemes",
		Short: "List the resource schemes a namespace allow-list accepts",
		Long: `schemes prints every scheme name accepted in a descriptor's namespace
list and the resource kind it grants. Kinds not granted are isolated.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			renderSchemes(cmd.OutOrStdout(), unix.NamespacesSupported)
		},
	}
}

func renderSchemes(w io.Writer, supported bool) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"SCHEME", "KIND"})

	for _, s := range unix.Schemes() {
		kind, _ := unix.SchemeKind(s)
		t.AppendRow(table.Row{s + ":", kind.String()})
	}
	if !supported {
		t.SetCaption("namespaces are not supported on this platform; the list is ignored")
	}

	t.Render()
}
