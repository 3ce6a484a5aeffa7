package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/crate/crate-go/internal/pool"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Inspect the cluster",
}

var clusterHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe every configured server",
	Long: `Probe every configured server and report whether it serves requests.
Servers that recently failed are given their rest time before being
contacted, so this can take up to the retry interval.`,
	RunE: runClusterHealth,
}

var clusterInfoCmd = &cobra.Command{
	Use:   "info [server]",
	Short: "Show name, cluster and version of one server",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runClusterInfo,
}

var clusterServersCmd = &cobra.Command{
	Use:   "servers",
	Short: "Show the configured servers and their pool state",
	Long: `Show the active and inactive servers without contacting any of them.
Fresh processes report every server active; states only diverge after
statements have run.`,
	RunE: runClusterServers,
}

func init() {
	clusterCmd.AddCommand(clusterHealthCmd)
	clusterCmd.AddCommand(clusterInfoCmd)
	clusterCmd.AddCommand(clusterServersCmd)

	clusterHealthCmd.Flags().String("format", "table", "Output format: table, json")
}

func runClusterHealth(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	c, cleanup, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := runContext(cmd)
	defer stop()

	statuses := c.ClusterHealth(ctx)

	if format == "json" {
		type healthEntry struct {
			Server  string `json:"server"`
			Active  bool   `json:"active"`
			Name    string `json:"name,omitempty"`
			Cluster string `json:"cluster,omitempty"`
			Version string `json:"version,omitempty"`
			Error   string `json:"error,omitempty"`
		}
		entries := make([]healthEntry, 0, len(statuses))
		for _, s := range statuses {
			entry := healthEntry{Server: s.Server, Active: s.Active}
			if s.Info != nil {
				entry.Name = s.Info.Name
				entry.Cluster = s.Info.ClusterName
				entry.Version = s.Info.Version
			}
			if s.Err != nil {
				entry.Error = s.Err.Error()
			}
			entries = append(entries, entry)
		}
		return printJSON(entries)
	}

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "server\tstate\tname\tversion\tdetail")
	unhealthy := 0
	for _, s := range statuses {
		state := "active"
		if !s.Active {
			state = "inactive"
		}
		name, version, detail := "-", "-", ""
		if s.Info != nil {
			name = s.Info.Name
			version = s.Info.Version
		}
		if s.Err != nil {
			unhealthy++
			detail = s.Err.Error()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.Server, state, name, version, detail)
	}
	w.Flush()

	if unhealthy > 0 {
		return fmt.Errorf("%d of %d servers unhealthy", unhealthy, len(statuses))
	}
	return nil
}

func runClusterInfo(cmd *cobra.Command, args []string) error {
	c, cleanup, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := runContext(cmd)
	defer stop()

	server := ""
	if len(args) == 1 {
		// The argument accepts the same spec formats as --servers.
		scheme, _ := cmd.Flags().GetString("scheme")
		normalized, err := pool.ParseServers(args, scheme)
		if err != nil {
			return err
		}
		server = normalized[0]
	} else {
		active := c.ActiveServers()
		if len(active) == 0 {
			return fmt.Errorf("no active servers")
		}
		server = active[0]
	}

	info, err := c.ServerInfos(ctx, server)
	if err != nil {
		return err
	}
	return printJSON(info)
}

func runClusterServers(cmd *cobra.Command, args []string) error {
	c, cleanup, err := newClient(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "server\tstate\treason")
	for _, server := range c.ActiveServers() {
		fmt.Fprintf(w, "%s\tactive\t\n", server)
	}
	for server, reason := range c.InactiveServers() {
		fmt.Fprintf(w, "%s\tinactive\t%s\n", server, reason)
	}
	return w.Flush()
}
