package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NeonSludge/cluster-mgr/pkg/util"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the inventory for Ansible and other tools",
	Long: `Export the inventory.

With --list the output is an Ansible dynamic inventory in JSON. With --host
it is the JSON object of a single host's variables. Otherwise --hosts or
--groups select a host-to-groups or group-to-hosts map.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		list, _ := flags.GetBool("list")
		host, _ := flags.GetString("host")
		hosts, _ := flags.GetBool("hosts")
		groups, _ := flags.GetBool("groups")
		format, _ := flags.GetString("format")

		var export interface{}
		var err error

		switch {
		case list:
			export, err = inv.ExportInventory()
			format = "json"
		case len(host) > 0:
			export, err = inv.HostVariables(host)
			format = "json"
		case hosts:
			export, err = inv.ExportHosts()
		case groups:
			export, err = inv.ExportGroups()
		default:
			return fmt.Errorf("one of --list, --host, --hosts or --groups is required")
		}
		if err != nil {
			return err
		}

		bytes, err := util.Marshal(export, format)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(bytes))

		return nil
	},
}

func init() {
	exportCmd.Flags().Bool("list", false, "produce a JSON inventory for Ansible")
	exportCmd.Flags().String("host", "", "produce the JSON variables of a host for Ansible")
	exportCmd.Flags().Bool("hosts", false, "export hosts and their groups")
	exportCmd.Flags().Bool("groups", false, "export groups and their hosts")
	exportCmd.Flags().String("format", "yaml", "export format for --hosts and --groups: yaml or json")

	exportCmd.MarkFlagsMutuallyExclusive("list", "host", "hosts", "groups")
}
