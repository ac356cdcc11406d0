package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"text/tabwriter"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/NeonSludge/cluster-mgr/pkg/inventory"
	"github.com/NeonSludge/cluster-mgr/pkg/util"
)

var addNodeCmd = &cobra.Command{
	Use:   "add-node <hostname> <tailscale_ip>",
	Short: "Add a node to the Ansible inventory",
	Long: `Add a node to the Ansible inventory.

The node configuration is validated and the node is added to the group
matching its role (control_plane or workers).`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		hostname, ip := args[0], args[1]

		role, _ := cmd.Flags().GetString("role")
		ansibleHost, _ := cmd.Flags().GetString("ansible-host")
		reservedCPU, _ := cmd.Flags().GetString("reserved-cpu")
		reservedMemory, _ := cmd.Flags().GetString("reserved-memory")
		gpu, _ := cmd.Flags().GetBool("gpu")
		rawLabels, _ := cmd.Flags().GetString("labels")
		rawTaints, _ := cmd.Flags().GetString("taints")

		labels, err := util.ParseLabels(rawLabels)
		if err != nil {
			return err
		}

		taints, err := util.ParseTaints(rawTaints)
		if err != nil {
			return err
		}

		// Nodes are managed over Tailscale unless told otherwise.
		if len(ansibleHost) == 0 {
			ansibleHost = ip
		}

		node, err := inventory.NewNode(inventory.Node{
			Hostname:       hostname,
			AnsibleHost:    ansibleHost,
			TailscaleIP:    ip,
			Role:           inventory.Role(role),
			ReservedCPU:    reservedCPU,
			ReservedMemory: reservedMemory,
			GPU:            gpu,
			Labels:         labels,
			Taints:         taints,
		})
		if err != nil {
			return err
		}

		if err := inv.AddNode(node); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Successfully added node '%s' to inventory\n", node.Hostname)
		printNode(out, node)

		return nil
	},
}

var removeNodeCmd = &cobra.Command{
	Use:   "remove-node <hostname>",
	Short: "Remove a node from the Ansible inventory",
	Long: `Remove a node from the Ansible inventory.

Unless --no-drain is given, the node is drained with kubectl first.
Drain failures are reported and the removal continues.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hostname := args[0]
		out := cmd.OutOrStdout()

		drain, _ := cmd.Flags().GetBool("drain")
		noDrain, _ := cmd.Flags().GetBool("no-drain")
		force, _ := cmd.Flags().GetBool("force")
		drain = drain && !noDrain

		node, err := inv.GetNode(hostname)
		if err != nil {
			return err
		}

		if !force {
			if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
				return errors.New("refusing to remove a node without confirmation: stdin is not a terminal, use --force")
			}

			fmt.Fprintf(out, "Warning: about to remove node '%s' from inventory\n", hostname)
			fmt.Fprintf(out, "  Role: %s\n", node.Role)
			fmt.Fprintf(out, "  Tailscale IP: %s\n", node.TailscaleIP)

			if !confirm(cmd.InOrStdin(), out, "Are you sure you want to continue?") {
				fmt.Fprintln(out, "Operation cancelled")
				return nil
			}
		}

		if drain {
			fmt.Fprintf(out, "Draining node '%s'...\n", hostname)
			if err := drainNode(cmd.Context(), hostname); err != nil {
				log.Warnf("[%s] drain failure: %v", hostname, err)
				fmt.Fprintf(out, "Warning: failed to drain node: %v\n", err)
				fmt.Fprintln(out, "Continuing with removal from inventory...")
			} else {
				fmt.Fprintln(out, "Node drained successfully")
			}
		}

		if err := inv.RemoveNode(hostname); err != nil {
			return err
		}

		fmt.Fprintf(out, "Successfully removed node '%s' from inventory\n", hostname)

		if drain {
			fmt.Fprintln(out, "\nNote: to complete removal, you may need to:")
			fmt.Fprintf(out, "  1. Delete the node from Kubernetes: kubectl delete node %s\n", hostname)
			fmt.Fprintln(out, "  2. Stop the K3s service on the node: systemctl stop k3s or k3s-agent")
		}

		return nil
	},
}

var updateNodeCmd = &cobra.Command{
	Use:   "update-node <hostname>",
	Short: "Update a node in the Ansible inventory",
	Long: `Update a node in the Ansible inventory.

Only the attributes given on the command line are changed. Changing the
role moves the node to the matching group.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()

		node, err := inv.GetNode(args[0])
		if err != nil {
			return err
		}

		update := *node

		if flags.Changed("role") {
			role, _ := flags.GetString("role")
			update.Role = inventory.Role(role)
		}
		if flags.Changed("ansible-host") {
			update.AnsibleHost, _ = flags.GetString("ansible-host")
		}
		if flags.Changed("tailscale-ip") {
			update.TailscaleIP, _ = flags.GetString("tailscale-ip")
		}
		if flags.Changed("reserved-cpu") {
			update.ReservedCPU, _ = flags.GetString("reserved-cpu")
		}
		if flags.Changed("reserved-memory") {
			update.ReservedMemory, _ = flags.GetString("reserved-memory")
		}
		if flags.Changed("gpu") {
			update.GPU, _ = flags.GetBool("gpu")
		}
		if flags.Changed("labels") {
			raw, _ := flags.GetString("labels")
			if update.Labels, err = util.ParseLabels(raw); err != nil {
				return err
			}
		}
		if flags.Changed("taints") {
			raw, _ := flags.GetString("taints")
			if update.Taints, err = util.ParseTaints(raw); err != nil {
				return err
			}
		}

		updated, err := inventory.NewNode(update)
		if err != nil {
			return err
		}

		if err := inv.UpdateNode(updated); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Successfully updated node '%s'\n", updated.Hostname)
		printNode(out, updated)

		return nil
	},
}

var listNodesCmd = &cobra.Command{
	Use:   "list-nodes",
	Short: "List the nodes in the Ansible inventory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		group, _ := cmd.Flags().GetString("group")
		format, _ := cmd.Flags().GetString("format")
		out := cmd.OutOrStdout()

		nodes, err := inv.GetNodes(inventory.Group(group))
		if err != nil {
			return err
		}

		if format != "table" {
			bytes, err := util.Marshal(nodes, format)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, strings.TrimRight(string(bytes), "\n"))
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "HOSTNAME\tROLE\tTAILSCALE IP\tANSIBLE HOST\tGPU\tLABELS\tTAINTS")
		for _, n := range nodes {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
				n.Hostname, n.Role, n.TailscaleIP, n.AnsibleHost, n.GPU, util.FormatLabels(n.Labels), util.FormatTaints(n.Taints))
		}

		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Fprintf(out, "\nTotal nodes: %d\n", len(nodes))

		return nil
	},
}

func init() {
	addNodeCmd.Flags().StringP("role", "r", string(inventory.RoleWorker), "node role: control-plane or worker")
	addNodeCmd.Flags().String("ansible-host", "", "address used by Ansible (default: the Tailscale IP)")
	addNodeCmd.Flags().String("reserved-cpu", "", "CPU cores to reserve for local processes (e.g. '2')")
	addNodeCmd.Flags().String("reserved-memory", "", "memory to reserve for local processes (e.g. '4Gi')")
	addNodeCmd.Flags().Bool("gpu", false, "node has GPU capabilities")
	addNodeCmd.Flags().StringP("labels", "l", "", "node labels as comma-separated key=value pairs (e.g. 'env=prod,tier=frontend')")
	addNodeCmd.Flags().StringP("taints", "t", "", "node taints as comma-separated key=value:effect (e.g. 'gpu=true:NoSchedule')")

	removeNodeCmd.Flags().Bool("drain", true, "drain the node before removal (requires kubectl access)")
	removeNodeCmd.Flags().Bool("no-drain", false, "do not drain the node")
	removeNodeCmd.Flags().BoolP("force", "f", false, "skip confirmation prompt")

	updateNodeCmd.Flags().StringP("role", "r", "", "node role: control-plane or worker")
	updateNodeCmd.Flags().String("ansible-host", "", "address used by Ansible")
	updateNodeCmd.Flags().String("tailscale-ip", "", "Tailscale IP address")
	updateNodeCmd.Flags().String("reserved-cpu", "", "CPU cores to reserve for local processes, empty to unset")
	updateNodeCmd.Flags().String("reserved-memory", "", "memory to reserve for local processes, empty to unset")
	updateNodeCmd.Flags().Bool("gpu", false, "node has GPU capabilities")
	updateNodeCmd.Flags().StringP("labels", "l", "", "replace node labels (comma-separated key=value pairs)")
	updateNodeCmd.Flags().StringP("taints", "t", "", "replace node taints (comma-separated key=value:effect)")

	listNodesCmd.Flags().StringP("group", "g", "", "only list nodes of a group: control_plane or workers")
	listNodesCmd.Flags().String("format", "table", "output format: table, yaml or json")
}

// printNode prints a node summary.
func printNode(out io.Writer, n *inventory.Node) {
	fmt.Fprintf(out, "  Role: %s\n", n.Role)
	fmt.Fprintf(out, "  Tailscale IP: %s\n", n.TailscaleIP)
	if n.AnsibleHost != n.TailscaleIP {
		fmt.Fprintf(out, "  Ansible host: %s\n", n.AnsibleHost)
	}
	if len(n.ReservedCPU) > 0 {
		fmt.Fprintf(out, "  Reserved CPU: %s\n", n.ReservedCPU)
	}
	if len(n.ReservedMemory) > 0 {
		fmt.Fprintf(out, "  Reserved Memory: %s\n", n.ReservedMemory)
	}
	if n.GPU {
		fmt.Fprintln(out, "  GPU: Enabled")
	}
	if len(n.Labels) > 0 {
		fmt.Fprintf(out, "  Labels: %s\n", util.FormatLabels(n.Labels))
	}
	if len(n.Taints) > 0 {
		fmt.Fprintf(out, "  Taints: %s\n", util.FormatTaints(n.Taints))
	}
}

// confirm asks a yes/no question, defaulting to no.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)

	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && len(answer) == 0 {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// drainNode evicts workloads from a node with kubectl.
func drainNode(ctx context.Context, hostname string) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.Drain.Timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, cfg.Drain.Kubectl, "drain", hostname, "--ignore-daemonsets", "--delete-emptydir-data").CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return errors.Errorf("drain timed out after %s", cfg.Drain.Timeout)
	}
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return errors.Wrapf(err, "%s not found", cfg.Drain.Kubectl)
		}
		if msg := strings.TrimSpace(string(out)); len(msg) > 0 {
			return errors.Wrap(err, msg)
		}
		return errors.Wrap(err, "kubectl drain failure")
	}

	return nil
}
