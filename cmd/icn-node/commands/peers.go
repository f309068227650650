package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/intercoop/icnnode/src/federation"
	"github.com/intercoop/icnnode/src/icn"
	"github.com/intercoop/icnnode/src/state"
	"github.com/spf13/cobra"
)

var (
	peerID   string
	peerName string
)

// NewPeersCmd returns the command managing federation peers.
func NewPeersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peers",
		Short: "Manage federation peers",
	}

	add := &cobra.Command{
		Use:   "add [address]",
		Short: "Add a peer to the node state",
		Args:  cobra.ExactArgs(1),
		RunE:  addPeer,
	}
	add.Flags().StringVar(&peerID, "id", "", "Peer id (generated if empty)")
	add.Flags().StringVar(&peerName, "name", "", "Peer name")

	remove := &cobra.Command{
		Use:   "remove [id|address]",
		Short: "Remove a peer from the node state",
		Args:  cobra.ExactArgs(1),
		RunE:  removePeer,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List known peers",
		RunE:  listPeers,
	}

	cmd.AddCommand(add, remove, list)

	return cmd
}

func addPeer(cmd *cobra.Command, args []string) error {
	mgr, release, err := icn.OpenState(_config)
	if err != nil {
		return err
	}
	defer release()

	id := peerID
	if id == "" {
		id = uuid.New().String()
	}
	p := federation.NewPeer(id, peerName, args[0])

	if err := mgr.AddPeer(p.Entry()); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Added peer %s\n", p)

	return nil
}

func removePeer(cmd *cobra.Command, args []string) error {
	mgr, release, err := icn.OpenState(_config)
	if err != nil {
		return err
	}
	defer release()

	removed, err := mgr.RemovePeer(args[0])
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("Unknown peer: %s", args[0])
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed peer %s\n", args[0])

	return nil
}

func listPeers(cmd *cobra.Command, args []string) error {
	mgr := state.NewManager(_config.StateFile(), _config.BackupDir(), _config.Logger())
	if err := mgr.LoadReadOnly(); err != nil {
		return err
	}

	dirs := []federation.Directory{
		federation.NewStateDirectory(mgr),
		federation.NewFileDirectory(_config.PeersFilePath()),
	}
	if _config.PeerScript != "" {
		dirs = append(dirs, federation.NewScriptDirectory(_config.PeerScript, _config.Logger()))
	}

	peers, err := federation.NewMultiDirectory(_config.Logger(), dirs...).Peers(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tADDRESS")
	for _, p := range peers {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Name, p.Address)
	}

	return w.Flush()
}
