// Package main provides the Polylog CLI entry point.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lolothefuzzy-ai/polylog-sub004/pkg/config"
	"github.com/lolothefuzzy-ai/polylog-sub004/pkg/foldcache"
	"github.com/lolothefuzzy-ai/polylog-sub004/pkg/polyform"
	"github.com/lolothefuzzy-ai/polylog-sub004/pkg/registry"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "polylog",
		Short: "Polylog - symbolic compression and assembly constraint engine",
		Long: `Polylog catalogs 3D polygon assemblies as compact tiered symbols and
answers assembly feasibility queries against a liaison graph.

Commands cover the offline batch jobs and catalog persistence:
  • precompute  fold-sequence batch job for a polygon catalog
  • snapshot    persist a serialized registry to the snapshot store
  • digest      print the digest of a serialized registry
  • verify      check a registry file or stored snapshot for drift`,
	}
	rootCmd.PersistentFlags().String("config", "", "YAML config file (optional)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Polylog v%s (%s)\n", version, commit)
		},
	})

	precomputeCmd := &cobra.Command{
		Use:   "precompute",
		Short: "Precompute fold sequences for a polygon catalog",
		Long: `Enumerate attachment topologies across the catalog, compute the
geodesic fold sequence for each, and write the result as JSON. Load the
output into the fold cache at engine startup.`,
		RunE: runPrecompute,
	}
	precomputeCmd.Flags().String("sides", "3,4,5,6", "Comma-separated polygon side counts")
	precomputeCmd.Flags().String("out", "folds.json", "Output file")
	rootCmd.AddCommand(precomputeCmd)

	snapshotCmd := &cobra.Command{
		Use:   "snapshot [registry.ndjson]",
		Short: "Persist a serialized registry to the snapshot store",
		Args:  cobra.ExactArgs(1),
		RunE:  runSnapshot,
	}
	rootCmd.AddCommand(snapshotCmd)

	digestCmd := &cobra.Command{
		Use:   "digest [registry.ndjson]",
		Short: "Print the digest of a serialized registry",
		Args:  cobra.ExactArgs(1),
		RunE:  runDigest,
	}
	rootCmd.AddCommand(digestCmd)

	verifyCmd := &cobra.Command{
		Use:   "verify [registry.ndjson]",
		Short: "Check a registry file or stored snapshot for drift",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runVerify,
	}
	verifyCmd.Flags().String("snapshot", "", "Verify a stored snapshot ID instead of a file")
	rootCmd.AddCommand(verifyCmd)

	listCmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List stored snapshots",
		RunE:  runList,
	}
	rootCmd.AddCommand(listCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

func openStore(cfg *config.Config) (*registry.SnapshotStore, error) {
	if cfg.Storage.InMemory {
		return registry.OpenSnapshotStoreInMemory()
	}
	return registry.OpenSnapshotStore(cfg.Storage.DataDir)
}

func parseCatalog(sides string) ([]polyform.Type, error) {
	var catalog []polyform.Type
	for _, part := range strings.Split(sides, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid side count %q", part)
		}
		t := polyform.Type{Sides: n}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		catalog = append(catalog, t)
	}
	if len(catalog) == 0 {
		return nil, fmt.Errorf("empty catalog")
	}
	return catalog, nil
}

func runPrecompute(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	sides, _ := cmd.Flags().GetString("sides")
	out, _ := cmd.Flags().GetString("out")

	catalog, err := parseCatalog(sides)
	if err != nil {
		return err
	}

	pcfg := cfg.Precompute()
	computed := foldcache.Precompute(catalog, &pcfg)

	seqs := make([]*foldcache.ParametricFoldSequence, 0, len(computed))
	for _, seq := range computed {
		seqs = append(seqs, seq)
	}
	data, err := json.MarshalIndent(seqs, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return err
	}

	fmt.Printf("Precomputed %d fold sequences (step %.1f°) -> %s\n",
		len(seqs), pcfg.StepDegrees, out)
	return nil
}

func readRegistry(path string, cfg *config.Config) (*registry.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return registry.Deserialize(data, cfg.Registry())
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	reg, err := readRegistry(args[0], cfg)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	info, err := store.Save(reg)
	if err != nil {
		return err
	}
	fmt.Printf("Snapshot %s: %d records, digest %s\n", info.ID, info.Records, info.Digest)
	return nil
}

func runDigest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	reg, err := readRegistry(args[0], cfg)
	if err != nil {
		return err
	}
	digest, err := reg.Digest()
	if err != nil {
		return err
	}
	fmt.Println(digest)
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	snapshotID, _ := cmd.Flags().GetString("snapshot")

	switch {
	case snapshotID != "":
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Verify(snapshotID); err != nil {
			return err
		}
		fmt.Printf("Snapshot %s OK\n", snapshotID)
	case len(args) == 1:
		// Deserialize performs the checksum verification.
		if _, err := readRegistry(args[0], cfg); err != nil {
			return err
		}
		fmt.Printf("Registry %s OK\n", args[0])
	default:
		return fmt.Errorf("pass a registry file or --snapshot ID")
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	infos, err := store.List()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("No snapshots")
		return nil
	}
	for _, info := range infos {
		fmt.Printf("%s  %s  %d records  %s\n",
			info.ID, info.CreatedAt.Format("2006-01-02 15:04:05"), info.Records, info.Digest)
	}
	return nil
}
